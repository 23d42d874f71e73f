// Package profile maps battle languages to compile/run command templates.
package profile

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"

	"bitbattle/internal/sandbox/spec"
	appErr "bitbattle/pkg/errors"
)

// Profile describes how one language is compiled and executed inside the
// sandbox. Command templates expand {src} and {bin} before shlex splitting.
type Profile struct {
	ID         string `yaml:"id" json:"id"`
	SourceFile string `yaml:"source_file" json:"source_file"`
	BinaryFile string `yaml:"binary_file" json:"binary_file"`

	// CompileCmdTpl is empty for interpreted languages.
	CompileCmdTpl string `yaml:"compile_cmd" json:"compile_cmd"`
	RunCmdTpl     string `yaml:"run_cmd" json:"run_cmd"`

	// Env replaces the default minimal environment when non-empty, so it
	// must carry its own PATH.
	Env []string `yaml:"env" json:"env"`

	// TimeMultiplier and MemoryMultiplier scale the base limits. Compiled
	// languages get 2x to absorb toolchain and runtime startup cost.
	TimeMultiplier   float64 `yaml:"time_multiplier" json:"time_multiplier"`
	MemoryMultiplier float64 `yaml:"memory_multiplier" json:"memory_multiplier"`
}

// CompileEnabled reports whether this language has a compile step.
func (p Profile) CompileEnabled() bool {
	return strings.TrimSpace(p.CompileCmdTpl) != ""
}

// CompileCommand renders the compile argv.
func (p Profile) CompileCommand() ([]string, error) {
	return p.render(p.CompileCmdTpl)
}

// RunCommand renders the run argv.
func (p Profile) RunCommand() ([]string, error) {
	return p.render(p.RunCmdTpl)
}

func (p Profile) render(tpl string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", p.SourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", p.BinaryFile)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	// A bare binary name would hit PATH lookup instead of the workdir.
	if fields[0] == p.BinaryFile && p.BinaryFile != "" {
		fields[0] = "./" + filepath.Base(fields[0])
	}
	return fields, nil
}

// ApplyLimits scales the base resource budget by this language's
// multipliers.
func (p Profile) ApplyLimits(base spec.ResourceLimit) spec.ResourceLimit {
	base = base.Normalize()
	base.WallTimeMs = scaleLimit(base.WallTimeMs, p.TimeMultiplier)
	base.MemoryMB = scaleLimit(base.MemoryMB, p.MemoryMultiplier)
	return base
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 || multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

// DefaultProfiles returns the built-in language set. Battle problems ship
// starter code for a subset of these, but any of them is accepted on
// submit.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ID:         "javascript",
			SourceFile: "solution.js",
			RunCmdTpl:  "node {src}",
		},
		{
			ID:         "python",
			SourceFile: "solution.py",
			RunCmdTpl:  "python3 {src}",
		},
		{
			ID:               "c",
			SourceFile:       "solution.c",
			BinaryFile:       "solution",
			CompileCmdTpl:    "gcc -O2 -w -o {bin} {src}",
			RunCmdTpl:        "./{bin}",
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:               "cpp",
			SourceFile:       "solution.cpp",
			BinaryFile:       "solution",
			CompileCmdTpl:    "g++ -O2 -w -std=c++17 -o {bin} {src}",
			RunCmdTpl:        "./{bin}",
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:               "rust",
			SourceFile:       "solution.rs",
			BinaryFile:       "solution",
			CompileCmdTpl:    "rustc -O -o {bin} {src}",
			RunCmdTpl:        "./{bin}",
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:            "go",
			SourceFile:    "solution.go",
			BinaryFile:    "solution",
			CompileCmdTpl: "go build -o {bin} {src}",
			RunCmdTpl:     "./{bin}",
			Env: []string{
				"PATH=/usr/local/go/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
				"HOME=/tmp",
				"GOCACHE=/tmp/.gocache",
				"GOFLAGS=-mod=mod",
			},
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:               "java",
			SourceFile:       "Solution.java",
			BinaryFile:       "Solution.class",
			CompileCmdTpl:    "javac {src}",
			RunCmdTpl:        "java -XX:+UseSerialGC -Xss64m Solution",
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
	}
}

// Registry resolves language IDs to profiles.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry from config; an empty list falls back to
// the built-in profiles.
func NewRegistry(profiles []Profile) *Registry {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	m := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		m[strings.ToLower(p.ID)] = p
	}
	return &Registry{profiles: m}
}

// Lookup returns the profile for a language ID, case-insensitive.
func (r *Registry) Lookup(language string) (Profile, error) {
	id := strings.ToLower(strings.TrimSpace(language))
	if id == "" {
		return Profile{}, appErr.ValidationError("language", "required")
	}
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", id)
	}
	return p, nil
}

// Languages lists the supported language IDs in sorted order.
func (r *Registry) Languages() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
