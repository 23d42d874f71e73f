package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"bitbattle/internal/sandbox/engine"
	"bitbattle/internal/sandbox/profile"
	"bitbattle/internal/sandbox/result"
	"bitbattle/internal/sandbox/spec"
	appErr "bitbattle/pkg/errors"
)

// Compile budgets. Toolchains need more room than the run itself, rustc
// and javac in particular.
const (
	compileWallTimeMs = 15000
	compileMemoryMB   = 512
)

// Runner prepares submission workspaces and executes them test by test.
type Runner struct {
	engine     engine.Engine
	profiles   *profile.Registry
	workRoot   string
	baseLimits spec.ResourceLimit
}

// RunnerConfig holds Runner dependencies and settings.
type RunnerConfig struct {
	Engine   engine.Engine
	Profiles *profile.Registry
	// WorkRoot is the host directory under which per-run workspaces are
	// created and removed.
	WorkRoot string
	// BaseLimits is the per-test budget before language multipliers.
	BaseLimits spec.ResourceLimit
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, appErr.New(appErr.SandboxUnavailable).WithMessage("sandbox engine is required")
	}
	if cfg.WorkRoot == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if cfg.Profiles == nil {
		cfg.Profiles = profile.NewRegistry(nil)
	}
	return &Runner{
		engine:     cfg.Engine,
		profiles:   cfg.Profiles,
		workRoot:   cfg.WorkRoot,
		baseLimits: cfg.BaseLimits.Normalize(),
	}, nil
}

// Languages lists the language IDs this runner accepts.
func (r *Runner) Languages() []string {
	return r.profiles.Languages()
}

// Execution is one prepared submission: source written to its workspace
// and compiled when the language requires it. Close releases the
// workspace.
type Execution struct {
	runner  *Runner
	prof    profile.Profile
	workDir string
	argv    []string
	limits  spec.ResourceLimit
}

// Prepare creates the workspace for runID, writes the source file and
// runs the compile step. A failed compile returns a CompilationError
// whose message is the compiler output.
func (r *Runner) Prepare(ctx context.Context, runID, language, source string) (*Execution, error) {
	prof, err := r.profiles.Lookup(language)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, appErr.ValidationError("run_id", "required")
	}

	workDir := filepath.Join(r.workRoot, runID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create workspace failed")
	}
	ex := &Execution{
		runner:  r,
		prof:    prof,
		workDir: workDir,
		limits:  prof.ApplyLimits(r.baseLimits),
	}

	if err := os.WriteFile(filepath.Join(workDir, prof.SourceFile), []byte(source), 0644); err != nil {
		ex.Close()
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "write source failed")
	}

	if prof.CompileEnabled() {
		if err := r.compile(ctx, ex); err != nil {
			ex.Close()
			return nil, err
		}
	}

	argv, err := prof.RunCommand()
	if err != nil {
		ex.Close()
		return nil, err
	}
	ex.argv = argv
	return ex, nil
}

func (r *Runner) compile(ctx context.Context, ex *Execution) error {
	argv, err := ex.prof.CompileCommand()
	if err != nil {
		return err
	}
	limits := ex.limits
	if limits.WallTimeMs < compileWallTimeMs {
		limits.WallTimeMs = compileWallTimeMs
	}
	if limits.MemoryMB < compileMemoryMB {
		limits.MemoryMB = compileMemoryMB
	}
	res, err := r.engine.Run(ctx, spec.RunSpec{
		Argv:    argv,
		Env:     ex.prof.Env,
		WorkDir: ex.workDir,
		Limits:  limits,
	})
	if err != nil {
		return err
	}
	if res.TimedOut {
		return appErr.New(appErr.CompilationError).WithMessage("compilation timed out")
	}
	if !res.Succeeded() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			msg = "compilation failed"
		}
		return appErr.New(appErr.CompilationError).WithMessage(msg)
	}
	return nil
}

// RunTest executes the prepared program once, feeding input on stdin.
func (e *Execution) RunTest(ctx context.Context, input string) (result.RunResult, error) {
	return e.runner.engine.Run(ctx, spec.RunSpec{
		Argv:    e.argv,
		Env:     e.prof.Env,
		WorkDir: e.workDir,
		Stdin:   input,
		Limits:  e.limits,
	})
}

// Limits reports the per-test budget after language multipliers.
func (e *Execution) Limits() spec.ResourceLimit {
	return e.limits
}

// Close removes the workspace. Safe to call more than once.
func (e *Execution) Close() {
	if e.workDir != "" {
		_ = os.RemoveAll(e.workDir)
		e.workDir = ""
	}
}
