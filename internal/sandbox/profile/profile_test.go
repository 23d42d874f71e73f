package profile_test

import (
	"reflect"
	"testing"

	"bitbattle/internal/sandbox/profile"
	"bitbattle/internal/sandbox/spec"
	appErr "bitbattle/pkg/errors"
)

func TestRegistryLookup(t *testing.T) {
	reg := profile.NewRegistry(nil)

	tests := []struct {
		name     string
		language string
		wantID   string
		wantErr  bool
	}{
		{name: "exact", language: "python", wantID: "python"},
		{name: "mixed case", language: "JavaScript", wantID: "javascript"},
		{name: "padded", language: " cpp ", wantID: "cpp"},
		{name: "unknown", language: "ruby", wantErr: true},
		{name: "empty", language: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Lookup(tt.language)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.language)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookup %q: %v", tt.language, err)
			}
			if p.ID != tt.wantID {
				t.Fatalf("expected %q, got %q", tt.wantID, p.ID)
			}
		})
	}
}

func TestLookupUnknownCode(t *testing.T) {
	reg := profile.NewRegistry(nil)
	_, err := reg.Lookup("ruby")
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestRunCommandRendering(t *testing.T) {
	reg := profile.NewRegistry(nil)

	tests := []struct {
		language string
		want     []string
	}{
		{language: "python", want: []string{"python3", "solution.py"}},
		{language: "javascript", want: []string{"node", "solution.js"}},
		{language: "cpp", want: []string{"./solution"}},
		{language: "java", want: []string{"java", "-XX:+UseSerialGC", "-Xss64m", "Solution"}},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			p, err := reg.Lookup(tt.language)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			argv, err := p.RunCommand()
			if err != nil {
				t.Fatalf("run command: %v", err)
			}
			if !reflect.DeepEqual(argv, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, argv)
			}
		})
	}
}

func TestCompileCommandRendering(t *testing.T) {
	reg := profile.NewRegistry(nil)
	p, err := reg.Lookup("c")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !p.CompileEnabled() {
		t.Fatal("expected c to have a compile step")
	}
	argv, err := p.CompileCommand()
	if err != nil {
		t.Fatalf("compile command: %v", err)
	}
	want := []string{"gcc", "-O2", "-w", "-o", "solution", "solution.c"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
}

func TestApplyLimitsScalesCompiledLanguages(t *testing.T) {
	reg := profile.NewRegistry(nil)

	base := spec.DefaultLimits()

	interpreted, _ := reg.Lookup("python")
	got := interpreted.ApplyLimits(base)
	if got.WallTimeMs != base.WallTimeMs || got.MemoryMB != base.MemoryMB {
		t.Fatalf("expected unscaled limits for python, got %+v", got)
	}

	compiled, _ := reg.Lookup("rust")
	got = compiled.ApplyLimits(base)
	if got.WallTimeMs != 2*base.WallTimeMs {
		t.Fatalf("expected doubled wall time, got %d", got.WallTimeMs)
	}
	if got.MemoryMB != 2*base.MemoryMB {
		t.Fatalf("expected doubled memory, got %d", got.MemoryMB)
	}
	if got.PIDs != base.PIDs {
		t.Fatalf("pid cap should not scale, got %d", got.PIDs)
	}
}

func TestApplyLimitsNormalizesZeroBase(t *testing.T) {
	reg := profile.NewRegistry(nil)
	p, _ := reg.Lookup("python")

	got := p.ApplyLimits(spec.ResourceLimit{})
	if got.WallTimeMs != spec.DefaultWallTimeMs {
		t.Fatalf("expected default wall time, got %d", got.WallTimeMs)
	}
	if got.OutputKB != spec.DefaultOutputKB {
		t.Fatalf("expected default output cap, got %d", got.OutputKB)
	}
}

func TestLanguagesSorted(t *testing.T) {
	reg := profile.NewRegistry(nil)
	langs := reg.Languages()
	if len(langs) != 7 {
		t.Fatalf("expected 7 built-in languages, got %d: %v", len(langs), langs)
	}
	for i := 1; i < len(langs); i++ {
		if langs[i-1] >= langs[i] {
			t.Fatalf("expected sorted language list, got %v", langs)
		}
	}
}
