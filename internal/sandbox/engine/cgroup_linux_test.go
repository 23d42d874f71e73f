//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"bitbattle/internal/sandbox/spec"
)

func TestCPUMaxValue(t *testing.T) {
	tests := []struct {
		name     string
		permille int64
		want     string
	}{
		{name: "half core", permille: 500, want: "50000 100000"},
		{name: "full core", permille: 1000, want: "100000 100000"},
		{name: "two cores", permille: 2000, want: "200000 100000"},
		{name: "unlimited", permille: 0, want: "max 100000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cpuMaxValue(tt.permille); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestApplyCgroupLimitsWritesControlFiles(t *testing.T) {
	dir := t.TempDir()
	limits := spec.ResourceLimit{
		CPUQuotaPermille: 500,
		MemoryMB:         128,
		PIDs:             50,
	}
	if err := applyCgroupLimits(dir, limits); err != nil {
		t.Fatalf("apply limits: %v", err)
	}

	checks := map[string]string{
		"pids.max":   "50",
		"memory.max": "134217728",
		"cpu.max":    "50000 100000",
	}
	for name, want := range checks {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != want {
			t.Fatalf("%s: expected %q, got %q", name, want, string(data))
		}
	}
}

func TestWasOomKilled(t *testing.T) {
	dir := t.TempDir()

	if wasOomKilled(dir) {
		t.Fatal("missing memory.events should not report an oom kill")
	}

	events := "low 0\nhigh 0\nmax 3\noom 1\noom_kill 1\n"
	if err := os.WriteFile(filepath.Join(dir, "memory.events"), []byte(events), 0644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if !wasOomKilled(dir) {
		t.Fatal("expected oom kill to be reported")
	}

	events = "low 0\nhigh 0\nmax 0\noom 0\noom_kill 0\n"
	if err := os.WriteFile(filepath.Join(dir, "memory.events"), []byte(events), 0644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if wasOomKilled(dir) {
		t.Fatal("zero oom_kill count should not be reported")
	}
}

func TestCreateRunCgroupRequiresRoot(t *testing.T) {
	if _, _, err := createRunCgroup("", "run"); err == nil {
		t.Fatal("expected error for empty cgroup root")
	}

	root := t.TempDir()
	path, cleanup, err := createRunCgroup(root, "run")
	if err != nil {
		t.Fatalf("create cgroup: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cgroup dir missing: %v", err)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected cgroup dir removed, stat err: %v", err)
	}
}
