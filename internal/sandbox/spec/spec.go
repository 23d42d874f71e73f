// Package spec defines the contract between callers and the sandbox engine.
package spec

// ResourceLimit bounds one sandboxed process tree.
type ResourceLimit struct {
	// WallTimeMs is the hard wall-clock budget. The engine kills the
	// process group when it elapses.
	WallTimeMs int64

	// CPUQuotaPermille caps CPU bandwidth through the cgroup cpu
	// controller, in thousandths of one core (500 = half a core).
	CPUQuotaPermille int64

	// MemoryMB caps the cgroup memory controller.
	MemoryMB int64

	// StackMB is applied as RLIMIT_STACK inside the sandbox.
	StackMB int64

	// OutputKB caps bytes written to stdout/stderr files (RLIMIT_FSIZE).
	OutputKB int64

	// PIDs caps the number of tasks in the cgroup.
	PIDs int64
}

// Default limits for one test execution. Compiled languages receive a
// doubled wall/memory budget through the language profile.
const (
	DefaultWallTimeMs       int64 = 5000
	DefaultCPUQuotaPermille int64 = 500
	DefaultMemoryMB         int64 = 128
	DefaultStackMB          int64 = 64
	DefaultOutputKB         int64 = 1024
	DefaultPIDs             int64 = 50
)

// DefaultLimits returns the standard per-run resource budget.
func DefaultLimits() ResourceLimit {
	return ResourceLimit{
		WallTimeMs:       DefaultWallTimeMs,
		CPUQuotaPermille: DefaultCPUQuotaPermille,
		MemoryMB:         DefaultMemoryMB,
		StackMB:          DefaultStackMB,
		OutputKB:         DefaultOutputKB,
		PIDs:             DefaultPIDs,
	}
}

// Normalize fills zero fields with defaults.
func (l ResourceLimit) Normalize() ResourceLimit {
	if l.WallTimeMs <= 0 {
		l.WallTimeMs = DefaultWallTimeMs
	}
	if l.CPUQuotaPermille <= 0 {
		l.CPUQuotaPermille = DefaultCPUQuotaPermille
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = DefaultMemoryMB
	}
	if l.StackMB <= 0 {
		l.StackMB = DefaultStackMB
	}
	if l.OutputKB <= 0 {
		l.OutputKB = DefaultOutputKB
	}
	if l.PIDs <= 0 {
		l.PIDs = DefaultPIDs
	}
	return l
}

// Scale multiplies the wall and memory budgets, used for compiled
// languages that pay a startup cost.
func (l ResourceLimit) Scale(factor int64) ResourceLimit {
	if factor <= 1 {
		return l
	}
	l.WallTimeMs *= factor
	l.MemoryMB *= factor
	return l
}

// RunSpec describes one process execution inside the sandbox.
type RunSpec struct {
	// Argv is the command to exec, argv[0] included.
	Argv []string

	// Env is the environment in KEY=VALUE form; empty means a minimal
	// PATH-only environment.
	Env []string

	// WorkDir is the host directory holding the submission workspace.
	// It is bind-mounted read-write into the sandbox root.
	WorkDir string

	// Stdin is fed to the process on standard input.
	Stdin string

	Limits ResourceLimit
}

// MountSpec is one bind mount applied by the stage-2 init helper.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}
