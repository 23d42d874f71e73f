// Package result holds the outcome of one sandboxed execution.
package result

// RunResult reports what a sandboxed process did. Stdout and Stderr are
// truncated to the engine's capture limit.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// DurationMs is wall-clock time from exec to exit.
	DurationMs int64

	// MemoryPeakKB is the cgroup memory high-water mark, when available.
	MemoryPeakKB int64

	// TimedOut is set when the engine killed the process group at the
	// wall-clock budget.
	TimedOut bool

	// OOMKilled is set when the cgroup memory controller killed the
	// process.
	OOMKilled bool
}

// Succeeded reports a clean zero exit within all budgets.
func (r RunResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.OOMKilled
}
