package engine

import "bitbattle/internal/sandbox/spec"

// initRequest is the JSON contract with the sandbox-init helper, which
// mirrors these structs with its own local types.
type initRequest struct {
	Command       initCommand
	Isolation     isolationProfile
	EnableSeccomp bool
	EnableNs      bool
}

type initCommand struct {
	WorkDir    string
	Argv       []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []spec.MountSpec
	Limits     initLimits
}

// initLimits carries only the limits the helper enforces via setrlimit.
// Wall time, memory and pid caps are enforced by the engine's cgroup.
type initLimits struct {
	CPUTimeMs int64
	StackMB   int64
	OutputKB  int64
	PIDs      int64
}

type isolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}
