package engine

// Config controls sandbox engine behavior. The zero value runs programs
// as plain host processes, which is only acceptable for local development.
type Config struct {
	// HelperPath is the sandbox-init binary that performs stage-2 setup
	// (mounts, chroot, rlimits, seccomp) before exec'ing the program.
	HelperPath string `yaml:"helper_path"`

	// CgroupRoot is the cgroup v2 directory runs are created under.
	CgroupRoot string `yaml:"cgroup_root"`

	// RootFS is the chroot image for sandboxed runs. When set, the work
	// directory is bind-mounted at /work inside it. Populated from
	// SANDBOX_IMAGE.
	RootFS string `yaml:"rootfs"`

	// SeccompProfile is a JSON syscall policy applied by the helper.
	SeccompProfile string `yaml:"seccomp_profile"`

	// StdoutStderrMaxBytes caps how much program output the engine reads
	// back per stream.
	StdoutStderrMaxBytes int64 `yaml:"stdout_stderr_max_bytes"`

	EnableCgroup     bool `yaml:"enable_cgroup"`
	EnableNamespaces bool `yaml:"enable_namespaces"`
	EnableSeccomp    bool `yaml:"enable_seccomp"`
}

const (
	defaultCgroupRoot   = "/sys/fs/cgroup/bitbattle"
	defaultCaptureBytes = 1 << 20
	containerWorkDir    = "/work"
	stdinFileName       = "stdin.txt"
	stdoutFileName      = "stdout.txt"
	stderrFileName      = "stderr.txt"
)

func (c Config) withDefaults() Config {
	if c.CgroupRoot == "" {
		c.CgroupRoot = defaultCgroupRoot
	}
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultCaptureBytes
	}
	return c
}
