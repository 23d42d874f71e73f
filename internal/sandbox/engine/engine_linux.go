//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"bitbattle/internal/sandbox/result"
	"bitbattle/internal/sandbox/spec"
	appErr "bitbattle/pkg/errors"
)

type linuxEngine struct {
	cfg Config
}

func newPlatformEngine(cfg Config) (Engine, error) {
	if cfg.HelperPath == "" {
		return nil, appErr.New(appErr.SandboxUnavailable).WithMessage("sandbox helper path is required")
	}
	if _, err := os.Stat(cfg.HelperPath); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox helper not found")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if len(runSpec.Argv) == 0 {
		return result.RunResult{}, appErr.ValidationError("argv", "required")
	}
	if runSpec.WorkDir == "" {
		return result.RunResult{}, appErr.ValidationError("work_dir", "required")
	}
	limits := runSpec.Limits.Normalize()

	if err := os.MkdirAll(runSpec.WorkDir, 0755); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.InternalServerError, "create work dir failed")
	}
	stdinPath := filepath.Join(runSpec.WorkDir, stdinFileName)
	if err := os.WriteFile(stdinPath, []byte(runSpec.Stdin), 0644); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.InternalServerError, "write stdin file failed")
	}

	var cgroupPath string
	if e.cfg.EnableCgroup {
		path, cleanup, err := createRunCgroup(e.cfg.CgroupRoot, uuid.NewString())
		if err != nil {
			return result.RunResult{}, err
		}
		defer cleanup()
		if err := applyCgroupLimits(path, limits); err != nil {
			return result.RunResult{}, err
		}
		cgroupPath = path
	}

	killCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(killCtx, e.cfg.HelperPath)
	cmd.Stdin = jsonToPipe(e.buildRequest(runSpec, limits))
	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr
	cmd.SysProcAttr = buildSysProcAttr(e.cfg.EnableNamespaces)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "start sandbox helper failed")
	}
	pid := cmd.Process.Pid

	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			killProcessGroup(pid)
			_ = cmd.Wait()
			return result.RunResult{}, err
		}
	}

	// The helper starts in its own process group and exec keeps the pgid,
	// so killing -pid takes the whole tree even without pid namespaces.
	var timedOut atomic.Bool
	wallTimer := time.NewTimer(time.Duration(limits.WallTimeMs) * time.Millisecond)
	defer wallTimer.Stop()
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-killCtx.Done():
			killProcessGroup(pid)
			if cgroupPath != "" {
				_ = killCgroup(cgroupPath)
			}
		case <-wallTimer.C:
			timedOut.Store(true)
			killProcessGroup(pid)
			if cgroupPath != "" {
				_ = killCgroup(cgroupPath)
			}
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := result.RunResult{
		DurationMs: time.Since(started).Milliseconds(),
		TimedOut:   timedOut.Load(),
		ExitCode:   exitCodeFromErr(waitErr, cmd.ProcessState),
	}
	if cgroupPath != "" {
		res.OOMKilled = wasOomKilled(cgroupPath)
		res.MemoryPeakKB = memoryPeakKB(cgroupPath, cmd.ProcessState)
	} else {
		res.MemoryPeakKB = rusageMaxRSSKB(cmd.ProcessState)
	}

	res.Stdout = readLimitedFile(filepath.Join(runSpec.WorkDir, stdoutFileName), e.cfg.StdoutStderrMaxBytes)
	res.Stderr = readLimitedFile(filepath.Join(runSpec.WorkDir, stderrFileName), e.cfg.StdoutStderrMaxBytes)
	if res.Stderr == "" && res.ExitCode != 0 && helperStderr.Len() > 0 {
		// Setup failed before the program redirected its streams.
		res.Stderr = truncateBytes(helperStderr.Bytes(), e.cfg.StdoutStderrMaxBytes)
	}
	return res, nil
}

func (e *linuxEngine) buildRequest(runSpec spec.RunSpec, limits spec.ResourceLimit) initRequest {
	innerWork := runSpec.WorkDir
	rootFS := ""
	var mounts []spec.MountSpec
	if e.cfg.EnableNamespaces && e.cfg.RootFS != "" {
		rootFS = e.cfg.RootFS
		innerWork = containerWorkDir
		mounts = []spec.MountSpec{{Source: runSpec.WorkDir, Target: containerWorkDir}}
	}
	return initRequest{
		Command: initCommand{
			WorkDir:    innerWork,
			Argv:       runSpec.Argv,
			Env:        runSpec.Env,
			StdinPath:  filepath.Join(innerWork, stdinFileName),
			StdoutPath: filepath.Join(innerWork, stdoutFileName),
			StderrPath: filepath.Join(innerWork, stderrFileName),
			BindMounts: mounts,
			Limits: initLimits{
				// RLIMIT_CPU backstop behind the wall-clock killer.
				CPUTimeMs: limits.WallTimeMs,
				StackMB:   limits.StackMB,
				OutputKB:  limits.OutputKB,
				PIDs:      limits.PIDs,
			},
		},
		Isolation: isolationProfile{
			RootFS:         rootFS,
			SeccompProfile: e.cfg.SeccompProfile,
			DisableNetwork: true,
		},
		EnableSeccomp: e.cfg.EnableSeccomp && e.cfg.SeccompProfile != "",
		EnableNs:      e.cfg.EnableNamespaces,
	}
}

func jsonToPipe(v interface{}) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		if err := enc.Encode(v); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return pr
}

func buildSysProcAttr(enableNs bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNs {
		return attr
	}
	// Battle runs never get network access.
	attr.Cloneflags = syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS |
		syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET | syscall.CLONE_NEWUSER
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	attr.GidMappingsEnableSetgroups = false
	return attr
}

func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -1
			}
			return status.ExitStatus()
		}
		return state.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func rusageMaxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok && ru != nil {
		return ru.Maxrss
	}
	return 0
}

// readLimitedFile returns up to max bytes of the file, or "" when the run
// never produced it.
func readLimitedFile(path string, max int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil {
		return ""
	}
	return string(data)
}

func truncateBytes(data []byte, max int64) string {
	if int64(len(data)) > max {
		data = data[:max]
	}
	return string(data)
}
