// Package engine executes untrusted programs inside a cgroup, namespace
// and seccomp jail via the sandbox-init helper binary.
package engine

import (
	"context"

	"bitbattle/internal/sandbox/result"
	"bitbattle/internal/sandbox/spec"
)

// Engine executes one RunSpec inside an isolated sandbox. A non-nil error
// means the engine itself failed; program misbehavior (non-zero exit,
// timeout, OOM) is reported through the RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// New creates the platform engine.
func New(cfg Config) (Engine, error) {
	return newPlatformEngine(cfg.withDefaults())
}
