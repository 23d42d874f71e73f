//go:build !linux

package engine

import (
	"context"

	"bitbattle/internal/sandbox/result"
	"bitbattle/internal/sandbox/spec"
	appErr "bitbattle/pkg/errors"
)

type stubEngine struct{}

func newPlatformEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.New(appErr.SandboxUnavailable).WithMessage("sandbox runs are only supported on linux")
}
