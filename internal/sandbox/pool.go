// Package sandbox runs untrusted submissions inside an isolated
// process tree with cgroup resource limits.
package sandbox

import (
	"context"
	"runtime"
	"time"

	appErr "bitbattle/pkg/errors"
)

// acquireWait bounds how long a caller blocks waiting for a free slot
// before the run is rejected as busy.
const acquireWait = 2 * time.Second

// Pool bounds concurrent sandbox executions. Each Run occupies one slot
// for its full compile-and-test lifetime.
type Pool struct {
	sem chan struct{}
}

// DefaultPoolSize returns the slot count used when none is configured.
func DefaultPoolSize() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool creates a pool with the given number of slots. Non-positive
// sizes fall back to DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot frees up, the context is cancelled, or
// the wait budget elapses.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(acquireWait):
		return appErr.New(appErr.SandboxBusy).WithMessage("all sandbox slots are busy")
	}
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	select {
	case <-p.sem:
	default:
	}
}

// Size reports the slot capacity.
func (p *Pool) Size() int {
	return cap(p.sem)
}
