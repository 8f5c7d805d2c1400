// Package host drives vm threads from Go: it starts a thread, answers its
// suspensions through a Resumer and maps context cancellation onto
// Thread.Cancel. Timeouts are a host policy, so they live here and not in
// the vm package.
package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/quill/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("quill.host")

var (
	// ErrCancelled is returned when a thread was cancelled by something
	// other than the driving context.
	ErrCancelled = errors.New("thread cancelled")

	// ErrNoResumer is returned when a thread yields and Run has no
	// Resumer to answer it.
	ErrNoResumer = errors.New("thread yielded without a resumer")
)

// Resumer answers a suspended thread. yielded is the value the thread
// handed out; the returned value becomes the result of the suspending
// expression.
type Resumer interface {
	Resume(ctx context.Context, t *vm.Thread, yielded vm.Primitive) (vm.Primitive, error)
}

// ResumerFunc adapts a function to Resumer.
type ResumerFunc func(ctx context.Context, t *vm.Thread, yielded vm.Primitive) (vm.Primitive, error)

func (f ResumerFunc) Resume(ctx context.Context, t *vm.Thread, yielded vm.Primitive) (vm.Primitive, error) {
	return f(ctx, t, yielded)
}

// Run starts t and drives it to a terminal state. Cancelling ctx cancels
// the thread, including while it is executing.
//
// The returned error is the thread's runtime error, the resumer's error,
// or the context error when ctx ended the run.
func Run(ctx context.Context, t *vm.Thread, r Resumer) (vm.Primitive, error) {
	stop := context.AfterFunc(ctx, t.Cancel)
	defer stop()

	status, err := t.Start()
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return vm.Null, cause
		}
		return vm.Null, err
	}
	for {
		switch status {
		case vm.StatusFinished:
			return t.Result()

		case vm.StatusError:
			return vm.Null, t.Err()

		case vm.StatusCancelled:
			return vm.Null, cancelled(ctx, t)

		case vm.StatusYield:
			if r == nil {
				t.Cancel()
				<-t.Done()
				return vm.Null, ErrNoResumer
			}
			v, err := r.Resume(ctx, t, t.Yielded())
			if err != nil {
				if context.Cause(ctx) != nil {
					t.Cancel()
					return vm.Null, cancelled(ctx, t)
				}
				t.Fail(fmt.Errorf("resume: %w", err))
				if t.Status() == vm.StatusCancelled {
					return vm.Null, cancelled(ctx, t)
				}
				return vm.Null, t.Err()
			}
			log.Debugf("thread %s: resuming with %s", t.ID(), v.AsString())
			status, err = t.Resume(v)
			if err != nil {
				// Cancelled between the resumer returning and the resume.
				if s := t.Status(); s.Terminal() {
					status = s
					continue
				}
				return vm.Null, err
			}

		default:
			return vm.Null, fmt.Errorf("%w: unexpected status %s", vm.ErrProtocol, status)
		}
	}
}

// cancelled waits for a cancelled thread's shutdown sweep and reports why
// it was cancelled.
func cancelled(ctx context.Context, t *vm.Thread) error {
	<-t.Done()
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ErrCancelled
}
