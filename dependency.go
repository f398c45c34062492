package portalauth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// dependencyRunner bounds a single store, registry or mailer call.
type dependencyRunner struct {
	timeout time.Duration
}

// run calls fn under the configured timeout. Errors matching one of
// passthrough are returned untouched; a deadline becomes ErrDependencyTimeout
// and anything else ErrDependencyUnavailable.
func (r dependencyRunner) run(ctx context.Context, fn func(context.Context) error, passthrough ...error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	return classifyDependencyError(err, callCtx)
}

func classifyDependencyError(err error, callCtx context.Context) error {
	if errors.Is(err, ErrDependencyTimeout) || errors.Is(err, ErrDependencyUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrDependencyTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

func isDependencyError(err error) bool {
	return errors.Is(err, ErrDependencyTimeout) || errors.Is(err, ErrDependencyUnavailable)
}
