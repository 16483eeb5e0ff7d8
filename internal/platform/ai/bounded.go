package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by runBounded when its own deadline passes before
// the generator answers. Expiry of the caller's context is reported as that
// context's error instead.
var ErrTimeout = errors.New("generation timed out")

type result struct {
	text string
	err  error
}

// runBounded runs fn on its own goroutine with a context that expires after
// timeout and waits for whichever comes first. The context handed to fn is
// cancelled on return; a generator that ignores it is abandoned and its
// eventual result discarded.
func runBounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	defer cancel()

	// Buffered so an abandoned goroutine can still send and exit.
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		text, err := fn(ctx)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(context.Cause(ctx), ErrTimeout) {
			return "", ErrTimeout
		}
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

// formatTimeout renders d the way fallback messages quote it.
func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int64(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
