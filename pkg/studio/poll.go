package studio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Poll waits interval, then calls fn, up to attempts times. It stops as soon
// as fn reports done and returns fn's error. An error with done=false is
// treated as transient and the next attempt proceeds. Running out of
// attempts yields ErrPollExhausted joined with the last transient error.
func Poll(ctx context.Context, interval time.Duration, attempts int, fn func(ctx context.Context, attempt int) (bool, error)) error {
	if attempts <= 0 {
		return fmt.Errorf("%w: no attempts allowed", ErrPollExhausted)
	}

	// A non-positive interval polls back to back.
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		done, err := fn(ctx, attempt)
		if done {
			return err
		}
		if err != nil {
			last = err
		}
	}
	if last != nil {
		return errors.Join(fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts), last)
	}
	return fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts)
}
