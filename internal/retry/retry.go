// Package retry provides a bounded fixed-delay retry helper for exchange
// settlement waits, where a result is expected to appear within a few
// seconds of an order filling.
package retry

import (
	"context"
	"time"
)

// Do runs fn up to attempts times, sleeping delay between attempts. It stops
// early on the first nil error or when fn reports the failure is permanent.
// The delay honours ctx; cancellation returns ctx.Err() immediately.
//
// fn returns (done, err): done true with a nil err means success, done true
// with a non-nil err means the error is permanent and retrying is pointless.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := fn(attempt)
		if done || err == nil {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
