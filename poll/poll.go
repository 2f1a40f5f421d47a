// Package poll turns a status fetch into a lazy sequence of snapshots that
// ends at the first terminal status.
package poll

import (
	"context"
	"iter"
	"time"
)

// DefaultInterval is the wait between fetches.
const DefaultInterval = 3 * time.Second

// FetchFunc returns the current status.
type FetchFunc[S any] func(ctx context.Context) (S, error)

// Poll returns a sequence that fetches, yields the status, stops after a
// terminal one and otherwise waits interval before the next fetch.
//
// A fetch error is yielded once with the zero status and ends the sequence.
// Canceling ctx or breaking out of the range loop stops it without another
// fetch. Every range over the result starts a fresh poll.
func Poll[S any](ctx context.Context, fetch FetchFunc[S], isTerminal func(S) bool, interval time.Duration) iter.Seq2[S, error] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return func(yield func(S, error) bool) {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			status, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				var zero S
				yield(zero, err)
				return
			}
			if !yield(status, nil) || isTerminal(status) {
				return
			}

			if timer == nil {
				timer = time.NewTimer(interval)
			} else {
				timer.Reset(interval)
			}
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
	}
}

// Until drains seq and returns the last status. It returns the yielded error,
// or ctx.Err() when the sequence stopped before a terminal status.
func Until[S any](ctx context.Context, seq iter.Seq2[S, error], isTerminal func(S) bool) (S, error) {
	var last S
	for status, err := range seq {
		if err != nil {
			return last, err
		}
		last = status
		if isTerminal(status) {
			return last, nil
		}
	}
	return last, ctx.Err()
}
