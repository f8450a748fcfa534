package engine

import (
	"context"

	"github.com/roach88/jagtrack/internal/store"
)

// Replay
//
// Replay is not a special mode: recorded observations go through Process,
// the same path live events take. Determinism follows from three things:
//
//  1. Observations are replayed in seq order, which is the order the
//     single-writer loop accepted them.
//  2. Model state is a pure function of that order. Orphan retries happen
//     at discovery time, so they replay at the same points.
//  3. Instance ids come from the IDGenerator. Replaying with a fresh
//     deterministic generator yields identical ids and so identical
//     publications.
//
// A replay engine is normally built without a store. When it is built
// with the store it replays from, the clock must start past LastSeq so
// that new rows never collide with recorded ones.

// Replay processes recorded observations in order. Failing events are
// logged and skipped, as in Run. Returns the number of failed events, or
// ctx's error if it was cancelled.
func (e *Engine) Replay(ctx context.Context, obs []store.Observation) (int, error) {
	failed := 0
	for _, o := range obs {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if err := e.Process(ctx, o.Event); err != nil {
			logEventError(o.Event, err)
			failed++
		}
	}
	return failed, nil
}
