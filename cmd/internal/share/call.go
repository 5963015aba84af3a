package share

import (
	"context"
	"errors"
	"time"
)

type callResult[T any] struct {
	v   T
	err error
}

// storeCall runs fn under timeout. If fn does not return in time the caller gets
// context.DeadlineExceeded even when the store ignores ctx.
func storeCall[T any](ctx context.Context, g *Gate, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- callResult[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		g.metrics.observeStore(name, time.Since(start).Seconds())
		return r.v, r.err
	case <-ctx.Done():
		g.metrics.observeStore(name, time.Since(start).Seconds())
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// storeErr maps a store failure onto the gate's error taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return NotFoundError{Op: op, Resource: "share_token"}
	case errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, ErrConflict):
		return OpError{Op: op, Kind: ErrConflict}
	default:
		return StoreUnavailableError{Op: op, Err: err}
	}
}
