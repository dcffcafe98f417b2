package registry

import (
	"context"
	"errors"
)

type result[T any] struct {
	value    T
	endpoint string
	err      error
}

// firstSuccess runs try against every endpoint concurrently and returns the
// first success. Losing calls finish into the buffered channel and are dropped.
func firstSuccess[T any](ctx context.Context, endpoints []string, try func(context.Context, string) (T, error)) (T, string, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, "", errors.New("no endpoints")
	}

	results := make(chan result[T], len(endpoints))
	for _, endpoint := range endpoints {
		go func() {
			v, err := try(ctx, endpoint)
			results <- result[T]{value: v, endpoint: endpoint, err: err}
		}()
	}

	var errs []error
	for range endpoints {
		select {
		case r := <-results:
			if r.err == nil {
				return r.value, r.endpoint, nil
			}
			errs = append(errs, r.err)
		case <-ctx.Done():
			return zero, "", ctx.Err()
		}
	}
	return zero, "", errors.Join(errs...)
}
