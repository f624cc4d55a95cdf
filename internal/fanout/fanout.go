// Package fanout runs independent per-item work with bounded parallelism
// while keeping results in input order.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every element of in and returns the results in input
// order. At most limit calls run at once; limit <= 1 runs sequentially on
// the calling goroutine.
//
// fn must encode its own failures in Out: one item's failure or slowness
// never cancels or reorders the others.
func Map[In, Out any](ctx context.Context, limit int, in []In, fn func(context.Context, In) Out) []Out {
	out := make([]Out, len(in))
	if limit <= 1 || len(in) <= 1 {
		for i, item := range in {
			out[i] = fn(ctx, item)
		}
		return out
	}

	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, item := range in {
		eg.Go(func() error {
			out[i] = fn(ctx, item)
			return nil
		})
	}
	_ = eg.Wait()

	return out
}
