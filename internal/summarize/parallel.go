package summarize

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/crux/internal/logging"
)

// parallel runs components on up to workers goroutines. A component is
// released once every component it calls has finished, so a function never
// starts before the results of its non-cyclic callees are committed.
func (r *run) parallel(ctx context.Context, workers int) error {
	n := len(r.comps)
	if n == 0 {
		return nil
	}

	pending := make([]int, n)
	dependents := make([][]int, n)
	for i, comp := range r.comps {
		seen := make(map[int]struct{})
		for _, id := range comp {
			for _, callee := range r.g.Callees(id) {
				j := r.compOf[callee]
				if j == i {
					continue
				}
				if _, dup := seen[j]; dup {
					continue
				}
				seen[j] = struct{}{}
				pending[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	var ready []int
	for i := range pending {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	logger := logging.FromContext(ctx)
	logger.Debug("parallel schedule", "workers", workers, "initially_ready", len(ready))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	finished := make(chan int, n)

	remaining := n
loop:
	for remaining > 0 {
		for _, i := range ready {
			eg.Go(func() error {
				if err := r.component(egCtx, i); err != nil {
					return err
				}
				finished <- i
				return nil
			})
		}
		ready = ready[:0]

		select {
		case i := <-finished:
			remaining--
			for _, dep := range dependents[i] {
				pending[dep]--
				if pending[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		case <-egCtx.Done():
			break loop
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if remaining > 0 {
		return ctx.Err()
	}
	return nil
}
