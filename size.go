package ftptree

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DirSizeParallel computes the same sum as t.DirSize(dir), but spreads the
// per-file SIZE queries over sessions. Each session is driven by exactly
// one goroutine, so every session still sees one command at a time.
//
// The listing itself runs on t's session, which may also appear in sessions.
// With no sessions it is equivalent to t.DirSize.
func DirSizeParallel(ctx context.Context, t *Tree, dir string, sessions []Executor) (int64, error) {
	if len(sessions) == 0 {
		return t.DirSize(dir)
	}

	targets, err := t.sizeTargets(dir)
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	paths := make(chan string)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(paths)
		for _, e := range targets {
			select {
			case paths <- e.Path:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for _, s := range sessions {
		g.Go(func() error {
			for p := range paths {
				n, err := querySize(s, p)
				if err != nil {
					return err
				}
				if n > 0 {
					total.Add(n)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}
