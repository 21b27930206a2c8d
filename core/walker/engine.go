package walker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tristendillon/pytrace/core/logger"
)

// ExpandFunc returns the neighbours of node. An error marks only this node
// as a dead end; the walk continues with the rest of the frontier.
type ExpandFunc[N comparable] func(ctx context.Context, node N) ([]N, error)

type Walker[N comparable] interface {
	Walk(ctx context.Context, roots ...N) ([]N, error)
}

// Engine is a breadth-first graph walk with a shared visited set. Each
// frontier is expanded concurrently and its neighbours are merged in
// frontier order, so the visit order does not depend on scheduling.
type Engine[N comparable] struct {
	expand  ExpandFunc[N]
	workers int
	onError func(node N, err error)
}

func NewEngine[N comparable](expand ExpandFunc[N], workers int) *Engine[N] {
	if workers <= 0 {
		workers = 1
	}
	return &Engine[N]{
		expand:  expand,
		workers: workers,
		onError: func(node N, err error) {
			logger.Warn("Skipping dependencies of %v: %v", node, err)
		},
	}
}

// OnError replaces the default warning logged for a failed expansion.
func (e *Engine[N]) OnError(fn func(node N, err error)) *Engine[N] {
	e.onError = fn
	return e
}

// Walk visits every node reachable from roots exactly once and returns them
// in visit order, roots first. Cancelling ctx aborts the walk.
func (e *Engine[N]) Walk(ctx context.Context, roots ...N) ([]N, error) {
	visited := make(map[N]struct{})
	var order, frontier []N
	for _, root := range roots {
		if _, seen := visited[root]; seen {
			continue
		}
		visited[root] = struct{}{}
		order = append(order, root)
		frontier = append(frontier, root)
	}

	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := e.expandFrontier(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("walk depth %d: %w", depth, err)
		}

		var next []N
		for _, neighbours := range results {
			for _, n := range neighbours {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				order = append(order, n)
				next = append(next, n)
			}
		}
		logger.Debug("Walker: depth %d expanded %d nodes, discovered %d", depth, len(frontier), len(next))
		frontier = next
	}

	return order, nil
}

func (e *Engine[N]) expandFrontier(ctx context.Context, frontier []N) ([][]N, error) {
	results := make([][]N, len(frontier))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, node := range frontier {
		i, node := i, node
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			neighbours, err := e.expand(gCtx, node)
			if err != nil {
				if isContextError(err) && gCtx.Err() != nil {
					return err
				}
				e.onError(node, err)
				return nil
			}
			results[i] = neighbours
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
