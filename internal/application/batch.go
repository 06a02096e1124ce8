package application

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-tally/internal/ports"
)

// DefaultBatchConcurrency bounds RunElections when no limit is given.
const DefaultBatchConcurrency = 8

// RunElections counts independent elections concurrently with the same
// apportioner. At most limit counts run at once; limit <= 0 selects
// DefaultBatchConcurrency.
//
// Outcomes are returned in the order of elections. The first failure cancels
// the context of counts that have not started yet and is returned; counts
// already running finish, since a single count is not interruptible.
//
// Each election's ballots must have been fully cast before the call.
func RunElections(
	ctx context.Context,
	elections []*Election,
	apportioner ports.Apportioner,
	limit int,
) ([]*ElectionOutcome, error) {
	if apportioner == nil {
		return nil, fmt.Errorf("apportioner cannot be nil")
	}
	for i, e := range elections {
		if e == nil {
			return nil, fmt.Errorf("election %d is nil", i)
		}
	}

	outcomes := make([]*ElectionOutcome, len(elections))

	g, gctx := errgroup.WithContext(ctx)
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}
	g.SetLimit(limit)

	for i, e := range elections {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := e.Run(gctx, apportioner)
			if err != nil {
				return fmt.Errorf("election %d: %w", i, err)
			}
			// Each goroutine owns a distinct index.
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
