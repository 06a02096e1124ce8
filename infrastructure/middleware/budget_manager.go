// Package middleware provides cross-cutting concerns for the tally engine.
// It implements the middleware/wrapper pattern to keep counting logic clean
// while adding resource limits and observability.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Apportioner = (*BudgetManager)(nil)

// Budget defines the size limits a single count may reach.
type Budget struct {
	// MaxBallots limits the number of ballots in the preference tree.
	// Zero means unlimited.
	MaxBallots int

	// MaxCandidates limits the number of distinct first preferences.
	// Zero means unlimited.
	MaxCandidates int
}

// Usage is the size of one count measured against a Budget.
type Usage struct {
	Ballots    int
	Candidates int
}

// UsageOf measures tree.
func UsageOf(tree *domain.PreferenceTree[domain.Party]) Usage {
	if tree == nil {
		return Usage{}
	}
	return Usage{Ballots: tree.Ballots(), Candidates: tree.Len()}
}

// BudgetExceededError reports which limit a count exceeded.
type BudgetExceededError struct {
	// LimitType is "ballots" or "candidates".
	LimitType string
	// Limit is the configured maximum.
	Limit int
	// Used is the measured value.
	Used int
	// Apportioner is the name of the wrapped apportioner.
	Apportioner string
}

// ErrBudgetExceeded is matched by every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%v: %s limit %d, used %d (apportioner %s)",
		ErrBudgetExceeded, e.LimitType, e.Limit, e.Used, e.Apportioner)
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// BudgetObserver provides observability hooks for budget operations.
// Implementations can add tracing, metrics, and logging without
// coupling observability concerns to core budget logic.
type BudgetObserver interface {
	// PreCheck is called before the limits are checked. The returned context
	// is passed to the wrapped apportioner and to PostCheck.
	PreCheck(ctx context.Context, usage Usage, budget Budget) context.Context

	// PostCheck is called once the count has finished or was refused.
	PostCheck(ctx context.Context, usage Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager refuses to run counts whose preference tree is larger than
// the configured budget. It holds no mutable state and is safe for
// concurrent use.
type BudgetManager struct {
	// budget holds the immutable budget limits for this manager.
	budget Budget

	// next is the apportioner that performs the count.
	next ports.Apportioner

	// observer provides optional observability hooks for tracing and metrics.
	observer BudgetObserver
}

// NewBudgetManager wraps next with the given limits. The observer is
// optional.
func NewBudgetManager(budget Budget, next ports.Apportioner, observer BudgetObserver) (*BudgetManager, error) {
	if next == nil {
		return nil, fmt.Errorf("budget manager: next apportioner is required")
	}
	bm := &BudgetManager{
		budget:   budget,
		next:     next,
		observer: observer,
	}
	if err := bm.Validate(); err != nil {
		return nil, err
	}
	return bm, nil
}

// Name returns the wrapped apportioner's name so outcomes and metrics keep
// identifying the counting unit.
func (bm *BudgetManager) Name() string { return bm.next.Name() }

// Apportion checks the tree against the budget and delegates to the wrapped
// apportioner when it fits.
func (bm *BudgetManager) Apportion(
	ctx context.Context,
	tree *domain.PreferenceTree[domain.Party],
	seats int,
) (*domain.FrequencyTable[domain.Party], error) {
	usage := UsageOf(tree)
	if bm.observer != nil {
		ctx = bm.observer.PreCheck(ctx, usage, bm.budget)
	}

	start := time.Now()
	result, err := bm.apportion(ctx, usage, tree, seats)
	if bm.observer != nil {
		bm.observer.PostCheck(ctx, usage, bm.budget, time.Since(start), err)
	}
	return result, err
}

func (bm *BudgetManager) apportion(
	ctx context.Context,
	usage Usage,
	tree *domain.PreferenceTree[domain.Party],
	seats int,
) (*domain.FrequencyTable[domain.Party], error) {
	if err := bm.checkBudgetLimits(usage); err != nil {
		return nil, err
	}
	return bm.next.Apportion(ctx, tree, seats)
}

// Validate checks that the limits are non-negative and the wrapped
// apportioner is valid.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxBallots < 0 {
		return fmt.Errorf("budget manager: max_ballots cannot be negative, got %d", bm.budget.MaxBallots)
	}

	if bm.budget.MaxCandidates < 0 {
		return fmt.Errorf("budget manager: max_candidates cannot be negative, got %d", bm.budget.MaxCandidates)
	}

	return bm.next.Validate()
}

// checkBudgetLimits returns a *BudgetExceededError for the first limit usage
// exceeds.
func (bm *BudgetManager) checkBudgetLimits(usage Usage) error {
	if bm.budget.MaxBallots > 0 && usage.Ballots > bm.budget.MaxBallots {
		return &BudgetExceededError{
			LimitType:   "ballots",
			Limit:       bm.budget.MaxBallots,
			Used:        usage.Ballots,
			Apportioner: bm.next.Name(),
		}
	}

	if bm.budget.MaxCandidates > 0 && usage.Candidates > bm.budget.MaxCandidates {
		return &BudgetExceededError{
			LimitType:   "candidates",
			Limit:       bm.budget.MaxCandidates,
			Used:        usage.Candidates,
			Apportioner: bm.next.Name(),
		}
	}

	return nil
}
