package domain

import (
	"fmt"
	"math"
	"slices"
)

// DefaultTolerance is the relative slack applied when comparing tallies
// against the quota. Repeated quota deductions accumulate rounding error,
// and without slack an exact tie with the quota can read as just below it.
const DefaultTolerance = 1e-9

// ApportionOption configures a single Apportion call.
type ApportionOption[C comparable] func(*apportionConfig[C])

type apportionConfig[C comparable] struct {
	tieBreaker TieBreaker[C]
	observer   func(Round[C]) error
	tolerance  float64
}

// WithTieBreaker replaces the default first-seen tie-breaking rule.
func WithTieBreaker[C comparable](tb TieBreaker[C]) ApportionOption[C] {
	return func(c *apportionConfig[C]) { c.tieBreaker = tb }
}

// WithRoundObserver registers fn to be called after every round. A non-nil
// error from fn stops apportionment and is returned to the caller wrapped
// in a TallyError.
func WithRoundObserver[C comparable](fn func(Round[C]) error) ApportionOption[C] {
	return func(c *apportionConfig[C]) { c.observer = fn }
}

// WithTolerance overrides DefaultTolerance. Negative values are treated as 0.
func WithTolerance[C comparable](tol float64) ApportionOption[C] {
	return func(c *apportionConfig[C]) { c.tolerance = max(tol, 0) }
}

// Apportion distributes numSeats among the candidates in tree using a
// quota-threshold elimination count. With one seat this is instant-runoff;
// with more it is a single-transferable-vote variant.
//
// The quota is totalVotes/numSeats. Each round the leading candidate wins a
// seat if their tally reaches the quota, or if the whole remaining tally is
// no more than the quota times the number of open seats, in which case no
// rival can ever reach the quota. A seat costs the winner exactly one quota.
// Any surplus above the quota stays with the winner and is not transferred
// to later preferences, unlike textbook STV.
//
// When no seat can be awarded, every candidate holding the minimum tally is
// eliminated and the ballots that first-preferred them flow to their next
// preference still in the tally, skipping over candidates already gone. An
// elimination never leaves fewer candidates than open seats: if the tied
// minority is too large, only the candidates ranked last by the tie-breaker
// are removed.
//
// The result maps candidates to seats won and sums to numSeats. A candidate
// may win more than one seat.
//
// Errors:
//   - ErrInvalidArgument: nil tree or numSeats < 1
//   - ErrDegenerateInput: the tree holds no votes
//   - ErrBallotsExhausted: the tally emptied with seats unfilled; this
//     cannot happen for a tree with votes and is kept as a safety net
//   - *TallyError: the round observer aborted the count
//
// The tree is never modified, so independent trees may be apportioned
// concurrently.
func Apportion[C comparable](tree *PreferenceTree[C], numSeats int, opts ...ApportionOption[C]) (*FrequencyTable[C], error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: preference tree is nil", ErrInvalidArgument)
	}
	if numSeats < 1 {
		return nil, fmt.Errorf("%w: number of seats must be at least 1, got %d", ErrInvalidArgument, numSeats)
	}
	totalVotes := tree.TotalVotes()
	if totalVotes <= 0 {
		return nil, fmt.Errorf("%w: no votes to apportion %d seats", ErrDegenerateInput, numSeats)
	}

	cfg := apportionConfig[C]{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tieBreaker == nil {
		cfg.tieBreaker = FirstSeenTieBreaker(tree)
	}

	c := counter[C]{
		apportionConfig: cfg,
		tree:            tree,
		quota:           totalVotes / float64(numSeats),
		tally:           tree.FirstPreferenceTotals(),
		seats:           NewFrequencyTable[C](nil),
		numSeats:        numSeats,
	}
	if err := c.run(); err != nil {
		return nil, err
	}
	return c.seats, nil
}

// InstantRunoff runs a single-seat count and returns the winner.
func InstantRunoff[C comparable](tree *PreferenceTree[C], opts ...ApportionOption[C]) (C, error) {
	var zero C
	seats, err := Apportion(tree, 1, opts...)
	if err != nil {
		return zero, err
	}
	return seats.Keys()[0], nil
}

// counter holds the mutable state of one apportionment run.
type counter[C comparable] struct {
	apportionConfig[C]
	tree     *PreferenceTree[C]
	quota    float64
	tally    *FrequencyTable[C]
	seats    *FrequencyTable[C]
	numSeats int
	filled   int
}

func (c *counter[C]) run() error {
	for round := 1; c.filled < c.numSeats; round++ {
		if c.tally.Len() == 0 {
			return fmt.Errorf("%w: %d of %d seats filled", ErrBallotsExhausted, c.filled, c.numSeats)
		}

		ranked := c.ranked()
		r := Round[C]{
			Number: round,
			Quota:  c.quota,
			Tally:  c.tally.Map(),
			Leader: c.leader(ranked),
		}

		var err error
		if c.canAward(r.Leader, &r) {
			err = c.award(ranked, &r)
		} else {
			err = c.eliminate(ranked, &r)
		}
		if err != nil {
			return err
		}
		r.SeatsFilled = c.filled

		if c.observer != nil {
			if err := c.observer(r); err != nil {
				return NewTallyError(fmt.Sprintf("round %d", round), err)
			}
		}
	}
	return nil
}

// ranked returns the tally's candidates in tie-break order.
func (c *counter[C]) ranked() []C {
	keys := c.tally.Keys()
	slices.SortStableFunc(keys, c.tieBreaker)
	return keys
}

// leader returns the first candidate in tie-break order holding the
// highest tally.
func (c *counter[C]) leader(ranked []C) C {
	best := ranked[0]
	for _, cand := range ranked[1:] {
		if c.tally.Get(cand) > c.tally.Get(best) {
			best = cand
		}
	}
	return best
}

// canAward applies the award test and records whether the award is forced.
func (c *counter[C]) canAward(leader C, r *Round[C]) bool {
	if c.atLeast(c.tally.Get(leader), c.quota) {
		return true
	}
	open := float64(c.numSeats - c.filled)
	if c.atMost(c.tally.Total(), open*c.quota) {
		r.Forced = true
		return true
	}
	return false
}

func (c *counter[C]) award(ranked []C, r *Round[C]) error {
	r.Kind = RoundAward
	top := c.tally.Get(r.Leader)
	for _, cand := range ranked {
		if cand != r.Leader && c.tally.Get(cand) == top {
			r.TiedWith = append(r.TiedWith, cand)
		}
	}

	c.seats.Inc(r.Leader)
	c.filled++
	if err := c.tally.Remove(r.Leader, c.quota); err != nil {
		return err
	}
	// Rounding residue left after deducting the quota is not a real vote.
	if c.tally.Get(r.Leader) <= c.tolerance*c.quota {
		c.tally.Delete(r.Leader)
	}
	return nil
}

// eliminate removes the minority candidates and redistributes the ballots
// that first-preferred them. Descent through already-removed candidates uses
// an explicit FIFO worklist so deep ballots cannot exhaust the stack.
func (c *counter[C]) eliminate(ranked []C, r *Round[C]) error {
	r.Kind = RoundEliminate
	minFreq := math.Inf(1)
	for _, cand := range ranked {
		minFreq = min(minFreq, c.tally.Get(cand))
	}
	for _, cand := range ranked {
		if c.tally.Get(cand) == minFreq {
			r.Eliminated = append(r.Eliminated, cand)
		}
	}
	// At least one candidate must remain per open seat. When the minority is
	// larger than that allows, the tied candidates ranked last go first.
	if keep := c.numSeats - c.filled; len(ranked)-len(r.Eliminated) < keep {
		drop := max(len(ranked)-keep, 1)
		r.Eliminated = r.Eliminated[len(r.Eliminated)-drop:]
	}

	queue := make([]*PreferenceNode[C], 0, len(r.Eliminated))
	for _, cand := range r.Eliminated {
		c.tally.Delete(cand)
		if node, ok := c.tree.FirstPreference(cand); ok {
			queue = append(queue, node)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range c.sortedChildren(node) {
			child := node.children[next]
			if c.tally.Contains(next) {
				if err := c.tally.Add(next, child.voteCount); err != nil {
					return err
				}
				r.Transferred += child.voteCount
				continue
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// sortedChildren returns node's child keys in tie-break order so that
// floating-point accumulation happens in a reproducible order.
func (c *counter[C]) sortedChildren(node *PreferenceNode[C]) []C {
	keys := make([]C, 0, len(node.children))
	for k := range node.children {
		keys = append(keys, k)
	}
	slices.SortStableFunc(keys, c.tieBreaker)
	return keys
}

func (c *counter[C]) slack(ref float64) float64 {
	return c.tolerance * max(1, math.Abs(ref))
}

func (c *counter[C]) atLeast(v, ref float64) bool { return v >= ref-c.slack(ref) }

func (c *counter[C]) atMost(v, ref float64) bool { return v <= ref+c.slack(ref) }
