package domain

import (
	"fmt"
	"maps"
)

// PreferenceNode is one ballot prefix in a PreferenceTree. Its vote count is
// the total weight of ballots that begin with the prefix leading to the node.
// Depth-1 nodes therefore hold first-preference totals.
type PreferenceNode[C comparable] struct {
	voteCount float64
	children  map[C]*PreferenceNode[C]
}

func newPreferenceNode[C comparable]() *PreferenceNode[C] {
	return &PreferenceNode[C]{children: make(map[C]*PreferenceNode[C])}
}

// VoteCount returns the weight of ballots sharing this node's prefix.
func (n *PreferenceNode[C]) VoteCount() float64 { return n.voteCount }

// Child returns the node reached by ranking c next.
func (n *PreferenceNode[C]) Child(c C) (*PreferenceNode[C], bool) {
	child, ok := n.children[c]
	return child, ok
}

// Children returns the next-preference map. The map is a copy; the nodes
// are shared with the tree and must be treated as read-only.
func (n *PreferenceNode[C]) Children() map[C]*PreferenceNode[C] {
	return maps.Clone(n.children)
}

// PreferenceTree aggregates ballots into a trie keyed by preference prefix.
// It is append-only: ballots can be inserted but never removed, and
// apportionment only reads it.
//
// PreferenceTree is not safe for concurrent insertion. Callers ingesting
// from several goroutines must serialize InsertBallot calls.
type PreferenceTree[C comparable] struct {
	root *PreferenceNode[C]
	// order records first-preference candidates in first-seen order and
	// backs the default tie-breaking rule.
	order   []C
	ballots int
}

// NewPreferenceTree creates an empty tree.
func NewPreferenceTree[C comparable]() *PreferenceTree[C] {
	return &PreferenceTree[C]{root: newPreferenceNode[C]()}
}

// InsertBallot adds weight to every prefix of ballot, creating nodes on
// demand. Weight must be finite and positive and the ballot must not rank a
// candidate twice; both are checked before the tree is touched. An empty
// ballot is counted but contributes no votes.
func (t *PreferenceTree[C]) InsertBallot(ballot Ballot[C], weight float64) error {
	if ballot == nil {
		return fmt.Errorf("%w: nil ballot", ErrInvalidArgument)
	}
	return t.Insert(ballot.Preferences(), weight)
}

// Insert is InsertBallot for a raw preference slice.
func (t *PreferenceTree[C]) Insert(prefs []C, weight float64) error {
	if !isFinite(weight) {
		return fmt.Errorf("%w: ballot weight must be a finite number, got %v", ErrTypeMismatch, weight)
	}
	if weight <= 0 {
		return fmt.Errorf("%w: ballot weight must be positive, got %v", ErrInvalidArgument, weight)
	}
	seen := make(map[C]struct{}, len(prefs))
	for _, c := range prefs {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: candidate %v ranked twice", ErrInvalidArgument, c)
		}
		seen[c] = struct{}{}
	}

	node := t.root
	for depth, c := range prefs {
		child, ok := node.children[c]
		if !ok {
			child = newPreferenceNode[C]()
			node.children[c] = child
			if depth == 0 {
				t.order = append(t.order, c)
			}
		}
		child.voteCount += weight
		node = child
	}
	t.ballots++
	return nil
}

// FirstPreferenceTotals returns the depth-1 vote counts as a fresh table.
func (t *PreferenceTree[C]) FirstPreferenceTotals() *FrequencyTable[C] {
	seed := make(map[C]float64, len(t.root.children))
	for c, n := range t.root.children {
		seed[c] = n.voteCount
	}
	return NewFrequencyTable(seed)
}

// TotalVotes returns the sum of first-preference counts, which equals the
// total weight of non-empty ballots inserted.
func (t *PreferenceTree[C]) TotalVotes() float64 {
	var sum float64
	for _, n := range t.root.children {
		sum += n.voteCount
	}
	return sum
}

// FirstPreference returns the depth-1 node for c.
func (t *PreferenceTree[C]) FirstPreference(c C) (*PreferenceNode[C], bool) {
	return t.root.Child(c)
}

// ChildrenOf returns the next-preference map below node.
func (t *PreferenceTree[C]) ChildrenOf(node *PreferenceNode[C]) map[C]*PreferenceNode[C] {
	if node == nil {
		return nil
	}
	return node.Children()
}

// walk follows prefix from the root and returns the node it ends at.
func (t *PreferenceTree[C]) walk(prefix []C) (*PreferenceNode[C], bool) {
	node := t.root
	for _, c := range prefix {
		next, ok := node.children[c]
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// Contains reports whether some inserted ballot begins with prefix.
// The empty prefix is always contained.
func (t *PreferenceTree[C]) Contains(prefix []C) bool {
	_, ok := t.walk(prefix)
	return ok
}

// PrefixCount returns the weight of ballots beginning with prefix, or 0 if
// none do. The empty prefix yields TotalVotes.
func (t *PreferenceTree[C]) PrefixCount(prefix []C) float64 {
	if len(prefix) == 0 {
		return t.TotalVotes()
	}
	node, ok := t.walk(prefix)
	if !ok {
		return 0
	}
	return node.voteCount
}

// Lookup returns the node for prefix, failing with ErrMissingKey when no
// inserted ballot begins with it.
func (t *PreferenceTree[C]) Lookup(prefix []C) (*PreferenceNode[C], error) {
	node, ok := t.walk(prefix)
	if !ok {
		return nil, fmt.Errorf("%w: no ballot begins with %v", ErrMissingKey, prefix)
	}
	return node, nil
}

// Candidates returns the first-preference candidates in the order they were
// first inserted.
func (t *PreferenceTree[C]) Candidates() []C {
	out := make([]C, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of distinct first preferences.
func (t *PreferenceTree[C]) Len() int { return len(t.root.children) }

// Ballots returns the number of ballots inserted, including empty ones.
func (t *PreferenceTree[C]) Ballots() int { return t.ballots }
