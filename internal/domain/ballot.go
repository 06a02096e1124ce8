package domain

import (
	"fmt"
	"slices"
)

// Ballot is an ordered, duplicate-free sequence of candidates ranked by a
// voter. Index 0 holds the first preference. The preference tree and the
// apportionment algorithm only ever read ballots through this interface.
type Ballot[C comparable] interface {
	// Len returns the number of ranked candidates.
	Len() int

	// At returns the candidate ranked at position i (0-based).
	// Callers must keep i within [0, Len()).
	At(i int) C

	// Preferences returns a copy of the ranking in preference order.
	Preferences() []C
}

var (
	_ Ballot[Party] = (*RankedBallot[Party])(nil)
	_ Ballot[Party] = (*PreferentialBallot[Party])(nil)
)

// ranking holds the shared storage and read operations of both ballot
// flavors. The zero value is an empty ranking.
type ranking[C comparable] struct {
	prefs []C
}

func (r *ranking[C]) Len() int { return len(r.prefs) }

func (r *ranking[C]) At(i int) C { return r.prefs[i] }

func (r *ranking[C]) Preferences() []C { return slices.Clone(r.prefs) }

// Contains reports whether c is ranked anywhere on the ballot.
func (r *ranking[C]) Contains(c C) bool { return slices.Contains(r.prefs, c) }

// set replaces the candidate at index i. Setting the same candidate is a
// no-op; setting a candidate ranked elsewhere fails.
func (r *ranking[C]) set(i int, c C) error {
	if i < 0 || i >= len(r.prefs) {
		return fmt.Errorf("%w: ballot position %d out of range [0,%d)", ErrMissingKey, i, len(r.prefs))
	}
	if r.prefs[i] == c {
		return nil
	}
	if slices.Contains(r.prefs, c) {
		return fmt.Errorf("%w: candidate %v is already ranked", ErrInvalidArgument, c)
	}
	r.prefs[i] = c
	return nil
}

func (r *ranking[C]) remove(i int) error {
	if i < 0 || i >= len(r.prefs) {
		return fmt.Errorf("%w: ballot position %d out of range [0,%d)", ErrMissingKey, i, len(r.prefs))
	}
	r.prefs = slices.Delete(r.prefs, i, i+1)
	return nil
}

// RankedBallot is the strict ballot flavor: any attempt to rank a candidate
// twice is rejected with ErrInvalidArgument and leaves the ballot unchanged.
type RankedBallot[C comparable] struct{ ranking[C] }

// NewRankedBallot creates a strict ballot from candidates in preference order.
func NewRankedBallot[C comparable](cands ...C) (*RankedBallot[C], error) {
	b := &RankedBallot[C]{}
	if err := b.Append(cands...); err != nil {
		return nil, err
	}
	return b, nil
}

// Set replaces the candidate ranked at position i.
func (b *RankedBallot[C]) Set(i int, c C) error { return b.set(i, c) }

// Remove deletes the candidate ranked at position i; lower preferences move up.
func (b *RankedBallot[C]) Remove(i int) error { return b.remove(i) }

// Append ranks cands after the existing preferences. Either all candidates
// are appended or, on the first duplicate, none are.
func (b *RankedBallot[C]) Append(cands ...C) error {
	seen := make(map[C]struct{}, len(b.prefs)+len(cands))
	for _, c := range b.prefs {
		seen[c] = struct{}{}
	}
	for _, c := range cands {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate candidate %v on ranked ballot", ErrInvalidArgument, c)
		}
		seen[c] = struct{}{}
	}
	b.prefs = append(b.prefs, cands...)
	return nil
}

// Equal reports whether both ballots rank the same candidates in the same order.
func (b *RankedBallot[C]) Equal(other *RankedBallot[C]) bool {
	return other != nil && slices.Equal(b.prefs, other.prefs)
}

// PreferentialBallot is the lenient ballot flavor: repeated candidates are
// dropped on construction and append, keeping the first (highest) ranking.
// Replacing a position with a candidate ranked elsewhere is still rejected.
type PreferentialBallot[C comparable] struct{ ranking[C] }

// NewPreferentialBallot creates a lenient ballot from candidates in
// preference order, silently skipping repeats.
func NewPreferentialBallot[C comparable](cands ...C) *PreferentialBallot[C] {
	b := &PreferentialBallot[C]{}
	b.Append(cands...)
	return b
}

// Set replaces the candidate ranked at position i.
func (b *PreferentialBallot[C]) Set(i int, c C) error { return b.set(i, c) }

// Remove deletes the candidate ranked at position i; lower preferences move up.
func (b *PreferentialBallot[C]) Remove(i int) error { return b.remove(i) }

// Append ranks cands after the existing preferences, skipping any candidate
// that is already on the ballot.
func (b *PreferentialBallot[C]) Append(cands ...C) {
	for _, c := range cands {
		if !slices.Contains(b.prefs, c) {
			b.prefs = append(b.prefs, c)
		}
	}
}

// Equal reports whether both ballots rank the same candidates in the same order.
func (b *PreferentialBallot[C]) Equal(other *PreferentialBallot[C]) bool {
	return other != nil && slices.Equal(b.prefs, other.prefs)
}

// SliceBallot adapts a plain slice to the Ballot interface without copying.
// The caller is responsible for the slice being duplicate-free; the
// preference tree re-checks this on insertion.
type SliceBallot[C comparable] []C

// Len returns the number of ranked candidates.
func (s SliceBallot[C]) Len() int { return len(s) }

// At returns the candidate ranked at position i.
func (s SliceBallot[C]) At(i int) C { return s[i] }

// Preferences returns a copy of the ranking.
func (s SliceBallot[C]) Preferences() []C { return slices.Clone([]C(s)) }
