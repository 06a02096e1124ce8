package domain

import (
	"cmp"
	"fmt"
	"strings"
)

// TieBreaker orders candidates whose tallies are equal. It returns a
// negative number when a ranks ahead of b, a positive number when b ranks
// ahead of a and zero only when a == b. When several leaders tie, the one
// ranked first wins the seat; when a tied minority must be trimmed so that a
// candidate remains for every open seat, the ones ranked last are
// eliminated.
//
// A TieBreaker must be a total order over the candidates in the tally,
// otherwise results depend on map iteration order.
type TieBreaker[C comparable] func(a, b C) int

// FirstSeenTieBreaker ranks candidates by the order in which they first
// appeared as a first preference in tree. This is the default rule used by
// Apportion.
//
// Candidates that were never a first preference rank after all that were,
// ordered by their fmt %v form; for Party that is the name. Distinct
// candidates that print the same still compare equal.
func FirstSeenTieBreaker[C comparable](tree *PreferenceTree[C]) TieBreaker[C] {
	pos := make(map[C]int, len(tree.order))
	for i, c := range tree.order {
		pos[c] = i
	}
	return func(a, b C) int {
		ia, okA := pos[a]
		ib, okB := pos[b]
		switch {
		case okA && okB:
			return cmp.Compare(ia, ib)
		case okA:
			return -1
		case okB:
			return 1
		case a == b:
			return 0
		default:
			return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
		}
	}
}

// OrderedTieBreaker ranks candidates in ascending natural order.
func OrderedTieBreaker[C cmp.Ordered]() TieBreaker[C] {
	return func(a, b C) int { return cmp.Compare(a, b) }
}

// PartyNameTieBreaker ranks parties by name in ascending byte order.
func PartyNameTieBreaker() TieBreaker[Party] {
	return func(a, b Party) int { return strings.Compare(a.name, b.name) }
}
