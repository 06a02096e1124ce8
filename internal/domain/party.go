// Package domain contains pure, dependency-free domain models and
// algorithms for ranked-ballot counting: ballots, frequency tables, the
// preference tree and quota-based seat apportionment.
package domain

// Party is a candidate that can appear on a ballot. Two parties are equal
// when their names are equal, so Party can be used directly as a map key.
type Party struct{ name string }

// NewParty creates a Party with the given name.
func NewParty(name string) Party { return Party{name: name} }

// Name returns the party's name.
func (p Party) Name() string { return p.name }

// String implements fmt.Stringer.
func (p Party) String() string { return p.name }

// Parties converts a list of names into parties, preserving order.
func Parties(names ...string) []Party {
	out := make([]Party, len(names))
	for i, n := range names {
		out[i] = NewParty(n)
	}
	return out
}
