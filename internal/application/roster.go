package application

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-tally/internal/domain"
)

// ErrUnknownCandidate is returned when a ballot names a candidate that is not
// on the roster. It wraps domain.ErrMissingKey.
var ErrUnknownCandidate = fmt.Errorf("%w: unknown candidate", domain.ErrMissingKey)

// UnknownCandidateError reports a name that did not resolve, together with
// the closest declared candidate when one is near enough to be a likely typo.
type UnknownCandidateError struct {
	// Name is the name as written on the ballot.
	Name string
	// Suggestion is the nearest declared candidate, or empty.
	Suggestion string
}

// Error implements the error interface for UnknownCandidateError.
func (e *UnknownCandidateError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v %q (did you mean %q?)", ErrUnknownCandidate, e.Name, e.Suggestion)
	}
	return fmt.Sprintf("%v %q", ErrUnknownCandidate, e.Name)
}

// Unwrap returns ErrUnknownCandidate.
func (e *UnknownCandidateError) Unwrap() error { return ErrUnknownCandidate }

// Roster is the fixed set of candidates standing in an election. It maps the
// names written on ballots to the canonical domain.Party tokens counted by
// the preference tree.
//
// A Roster is immutable after construction and safe for concurrent use.
type Roster struct {
	// parties holds the candidates in declaration order.
	parties []domain.Party
	// index maps normalized names to positions in parties.
	index map[string]int
	// foldCase enables Unicode case folding during normalization.
	foldCase bool
}

// NewRoster creates a roster from candidate names in declaration order.
// Names are trimmed of surrounding whitespace and, when foldCase is set,
// compared case-insensitively. The declared spelling is kept as the party
// name.
//
// Returns domain.ErrInvalidArgument when names is empty, a name is blank or
// two names normalize to the same key.
func NewRoster(names []string, foldCase bool) (*Roster, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: roster needs at least one candidate", domain.ErrInvalidArgument)
	}

	r := &Roster{
		parties:  make([]domain.Party, 0, len(names)),
		index:    make(map[string]int, len(names)),
		foldCase: foldCase,
	}
	for _, name := range names {
		display := strings.TrimSpace(name)
		if display == "" {
			return nil, fmt.Errorf("%w: candidate name cannot be blank", domain.ErrInvalidArgument)
		}
		key := r.normalize(display)
		if prev, dup := r.index[key]; dup {
			return nil, fmt.Errorf("%w: candidate %q duplicates %q",
				domain.ErrInvalidArgument, display, r.parties[prev].Name())
		}
		r.index[key] = len(r.parties)
		r.parties = append(r.parties, domain.NewParty(display))
	}
	return r, nil
}

// normalize trims and optionally case-folds a name. A fresh Caser is used on
// every call because cases.Caser keeps internal state.
func (r *Roster) normalize(name string) string {
	name = strings.TrimSpace(name)
	if r.foldCase {
		return cases.Fold().String(name)
	}
	return name
}

// Resolve returns the party a ballot name refers to. Unknown names fail with
// an *UnknownCandidateError.
func (r *Roster) Resolve(name string) (domain.Party, error) {
	if i, ok := r.index[r.normalize(name)]; ok {
		return r.parties[i], nil
	}
	return domain.Party{}, &UnknownCandidateError{Name: name, Suggestion: r.Suggest(name)}
}

// ResolveAll resolves names in order, stopping at the first unknown name.
func (r *Roster) ResolveAll(names []string) ([]domain.Party, error) {
	parties := make([]domain.Party, len(names))
	for i, name := range names {
		p, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		parties[i] = p
	}
	return parties, nil
}

// Suggest returns the declared candidate closest to name by edit distance,
// or "" when nothing is within a third of the name's length (at least one
// edit).
func (r *Roster) Suggest(name string) string {
	key := r.normalize(name)
	limit := max(1, utf8.RuneCountInString(key)/3)

	best, bestDist := "", limit+1
	for normalized, i := range r.index {
		d := levenshtein.ComputeDistance(key, normalized)
		if d > limit {
			continue
		}
		if d < bestDist || (d == bestDist && i < r.position(best)) {
			best, bestDist = r.parties[i].Name(), d
		}
	}
	return best
}

// position returns the declaration index of the named party, or Len() if the
// name is not declared.
func (r *Roster) position(name string) int {
	if i, ok := r.index[r.normalize(name)]; ok {
		return i
	}
	return len(r.parties)
}

// Contains reports whether p is a declared candidate.
func (r *Roster) Contains(p domain.Party) bool {
	i, ok := r.index[r.normalize(p.Name())]
	return ok && r.parties[i] == p
}

// Position returns p's declaration index, or -1 if p is not on the roster.
func (r *Roster) Position(p domain.Party) int {
	if !r.Contains(p) {
		return -1
	}
	return r.index[r.normalize(p.Name())]
}

// Parties returns the candidates in declaration order.
func (r *Roster) Parties() []domain.Party {
	out := make([]domain.Party, len(r.parties))
	copy(out, r.parties)
	return out
}

// Len returns the number of candidates.
func (r *Roster) Len() int { return len(r.parties) }
