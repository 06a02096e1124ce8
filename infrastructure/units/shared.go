// Package units provides configured apportionment units that implement the
// ports.Apportioner interface for the go-tally counting engine.
package units

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-tally/internal/domain"
)

// TieBreaker represents the strategy for choosing between candidates whose
// tallies are equal when a seat is awarded or a candidate eliminated.
type TieBreaker string

// Supported tie-breaking strategies for apportionment units.
const (
	// TieFirstSeen ranks candidates by the order in which they first appeared
	// as a first preference. This is the default and matches the behaviour of
	// domain.Apportion without options.
	TieFirstSeen TieBreaker = "first_seen"

	// TieName ranks parties by name in ascending byte order, so the result
	// does not depend on ballot arrival order.
	TieName TieBreaker = "name"

	// TieError returns an error when a seat would be decided by a tie.
	// Useful when ties must be resolved by an outside procedure such as a
	// drawing of lots.
	TieError TieBreaker = "error"
)

// Common errors returned by apportionment units.
var (
	// ErrTie is returned when the leading candidates tie for a seat and
	// TieError is configured.
	ErrTie = errors.New("multiple candidates tied for a seat")

	// ErrRoundLimit is returned when a count does not finish within the
	// configured maximum number of rounds.
	ErrRoundLimit = errors.New("round limit reached before all seats were filled")

	// ErrTooManySeats is returned when a count asks for more seats than the
	// unit's MaxSeats allows.
	ErrTooManySeats = fmt.Errorf("%w: too many seats for this unit", domain.ErrInvalidArgument)

	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
