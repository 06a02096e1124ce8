// Package application provides election orchestration on top of the counting
// domain: declarative election configuration, candidate rosters, ballot
// casting and concurrent runs of independent elections.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

// Counting methods understood by the default apportioner registry.
const (
	// MethodSTV fills any number of seats with the quota-threshold count.
	MethodSTV = "stv"
	// MethodIRV is the single-seat instant-runoff special case of MethodSTV.
	MethodIRV = "irv"
)

// ElectionConfig defines a complete election: the seats on offer, the
// candidates standing, how ties are settled and optionally the ballots cast.
// Use ElectionConfig to describe small or reproducible elections
// declaratively; large ballot sets are expected to be cast through
// Election.Cast instead.
type ElectionConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the election.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Method selects the counting method from the apportioner registry.
	// Defaults to "stv" when empty.
	Method string `yaml:"method" validate:"omitempty,min=1,max=50"`
	// Seats is the number of seats to fill.
	Seats int `yaml:"seats" validate:"required,min=1,max=1000"`
	// Candidates lists the parties standing, in declaration order.
	Candidates []string `yaml:"candidates" validate:"required,min=1,max=1000,dive,required,max=255"`
	// FoldCase matches ballot names against candidates case-insensitively
	// using Unicode case folding.
	FoldCase bool `yaml:"fold_case"`
	// TieBreaker decides between equal tallies: "first_seen", "name" or
	// "error". Defaults to "first_seen" when empty.
	TieBreaker string `yaml:"tie_breaker" validate:"omitempty,tiebreaker"`
	// MaxRounds aborts counts that run longer than this many rounds.
	// Zero means no limit.
	MaxRounds int `yaml:"max_rounds" validate:"min=0,max=1000000"`
	// Budget limits the size of the count this election may run.
	Budget BudgetConfig `yaml:"budget"`
	// Ballots are cast when the election is created.
	Ballots []BallotConfig `yaml:"ballots" validate:"max=100000,dive"`
}

// Metadata provides descriptive information about an election.
type Metadata struct {
	// Name is the human-readable identifier for this election and is used
	// as the apportioner id in traces and metrics.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a detailed explanation of the election.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels for filtering and grouping elections.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
}

// BudgetConfig establishes size limits that protect shared counting
// infrastructure from unexpectedly large elections.
type BudgetConfig struct {
	// MaxBallots limits the number of ballots a count may include.
	// Zero means unlimited.
	MaxBallots int `yaml:"max_ballots" validate:"min=0"`
	// MaxCandidates limits the number of distinct first preferences.
	// Zero means unlimited.
	MaxCandidates int `yaml:"max_candidates" validate:"min=0"`
}

// BallotConfig is one ranked ballot, optionally weighted to stand for
// several identical ballots.
type BallotConfig struct {
	// Ranking lists candidate names from most to least preferred.
	Ranking []string `yaml:"ranking" validate:"required,min=1,dive,required"`
	// Weight is the number of votes the ballot carries. Defaults to 1.
	Weight float64 `yaml:"weight" validate:"omitempty,gt=0"`
}

// configValidator is built once; validator.Validate is safe for concurrent use
// after registration.
var configValidator = sync.OnceValues(newConfigValidator)

// newConfigValidator creates a validator with the custom tags used by
// ElectionConfig registered.
func newConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return nil, fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("tiebreaker", validateTieBreaker); err != nil {
		return nil, fmt.Errorf("failed to register tiebreaker validator: %w", err)
	}
	return v, nil
}

// LoadElectionConfig parses and validates a YAML election definition.
// Unknown fields are rejected so typos are not silently ignored.
//
// Errors are *ports.ConfigError values wrapping ports.ErrConfigNotFound for
// an empty document or ports.ErrInvalidConfig for anything else.
func LoadElectionConfig(data []byte) (*ElectionConfig, error) {
	var config ElectionConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ports.NewConfigError("election", ports.ErrConfigNotFound)
		}
		return nil, ports.NewConfigError("election", fmt.Errorf("%w: YAML decode failed: %w", ports.ErrInvalidConfig, err))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks struct constraints and the relationships between fields
// that struct tags cannot express.
func (c *ElectionConfig) Validate() error {
	v, err := configValidator()
	if err != nil {
		return ports.NewConfigError("validator", err)
	}

	if err := v.Struct(c); err != nil {
		return ports.NewConfigError("election", fmt.Errorf("%w: struct validation failed: %w", ports.ErrInvalidConfig, err))
	}

	if err := c.validateSemantics(); err != nil {
		return ports.NewConfigError("election", fmt.Errorf("%w: semantic validation failed: %w", ports.ErrInvalidConfig, err))
	}

	return nil
}

// validateSemantics checks that candidates stay distinct once normalized and
// that every inline ballot only ranks declared candidates, each at most once.
// Ballot problems are collected so one pass reports all of them.
func (c *ElectionConfig) validateSemantics() error {
	if c.Method == MethodIRV && c.Seats != 1 {
		return fmt.Errorf("method %s fills exactly one seat, got %d", MethodIRV, c.Seats)
	}

	roster, err := NewRoster(c.Candidates, c.FoldCase)
	if err != nil {
		return err
	}

	verr := domain.NewValidationError("ballots")
	for i, ballot := range c.Ballots {
		parties, err := roster.ResolveAll(ballot.Ranking)
		if err != nil {
			verr.Add(fmt.Errorf("ballot %d: %w", i, err))
			continue
		}
		seen := make(map[string]struct{}, len(parties))
		for _, p := range parties {
			if _, dup := seen[p.Name()]; dup {
				verr.AddError(fmt.Sprintf("ballot %d ranks %q more than once", i, p.Name()))
				break
			}
			seen[p.Name()] = struct{}{}
		}
	}
	if verr.HasErrors() {
		return verr
	}

	return nil
}

// method returns the configured counting method or the default.
func (c *ElectionConfig) method() string {
	if c.Method == "" {
		return MethodSTV
	}
	return c.Method
}

// apportionParameters returns the parameter map handed to the apportioner
// factory. Unset values are left out so the factory defaults apply.
func (c *ElectionConfig) apportionParameters() map[string]any {
	params := make(map[string]any)
	if c.TieBreaker != "" {
		params["tie_breaker"] = c.TieBreaker
	}
	if c.MaxRounds > 0 {
		params["max_rounds"] = c.MaxRounds
	}
	return params
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0 &&
		value == fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// validateTieBreaker accepts the tie-breaking strategies implemented by the
// apportionment unit.
func validateTieBreaker(fl validator.FieldLevel) bool {
	switch units.TieBreaker(fl.Field().String()) {
	case units.TieFirstSeen, units.TieName, units.TieError:
		return true
	default:
		return false
	}
}
