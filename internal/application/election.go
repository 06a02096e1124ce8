package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

// Election couples a candidate roster with the preference tree its ballots
// aggregate into. Ballots are cast by name and resolved against the roster,
// so the tree only ever holds declared candidates.
//
// Election is not safe for concurrent use while ballots are being cast.
// Once casting has finished, Run may be called from several goroutines.
type Election struct {
	// config is the validated configuration the election was created from.
	config ElectionConfig
	// roster resolves ballot names to parties.
	roster *Roster
	// tree aggregates every ballot cast so far.
	tree *domain.PreferenceTree[domain.Party]
}

// SeatAward is the number of seats one party won.
type SeatAward struct {
	Party string `json:"party" yaml:"party"`
	Seats int    `json:"seats" yaml:"seats"`
}

// ElectionOutcome is the result of one apportionment run.
type ElectionOutcome struct {
	// RunID uniquely identifies the run in traces and metrics.
	RunID string `json:"run_id" yaml:"run_id"`
	// Election is the election name from its metadata.
	Election string `json:"election" yaml:"election"`
	// Apportioner names the apportioner that produced the result.
	Apportioner string `json:"apportioner" yaml:"apportioner"`
	// Seats is the number of seats filled.
	Seats int `json:"seats" yaml:"seats"`
	// Ballots is the number of ballots cast, including empty ones.
	Ballots int `json:"ballots" yaml:"ballots"`
	// TotalVotes is the summed ballot weight.
	TotalVotes float64 `json:"total_votes" yaml:"total_votes"`
	// Quota is TotalVotes divided by Seats.
	Quota float64 `json:"quota" yaml:"quota"`
	// Winners lists parties that won at least one seat, most seats first and
	// then in roster order.
	Winners []SeatAward `json:"winners" yaml:"winners"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	// Duration is how long the apportioner took.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// SeatsFor returns the number of seats party won in the outcome.
func (o *ElectionOutcome) SeatsFor(party string) int {
	for _, w := range o.Winners {
		if w.Party == party {
			return w.Seats
		}
	}
	return 0
}

// NewElection validates cfg, builds the roster and casts any inline ballots.
// Returns a *ports.ConfigError for invalid configuration.
func NewElection(cfg *ElectionConfig) (*Election, error) {
	if cfg == nil {
		return nil, ports.NewConfigError("election", ports.ErrConfigNotFound)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roster, err := NewRoster(cfg.Candidates, cfg.FoldCase)
	if err != nil {
		return nil, ports.NewConfigError("candidates", fmt.Errorf("%w: %w", ports.ErrInvalidConfig, err))
	}

	e := &Election{
		config: *cfg,
		roster: roster,
		tree:   domain.NewPreferenceTree[domain.Party](),
	}
	for i, b := range cfg.Ballots {
		weight := b.Weight
		if weight == 0 {
			weight = 1
		}
		if err := e.Cast(b.Ranking, weight); err != nil {
			return nil, ports.NewConfigError(fmt.Sprintf("ballots[%d]", i), fmt.Errorf("%w: %w", ports.ErrInvalidConfig, err))
		}
	}
	return e, nil
}

// Name returns the election name from its metadata.
func (e *Election) Name() string { return e.config.Metadata.Name }

// Seats returns the number of seats on offer.
func (e *Election) Seats() int { return e.config.Seats }

// Roster returns the candidate roster.
func (e *Election) Roster() *Roster { return e.roster }

// Tree returns the preference tree the ballots aggregate into. Callers must
// not insert into it directly; use Cast so names are checked.
func (e *Election) Tree() *domain.PreferenceTree[domain.Party] { return e.tree }

// Cast resolves names against the roster and records them as one strictly
// ranked ballot carrying weight votes.
//
// Errors:
//   - *UnknownCandidateError for a name not on the roster
//   - domain.ErrInvalidArgument for a repeated candidate or a weight <= 0
//   - domain.ErrTypeMismatch for a NaN or infinite weight
//
// A rejected ballot leaves the election unchanged.
func (e *Election) Cast(names []string, weight float64) error {
	parties, err := e.roster.ResolveAll(names)
	if err != nil {
		return err
	}
	ballot, err := domain.NewRankedBallot(parties...)
	if err != nil {
		return err
	}
	return e.tree.InsertBallot(ballot, weight)
}

// CastBallot records an already-built ballot. Every party on it must be on
// the roster.
func (e *Election) CastBallot(ballot domain.Ballot[domain.Party], weight float64) error {
	if ballot == nil {
		return fmt.Errorf("%w: ballot is nil", domain.ErrInvalidArgument)
	}
	for i := range ballot.Len() {
		p := ballot.At(i)
		if !e.roster.Contains(p) {
			return &UnknownCandidateError{Name: p.Name(), Suggestion: e.roster.Suggest(p.Name())}
		}
	}
	return e.tree.InsertBallot(ballot, weight)
}

// Run apportions the election's seats with apportioner and summarizes the
// result. Each run gets a fresh UUID that is propagated to the apportioner
// through the context.
func (e *Election) Run(ctx context.Context, apportioner ports.Apportioner) (*ElectionOutcome, error) {
	if apportioner == nil {
		return nil, errors.New("apportioner cannot be nil")
	}

	runID := uuid.NewString()
	ctx = ports.ContextWithRunID(ctx, runID)

	started := time.Now()
	seats, err := apportioner.Apportion(ctx, e.tree, e.config.Seats)
	if err != nil {
		return nil, fmt.Errorf("election %s: apportioner %s failed: %w", e.Name(), apportioner.Name(), err)
	}

	total := e.tree.TotalVotes()
	return &ElectionOutcome{
		RunID:       runID,
		Election:    e.Name(),
		Apportioner: apportioner.Name(),
		Seats:       e.config.Seats,
		Ballots:     e.tree.Ballots(),
		TotalVotes:  total,
		Quota:       total / float64(e.config.Seats),
		Winners:     e.winners(seats),
		StartedAt:   started,
		Duration:    time.Since(started),
	}, nil
}

// NewApportioner builds the apportioner the election's configuration asks
// for from registry. When the configuration sets a budget the apportioner is
// wrapped in a middleware.BudgetManager reporting to metrics, which may be
// nil.
func (e *Election) NewApportioner(
	registry ports.ApportionerRegistry,
	metrics ports.MetricsCollector,
) (ports.Apportioner, error) {
	apportioner, err := registry.CreateApportioner(e.config.method(), e.Name(), e.config.apportionParameters())
	if err != nil {
		return nil, err
	}

	budget := BudgetFromConfig(e.config.Budget)
	if budget == (middleware.Budget{}) {
		return apportioner, nil
	}
	manager, err := middleware.NewBudgetManager(budget, apportioner, middleware.NewOTelBudgetObserver(metrics, e.Name()))
	if err != nil {
		return nil, fmt.Errorf("election %s: %w", e.Name(), err)
	}
	return manager, nil
}

// BudgetFromConfig converts a BudgetConfig to a middleware.Budget.
func BudgetFromConfig(config BudgetConfig) middleware.Budget {
	return middleware.Budget{
		MaxBallots:    config.MaxBallots,
		MaxCandidates: config.MaxCandidates,
	}
}

// winners converts the seat table into a sorted award list.
func (e *Election) winners(seats *domain.FrequencyTable[domain.Party]) []SeatAward {
	parties := seats.Keys()
	slices.SortFunc(parties, func(a, b domain.Party) int {
		if c := cmp.Compare(seats.Get(b), seats.Get(a)); c != 0 {
			return c
		}
		return cmp.Compare(e.roster.Position(a), e.roster.Position(b))
	})

	out := make([]SeatAward, len(parties))
	for i, p := range parties {
		out[i] = SeatAward{Party: p.Name(), Seats: int(math.Round(seats.Get(p)))}
	}
	return out
}
