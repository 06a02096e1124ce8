package units

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Apportioner = (*ApportionUnit)(nil)

// ApportionUnit distributes seats among parties with the quota-threshold
// elimination count implemented by domain.Apportion. It adds configuration,
// tracing and metrics around the pure algorithm; the counting itself is
// unchanged.
//
// Concurrency: ApportionUnit holds no per-call state and is safe for
// concurrent use, provided each call receives its own preference tree or the
// trees are no longer being written to.
//
// Observability: every call opens an OpenTelemetry span carrying the run id,
// seat count and quota, with one span event per award or elimination round.
// When a MetricsCollector is configured the unit also records latency, round
// counts, awards, eliminations and transferred vote weight.
type ApportionUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config ApportionConfig
	// metrics receives counters and histograms; nil disables metrics.
	metrics ports.MetricsCollector
	// tracer is the OpenTelemetry tracer for observability.
	tracer trace.Tracer
}

// ApportionConfig defines the configuration parameters for ApportionUnit.
type ApportionConfig struct {
	// TieBreaker determines how equal tallies are ordered.
	// Valid values: "first_seen", "name", "error".
	TieBreaker TieBreaker `yaml:"tie_breaker" json:"tie_breaker" validate:"required,oneof=first_seen name error"`

	// MaxRounds aborts a count that has not filled every seat after this
	// many rounds. Zero means no limit.
	MaxRounds int `yaml:"max_rounds" json:"max_rounds" validate:"min=0"`

	// Tolerance is the relative slack used when comparing a tally with the
	// quota. Zero selects exact comparison.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"min=0,max=0.001"`

	// MaxSeats rejects counts for more seats than this. Zero means no
	// limit; instant-runoff units use 1.
	MaxSeats int `yaml:"max_seats" json:"max_seats" validate:"min=0"`
}

// NewApportionUnit creates a new ApportionUnit with validated configuration.
// The metrics collector is optional.
//
// Returns ErrEmptyUnitName if name is empty, or a configuration validation
// error if the config struct fails validation constraints.
func NewApportionUnit(name string, config ApportionConfig, metrics ports.MetricsCollector) (*ApportionUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &ApportionUnit{
		name:    name,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("apportion-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (au *ApportionUnit) Name() string { return au.name }

// Apportion distributes seats among the parties in tree.
//
// The run is tagged with the id stored by ports.ContextWithRunID, or a fresh
// UUID when ctx carries none. The context is checked once before counting
// starts; a count that has begun runs to completion.
//
// Errors:
//   - Context cancellation before the count starts
//   - Any error from domain.Apportion (invalid seats, no votes, exhaustion)
//   - ErrTie when TieBreaker is "error" and a seat is decided by a tie
//   - ErrRoundLimit when MaxRounds is exceeded
//   - ErrTooManySeats when seats exceeds MaxSeats
func (au *ApportionUnit) Apportion(
	ctx context.Context,
	tree *domain.PreferenceTree[domain.Party],
	seats int,
) (*domain.FrequencyTable[domain.Party], error) {
	runID, ok := ports.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}

	_, span := au.tracer.Start(ctx, "ApportionUnit.Apportion",
		trace.WithAttributes(
			attribute.String("unit.type", "apportion"),
			attribute.String("unit.id", au.name),
			attribute.String("run.id", runID),
			attribute.Int("seats", seats),
			attribute.String("tie_breaker", string(au.config.TieBreaker)),
		))
	defer span.End()

	start := time.Now()
	labels := map[string]string{"unit": au.name}

	result, rounds, err := au.count(ctx, span, tree, seats)

	au.recordLatency(time.Since(start), labels)
	span.SetAttributes(attribute.Int("rounds", rounds))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		au.recordCounter(middleware.MetricRuns, 1, map[string]string{"unit": au.name, "status": "error"})
		return nil, err
	}

	au.recordCounter(middleware.MetricRuns, 1, map[string]string{"unit": au.name, "status": "success"})
	au.recordHistogram(middleware.MetricRounds, float64(rounds), labels)
	span.SetAttributes(attribute.Int("winners", result.Len()))
	return result, nil
}

// count runs the algorithm and returns the number of rounds it took.
func (au *ApportionUnit) count(
	ctx context.Context,
	span trace.Span,
	tree *domain.PreferenceTree[domain.Party],
	seats int,
) (*domain.FrequencyTable[domain.Party], int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if tree == nil {
		return nil, 0, fmt.Errorf("%w: preference tree is nil", domain.ErrInvalidArgument)
	}
	if au.config.MaxSeats > 0 && seats > au.config.MaxSeats {
		return nil, 0, fmt.Errorf("%w: unit %s fills at most %d, asked for %d",
			ErrTooManySeats, au.name, au.config.MaxSeats, seats)
	}

	labels := map[string]string{"unit": au.name}
	if seats > 0 {
		quota := tree.TotalVotes() / float64(seats)
		span.SetAttributes(
			attribute.Float64("quota", quota),
			attribute.Int("candidates", tree.Len()),
		)
		au.recordGauge(middleware.MetricQuota, quota, labels)
		au.recordGauge(middleware.MetricSeats, float64(seats), labels)
	}

	var rounds int
	observer := func(r domain.Round[domain.Party]) error {
		rounds = r.Number
		if err := au.observe(span, r); err != nil {
			return err
		}
		if au.config.MaxRounds > 0 && r.Number >= au.config.MaxRounds && r.SeatsFilled < seats {
			return fmt.Errorf("%w: %d of %d seats filled after %d rounds",
				ErrRoundLimit, r.SeatsFilled, seats, r.Number)
		}
		return nil
	}

	result, err := domain.Apportion(tree, seats,
		domain.WithTieBreaker(au.tieBreaker(tree)),
		domain.WithTolerance[domain.Party](au.config.Tolerance),
		domain.WithRoundObserver(observer),
	)
	return result, rounds, err
}

// observe reports one round to the span and the metrics collector.
func (au *ApportionUnit) observe(span trace.Span, r domain.Round[domain.Party]) error {
	switch r.Kind {
	case domain.RoundAward:
		if au.config.TieBreaker == TieError && len(r.TiedWith) > 0 {
			return fmt.Errorf("%w: %s and %v hold %.6g votes", ErrTie, r.Leader, r.TiedWith, r.Tally[r.Leader])
		}
		span.AddEvent("seat.awarded", trace.WithAttributes(
			attribute.Int("round", r.Number),
			attribute.String("party", r.Leader.Name()),
			attribute.Float64("votes", r.Tally[r.Leader]),
			attribute.Bool("forced", r.Forced),
			attribute.Int("seats_filled", r.SeatsFilled),
		))
		au.recordCounter(middleware.MetricAwards, 1, map[string]string{
			"unit":   au.name,
			"forced": strconv.FormatBool(r.Forced),
		})

	case domain.RoundEliminate:
		names := make([]string, len(r.Eliminated))
		for i, p := range r.Eliminated {
			names[i] = p.Name()
		}
		span.AddEvent("candidates.eliminated", trace.WithAttributes(
			attribute.Int("round", r.Number),
			attribute.StringSlice("parties", names),
			attribute.Float64("transferred", r.Transferred),
		))
		labels := map[string]string{"unit": au.name}
		au.recordCounter(middleware.MetricEliminations, float64(len(r.Eliminated)), labels)
		au.recordCounter(middleware.MetricTransferred, r.Transferred, labels)
	}
	return nil
}

// tieBreaker maps the configured strategy onto a domain comparator.
// TieError still needs a total order for elimination ties, so it ranks by
// first appearance like the default.
func (au *ApportionUnit) tieBreaker(tree *domain.PreferenceTree[domain.Party]) domain.TieBreaker[domain.Party] {
	if au.config.TieBreaker == TieName {
		return domain.PartyNameTieBreaker()
	}
	return domain.FirstSeenTieBreaker(tree)
}

func (au *ApportionUnit) recordLatency(d time.Duration, labels map[string]string) {
	if au.metrics != nil {
		au.metrics.RecordLatency("apportion", d, labels)
	}
}

func (au *ApportionUnit) recordCounter(metric string, v float64, labels map[string]string) {
	if au.metrics != nil {
		au.metrics.RecordCounter(metric, v, labels)
	}
}

func (au *ApportionUnit) recordGauge(metric string, v float64, labels map[string]string) {
	if au.metrics != nil {
		au.metrics.RecordGauge(metric, v, labels)
	}
}

func (au *ApportionUnit) recordHistogram(metric string, v float64, labels map[string]string) {
	if au.metrics != nil {
		au.metrics.RecordHistogram(metric, v, labels)
	}
}

// Validate checks if the unit is properly configured and ready for execution.
func (au *ApportionUnit) Validate() error {
	if err := validate.Struct(au.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// UnmarshalParameters implements custom YAML unmarshaling for unit parameters.
// The configuration is only replaced when it decodes and validates.
func (au *ApportionUnit) UnmarshalParameters(params yaml.Node) error {
	var config ApportionConfig

	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	au.config = config
	return nil
}

// DefaultApportionConfig returns an ApportionConfig with sensible defaults.
func DefaultApportionConfig() ApportionConfig {
	return ApportionConfig{
		TieBreaker: TieFirstSeen,
		MaxRounds:  0,
		Tolerance:  domain.DefaultTolerance,
	}
}

// NewApportionFromConfig creates an ApportionUnit from a configuration map.
// Keys absent from config keep their DefaultApportionConfig values.
func NewApportionFromConfig(id string, config map[string]any, metrics ports.MetricsCollector) (*ApportionUnit, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	// Start with defaults, then overlay user config.
	cfg := DefaultApportionConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewApportionUnit(id, cfg, metrics)
}
