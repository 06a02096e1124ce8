package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-tally/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// Budget thresholds that produce span events before a limit is reached.
const (
	budgetWarningThreshold  = 0.8
	budgetCriticalThreshold = 0.9
)

// OTelBudgetObserver implements observability for budget operations using
// OpenTelemetry tracing. It opens a span per count, sets usage attributes
// and records events for threshold warnings or refusals. The span travels
// in the context, so one observer can serve concurrent counts.
type OTelBudgetObserver struct {
	metrics  ports.MetricsCollector
	unitName string
	tracer   trace.Tracer
}

// NewOTelBudgetObserver creates a new OpenTelemetry budget observer.
// metrics may be nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, unitName string) *OTelBudgetObserver {
	return &OTelBudgetObserver{
		metrics:  metrics,
		unitName: unitName,
		tracer:   otel.Tracer("budget-manager"),
	}
}

// PreCheck implements the BudgetObserver interface. It starts a span and
// records the usage and threshold warnings.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage Usage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetManager.Apportion")

	o.addSpanAttributes(span, usage, budget)
	o.checkBudgetThresholds(span, usage, budget)
	return ctx
}

// PostCheck implements the BudgetObserver interface. It finalizes the span,
// records metrics, and handles any error conditions that occurred.
func (o *OTelBudgetObserver) PostCheck(
	ctx context.Context,
	usage Usage,
	budget Budget,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if o.metrics != nil {
		o.metrics.RecordLatency("budget_manager_execution", elapsed, o.createMetricLabels(budget))
	}

	if err != nil {
		var budgetErr *BudgetExceededError
		if errors.As(err, &budgetErr) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int("limit_value", budgetErr.Limit),
				attribute.Int("used_value", budgetErr.Used),
			))
			span.SetStatus(codes.Error, "Budget limit exceeded")

			if o.metrics != nil {
				labels := o.createMetricLabels(budget)
				labels["limit_type"] = budgetErr.LimitType
				o.metrics.RecordCounter("budget_exceeded_total", 1, labels)
			}
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	o.updateMetrics(usage, budget)
	span.SetStatus(codes.Ok, "Budget check passed")
}

// addSpanAttributes sets span attributes for usage and remaining headroom.
func (o *OTelBudgetObserver) addSpanAttributes(span trace.Span, usage Usage, budget Budget) {
	span.SetAttributes(
		attribute.String("budget.unit", o.unitName),
		attribute.Int("budget.ballots", usage.Ballots),
		attribute.Int("budget.candidates", usage.Candidates),
	)

	if budget.MaxBallots > 0 {
		span.SetAttributes(
			attribute.Int("budget.max_ballots", budget.MaxBallots),
			attribute.Int("budget.remaining_ballots", budget.MaxBallots-usage.Ballots),
		)
	}

	if budget.MaxCandidates > 0 {
		span.SetAttributes(
			attribute.Int("budget.max_candidates", budget.MaxCandidates),
			attribute.Int("budget.remaining_candidates", budget.MaxCandidates-usage.Candidates),
		)
	}
}

// checkBudgetThresholds adds warning and critical events when usage comes
// close to a limit.
func (o *OTelBudgetObserver) checkBudgetThresholds(span trace.Span, usage Usage, budget Budget) {
	check := func(resource string, used, limit int) {
		if limit <= 0 {
			return
		}
		ratio := float64(used) / float64(limit)
		event := ""
		switch {
		case ratio >= budgetCriticalThreshold:
			event = "budget.threshold.critical"
		case ratio >= budgetWarningThreshold:
			event = "budget.threshold.warning"
		default:
			return
		}
		span.AddEvent(event, trace.WithAttributes(
			attribute.String("resource_type", resource),
			attribute.Float64("usage_percentage", ratio*100),
		))
	}

	check("ballots", usage.Ballots, budget.MaxBallots)
	check("candidates", usage.Candidates, budget.MaxCandidates)
}

// updateMetrics sends current budget usage to the metrics collector.
func (o *OTelBudgetObserver) updateMetrics(usage Usage, budget Budget) {
	if o.metrics == nil {
		return
	}

	labels := o.createMetricLabels(budget)
	o.metrics.RecordGauge("budget_ballots_used", float64(usage.Ballots), labels)
	o.metrics.RecordGauge("budget_candidates_used", float64(usage.Candidates), labels)

	if budget.MaxBallots > 0 {
		o.metrics.RecordGauge("budget_remaining_ballots", float64(budget.MaxBallots-usage.Ballots), labels)
	}
}

// createMetricLabels creates the standard set of metric labels.
func (o *OTelBudgetObserver) createMetricLabels(budget Budget) map[string]string {
	return map[string]string{
		"budget_limit": budgetLimitLabel(budget),
		"unit":         o.unitName,
	}
}

// budgetLimitLabel describes which limits are active.
func budgetLimitLabel(budget Budget) string {
	switch {
	case budget.MaxBallots > 0 && budget.MaxCandidates > 0:
		return "ballots_and_candidates"
	case budget.MaxBallots > 0:
		return "ballots_only"
	case budget.MaxCandidates > 0:
		return "candidates_only"
	default:
		return "unlimited"
	}
}
