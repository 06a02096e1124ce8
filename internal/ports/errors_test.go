package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMetricsError tests the functionality of the MetricsError error type.
func TestMetricsError(t *testing.T) {
	err := NewMetricsError("tally_rounds", "RecordHistogram", errors.New("collector closed"))

	assert.Equal(t, "metrics error: operation=RecordHistogram, metric=tally_rounds, err=collector closed", err.Error())
	assert.Equal(t, "tally_rounds", err.Metric)
	assert.Equal(t, "RecordHistogram", err.Operation)
}

// TestConfigError tests the functionality of the ConfigError error type.
func TestConfigError(t *testing.T) {
	err := NewConfigError("seats", ErrInvalidConfig)

	assert.Equal(t, "config error: key=seats, err=invalid configuration", err.Error())
	assert.Equal(t, "seats", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrConfigNotFound, "configuration not found"},
		{ErrInvalidConfig, "invalid configuration"},
		{ErrInvalidMetricValue, "invalid metric value"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewMetricsError("metric", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
