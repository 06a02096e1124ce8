package units

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

// recordingMetrics is an in-memory MetricsCollector keyed by metric name and
// the optional "forced" or "status" label.
type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
	latencies  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func metricKey(metric string, labels map[string]string) string {
	if v, ok := labels["forced"]; ok {
		return metric + "/forced=" + v
	}
	if v, ok := labels["status"]; ok {
		return metric + "/" + v
	}
	return metric
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(metric, labels)] += value
}

func (m *recordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(metric, labels)] = value
}

func (m *recordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metricKey(metric, labels)
	m.histograms[key] = append(m.histograms[key], value)
}

var _ ports.MetricsCollector = (*recordingMetrics)(nil)

type partyBallot struct {
	names []string
	count int
}

func partyTree(t *testing.T, ballots []partyBallot) *domain.PreferenceTree[domain.Party] {
	t.Helper()
	tree := domain.NewPreferenceTree[domain.Party]()
	for _, b := range ballots {
		for range b.count {
			require.NoError(t, tree.Insert(domain.Parties(b.names...), 1))
		}
	}
	return tree
}

func TestNewApportionUnit(t *testing.T) {
	tests := []struct {
		name      string
		unitName  string
		config    ApportionConfig
		wantError bool
		errorMsg  string
	}{
		{
			name:     "valid configuration",
			unitName: "senate",
			config: ApportionConfig{
				TieBreaker: TieName,
				MaxRounds:  50,
				Tolerance:  1e-6,
			},
		},
		{
			name:     "default configuration",
			unitName: "senate",
			config:   DefaultApportionConfig(),
		},
		{
			name:      "empty unit name",
			unitName:  "",
			config:    DefaultApportionConfig(),
			wantError: true,
			errorMsg:  "unit name cannot be empty",
		},
		{
			name:      "unknown tie breaker",
			unitName:  "senate",
			config:    ApportionConfig{TieBreaker: "random"},
			wantError: true,
			errorMsg:  "configuration validation failed",
		},
		{
			name:      "missing tie breaker",
			unitName:  "senate",
			config:    ApportionConfig{},
			wantError: true,
			errorMsg:  "configuration validation failed",
		},
		{
			name:      "negative round limit",
			unitName:  "senate",
			config:    ApportionConfig{TieBreaker: TieFirstSeen, MaxRounds: -1},
			wantError: true,
			errorMsg:  "configuration validation failed",
		},
		{
			name:      "tolerance too loose",
			unitName:  "senate",
			config:    ApportionConfig{TieBreaker: TieFirstSeen, Tolerance: 0.5},
			wantError: true,
			errorMsg:  "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewApportionUnit(tt.unitName, tt.config, nil)
			if tt.wantError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, unit)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, unit)
				assert.Equal(t, tt.unitName, unit.Name())
				assert.Equal(t, tt.config, unit.config)
				assert.NoError(t, unit.Validate())
			}
		})
	}
}

func TestApportionUnit_Apportion(t *testing.T) {
	metrics := newRecordingMetrics()
	unit, err := NewApportionUnit("house", DefaultApportionConfig(), metrics)
	require.NoError(t, err)

	tree := partyTree(t, []partyBallot{
		{[]string{"labor"}, 6},
		{[]string{"liberal"}, 3},
		{[]string{"greens"}, 1},
	})

	seats, err := unit.Apportion(context.Background(), tree, 2)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Party]float64{
		domain.NewParty("labor"):   1,
		domain.NewParty("liberal"): 1,
	}, seats.Map())

	assert.Equal(t, 1.0, metrics.counters[middleware.MetricAwards+"/forced=false"], "labor reaches the quota")
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricAwards+"/forced=true"], "liberal wins on the remainder")
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricRuns+"/success"])
	assert.Equal(t, []float64{2}, metrics.histograms[middleware.MetricRounds])
	assert.Equal(t, 5.0, metrics.gauges[middleware.MetricQuota])
	assert.Equal(t, 2.0, metrics.gauges[middleware.MetricSeats])
	assert.Equal(t, 1, metrics.latencies)
}

func TestApportionUnit_Eliminations(t *testing.T) {
	metrics := newRecordingMetrics()
	unit, err := NewApportionUnit("house", DefaultApportionConfig(), metrics)
	require.NoError(t, err)

	tree := partyTree(t, []partyBallot{
		{[]string{"labor"}, 4},
		{[]string{"liberal"}, 3},
		{[]string{"greens"}, 2},
		{[]string{"nationals", "labor", "greens"}, 1},
	})

	seats, err := unit.Apportion(context.Background(), tree, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, seats.Total())

	assert.Equal(t, 2.0, metrics.counters[middleware.MetricEliminations])
	assert.InDelta(t, 1.0, metrics.counters[middleware.MetricTransferred], 1e-12,
		"only the nationals ballot moves, the greens had no later preferences")
	assert.Equal(t, []float64{4}, metrics.histograms[middleware.MetricRounds])
}

func TestApportionUnit_TieBreakers(t *testing.T) {
	tree := partyTree(t, []partyBallot{
		{[]string{"liberal"}, 1},
		{[]string{"labor"}, 1},
	})

	tests := []struct {
		name       string
		tieBreaker TieBreaker
		want       domain.Party
		wantErr    error
	}{
		{name: "first seen", tieBreaker: TieFirstSeen, want: domain.NewParty("liberal")},
		{name: "party name", tieBreaker: TieName, want: domain.NewParty("labor")},
		{name: "error on tie", tieBreaker: TieError, wantErr: ErrTie},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := newRecordingMetrics()
			cfg := DefaultApportionConfig()
			cfg.TieBreaker = tt.tieBreaker
			unit, err := NewApportionUnit("mayor", cfg, metrics)
			require.NoError(t, err)

			seats, err := unit.Apportion(context.Background(), tree, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, seats)
				assert.Equal(t, 1.0, metrics.counters[middleware.MetricRuns+"/error"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []domain.Party{tt.want}, seats.Keys())
		})
	}
}

func TestApportionUnit_MaxRounds(t *testing.T) {
	tree := partyTree(t, []partyBallot{
		{[]string{"labor"}, 4},
		{[]string{"liberal"}, 3},
		{[]string{"greens"}, 2},
		{[]string{"nationals", "labor", "greens"}, 1},
	})

	tests := []struct {
		name      string
		maxRounds int
		wantErr   error
	}{
		{name: "no limit", maxRounds: 0},
		{name: "limit equal to rounds needed", maxRounds: 4},
		{name: "limit below rounds needed", maxRounds: 2, wantErr: ErrRoundLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultApportionConfig()
			cfg.MaxRounds = tt.maxRounds
			unit, err := NewApportionUnit("house", cfg, nil)
			require.NoError(t, err)

			seats, err := unit.Apportion(context.Background(), tree, 2)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				var tallyErr *domain.TallyError
				assert.ErrorAs(t, err, &tallyErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2.0, seats.Total())
		})
	}
}

func TestApportionUnit_Errors(t *testing.T) {
	unit, err := NewApportionUnit("house", DefaultApportionConfig(), nil)
	require.NoError(t, err)
	populated := partyTree(t, []partyBallot{{[]string{"labor"}, 1}})

	singleCfg := DefaultApportionConfig()
	singleCfg.MaxSeats = 1
	single, err := NewApportionUnit("mayor", singleCfg, nil)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		unit    *ApportionUnit
		ctx     context.Context
		tree    *domain.PreferenceTree[domain.Party]
		seats   int
		wantErr error
	}{
		{name: "cancelled context", ctx: cancelled, tree: populated, seats: 1, wantErr: context.Canceled},
		{
			name:    "more seats than the unit fills",
			unit:    single,
			ctx:     context.Background(),
			tree:    populated,
			seats:   2,
			wantErr: ErrTooManySeats,
		},
		{name: "nil tree", ctx: context.Background(), tree: nil, seats: 1, wantErr: domain.ErrInvalidArgument},
		{name: "zero seats", ctx: context.Background(), tree: populated, seats: 0, wantErr: domain.ErrInvalidArgument},
		{
			name:    "empty tree",
			ctx:     context.Background(),
			tree:    domain.NewPreferenceTree[domain.Party](),
			seats:   3,
			wantErr: domain.ErrDegenerateInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := unit
			if tt.unit != nil {
				u = tt.unit
			}
			seats, err := u.Apportion(tt.ctx, tt.tree, tt.seats)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, seats)
		})
	}
}

func TestApportionUnit_RunIDFromContext(t *testing.T) {
	unit, err := NewApportionUnit("house", DefaultApportionConfig(), nil)
	require.NoError(t, err)
	tree := partyTree(t, []partyBallot{{[]string{"labor"}, 2}})

	ctx := ports.ContextWithRunID(context.Background(), "2026-general")
	seats, err := unit.Apportion(ctx, tree, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, seats.Get(domain.NewParty("labor")))
}

func TestApportionUnit_UnmarshalParameters(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		want      ApportionConfig
		wantError bool
	}{
		{
			name: "complete parameters",
			yaml: "tie_breaker: name\nmax_rounds: 20\ntolerance: 0.000001\nmax_seats: 1\n",
			want: ApportionConfig{TieBreaker: TieName, MaxRounds: 20, Tolerance: 1e-6, MaxSeats: 1},
		},
		{
			name:      "invalid tie breaker",
			yaml:      "tie_breaker: coin_toss\n",
			wantError: true,
		},
		{
			name:      "wrong type",
			yaml:      "max_rounds: many\n",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewApportionUnit("house", DefaultApportionConfig(), nil)
			require.NoError(t, err)

			var node yaml.Node
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &node))
			err = unit.UnmarshalParameters(*node.Content[0])

			if tt.wantError {
				assert.Error(t, err)
				assert.Equal(t, DefaultApportionConfig(), unit.config, "a rejected update must keep the old config")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, unit.config)
		})
	}
}

func TestNewApportionFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		want      ApportionConfig
		wantError bool
	}{
		{
			name:   "empty map keeps defaults",
			config: map[string]any{},
			want:   DefaultApportionConfig(),
		},
		{
			name:   "overrides selected keys",
			config: map[string]any{"tie_breaker": "error", "max_rounds": 10},
			want:   ApportionConfig{TieBreaker: TieError, MaxRounds: 10, Tolerance: domain.DefaultTolerance},
		},
		{
			name:      "invalid value",
			config:    map[string]any{"tie_breaker": "alphabetical"},
			wantError: true,
		},
		{
			name:      "negative seat ceiling",
			config:    map[string]any{"max_seats": -1},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewApportionFromConfig("senate", tt.config, nil)
			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, unit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, unit.config)
			assert.Equal(t, "senate", unit.Name())
		})
	}
}

func TestApportionUnit_Concurrent(t *testing.T) {
	unit, err := NewApportionUnit("house", DefaultApportionConfig(), newRecordingMetrics())
	require.NoError(t, err)
	tree := partyTree(t, []partyBallot{
		{[]string{"labor", "greens"}, 5},
		{[]string{"liberal", "nationals"}, 4},
		{[]string{"greens", "labor"}, 2},
		{[]string{"nationals", "liberal"}, 1},
	})

	var wg sync.WaitGroup
	results := make([]map[domain.Party]float64, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seats, err := unit.Apportion(context.Background(), tree, 3)
			if assert.NoError(t, err) {
				results[i] = seats.Map()
			}
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r, "concurrent counts over one tree must agree")
	}
}
