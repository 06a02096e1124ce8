package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.ApportionerRegistry = (*DefaultApportionerRegistry)(nil)

// DefaultApportionerRegistry implements the ApportionerRegistry interface,
// providing a factory for apportioners keyed by counting method. It injects
// the shared metrics collector into the built-in methods.
type DefaultApportionerRegistry struct {
	// factories maps method names to their factory functions.
	factories map[string]ports.ApportionerFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
	// metrics is handed to every built-in apportioner; nil disables metrics.
	metrics ports.MetricsCollector
}

// NewDefaultApportionerRegistry creates a registry with the "stv" and "irv"
// methods pre-registered.
func NewDefaultApportionerRegistry(metrics ports.MetricsCollector) *DefaultApportionerRegistry {
	registry := &DefaultApportionerRegistry{
		factories: make(map[string]ports.ApportionerFactory),
		metrics:   metrics,
	}

	registry.registerBuiltinFactories()

	return registry
}

// registerBuiltinFactories registers the counting methods backed by
// units.ApportionUnit. IRV is the same count with max_seats pinned to one.
func (r *DefaultApportionerRegistry) registerBuiltinFactories() {
	metrics := r.metrics

	r.factories[MethodSTV] = func(id string, config map[string]any) (ports.Apportioner, error) {
		unit, err := units.NewApportionFromConfig(id, config, metrics)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}
	r.factories[MethodIRV] = func(id string, config map[string]any) (ports.Apportioner, error) {
		single := map[string]any{"max_seats": 1}
		for k, v := range config {
			if k != "max_seats" {
				single[k] = v
			}
		}
		unit, err := units.NewApportionFromConfig(id, single, metrics)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}
}

// CreateApportioner creates a new apportioner for the given method.
// A nil config is treated as empty so factory defaults apply.
func (r *DefaultApportionerRegistry) CreateApportioner(
	method string,
	id string,
	config map[string]any,
) (ports.Apportioner, error) {
	r.mu.RLock()
	factory, exists := r.factories[method]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported counting method: %s", method)
	}

	if id == "" {
		return nil, fmt.Errorf("apportioner ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	apportioner, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apportioner %s for method %s: %w", id, method, err)
	}

	return apportioner, nil
}

// RegisterApportionerFactory registers a factory for a new counting method.
// Registering a method that already exists, built-in or not, is an error.
func (r *DefaultApportionerRegistry) RegisterApportionerFactory(
	method string,
	factory ports.ApportionerFactory,
) error {
	if method == "" {
		return fmt.Errorf("counting method cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[method]; exists {
		return fmt.Errorf("counting method %s is already registered", method)
	}
	r.factories[method] = factory
	return nil
}

// SupportedMethods returns the registered method names in sorted order.
func (r *DefaultApportionerRegistry) SupportedMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}
