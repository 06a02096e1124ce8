// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-tally/internal/domain"
)

// Apportioner turns an aggregated preference tree into seats won per party.
// Implementations wrap domain.Apportion with configuration and
// observability; the tree must not be modified.
type Apportioner interface {
	// Name returns a unique identifier for this apportioner.
	// The name is used for tracing, metrics labels and configuration.
	Name() string

	// Apportion distributes seats among the parties in tree. The result's
	// values are whole seat counts summing to seats.
	//
	// The context carries trace propagation. A single count runs to
	// completion once started; implementations only check ctx before
	// beginning.
	//
	// Example:
	//
	//	won, err := apportioner.Apportion(ctx, tree, 5)
	//	if err != nil {
	//	    return fmt.Errorf("apportioner %s failed: %w", apportioner.Name(), err)
	//	}
	Apportion(ctx context.Context, tree *domain.PreferenceTree[domain.Party], seats int) (*domain.FrequencyTable[domain.Party], error)

	// Validate checks if the apportioner is properly configured.
	// Return nil if validation passes, or an error describing what is invalid.
	Validate() error
}

// ApportionerFactory builds an Apportioner from a decoded parameter map.
// Keys the factory does not recognise are ignored; missing keys take the
// implementation's defaults.
type ApportionerFactory func(id string, config map[string]any) (Apportioner, error)

// ApportionerRegistry resolves a counting method name to a configured
// Apportioner.
type ApportionerRegistry interface {
	// CreateApportioner builds a new apportioner of the given method.
	CreateApportioner(method, id string, config map[string]any) (Apportioner, error)

	// RegisterApportionerFactory adds the factory for a new method. It fails
	// when method is already registered.
	RegisterApportionerFactory(method string, factory ApportionerFactory) error

	// SupportedMethods lists the registered method names.
	SupportedMethods() []string
}
