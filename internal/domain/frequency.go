package domain

import (
	"fmt"
	"maps"
	"math"
)

// FrequencyTable maps items to positive weights. An entry is evicted as soon
// as its weight drops to zero or below, so iteration only ever sees items
// with a positive weight. Lookups never insert.
//
// FrequencyTable is used both as the scratch tally during apportionment and
// as the returned seats-won map. The zero value is an empty table ready to
// use. It is not safe for concurrent mutation.
type FrequencyTable[K comparable] struct {
	table map[K]float64
}

// NewFrequencyTable creates a table seeded from seed. Entries that are not
// finite and positive are skipped. A nil seed yields an empty table.
func NewFrequencyTable[K comparable](seed map[K]float64) *FrequencyTable[K] {
	ft := &FrequencyTable[K]{table: make(map[K]float64, len(seed))}
	for k, v := range seed {
		if isFinite(v) && v > 0 {
			ft.table[k] = v
		}
	}
	return ft
}

// Add accumulates weight onto item. The weight must be finite; a negative
// weight is accepted and evicts the entry if the result is no longer positive.
func (ft *FrequencyTable[K]) Add(item K, weight float64) error {
	if !isFinite(weight) {
		return fmt.Errorf("%w: frequency must be a finite number, got %v", ErrTypeMismatch, weight)
	}
	ft.init()
	ft.table[item] += weight
	if ft.table[item] <= 0 {
		delete(ft.table, item)
	}
	return nil
}

// Inc adds one to item.
func (ft *FrequencyTable[K]) Inc(item K) {
	ft.init()
	ft.table[item]++
}

// Remove subtracts weight from item and evicts the entry once it reaches
// zero or below. Removing from an absent item is a no-op.
func (ft *FrequencyTable[K]) Remove(item K, weight float64) error {
	if !isFinite(weight) {
		return fmt.Errorf("%w: frequency must be a finite number, got %v", ErrTypeMismatch, weight)
	}
	if weight < 0 {
		return fmt.Errorf("%w: frequency must not be negative, got %v", ErrInvalidArgument, weight)
	}
	v, ok := ft.table[item]
	if !ok {
		return nil
	}
	if v -= weight; v <= 0 {
		delete(ft.table, item)
		return nil
	}
	ft.table[item] = v
	return nil
}

// Get returns the weight of item, or 0 if it is absent.
func (ft *FrequencyTable[K]) Get(item K) float64 { return ft.table[item] }

// Set overwrites the weight of item. Zero deletes the entry.
func (ft *FrequencyTable[K]) Set(item K, weight float64) error {
	if !isFinite(weight) {
		return fmt.Errorf("%w: frequency must be a finite number, got %v", ErrTypeMismatch, weight)
	}
	if weight < 0 {
		return fmt.Errorf("%w: frequency must not be negative, got %v", ErrInvalidArgument, weight)
	}
	if weight == 0 {
		delete(ft.table, item)
		return nil
	}
	ft.init()
	ft.table[item] = weight
	return nil
}

// Delete removes item regardless of its weight.
func (ft *FrequencyTable[K]) Delete(item K) { delete(ft.table, item) }

// Contains reports whether item has a positive weight.
func (ft *FrequencyTable[K]) Contains(item K) bool {
	_, ok := ft.table[item]
	return ok
}

// Len returns the number of items present.
func (ft *FrequencyTable[K]) Len() int { return len(ft.table) }

// Total returns the sum of all weights.
func (ft *FrequencyTable[K]) Total() float64 {
	var sum float64
	for _, v := range ft.table {
		sum += v
	}
	return sum
}

// Keys returns the present items in unspecified order.
func (ft *FrequencyTable[K]) Keys() []K {
	keys := make([]K, 0, len(ft.table))
	for k := range ft.table {
		keys = append(keys, k)
	}
	return keys
}

// Map returns a copy of the underlying item to weight mapping.
func (ft *FrequencyTable[K]) Map() map[K]float64 { return maps.Clone(ft.table) }

// Clone returns an independent copy of the table.
func (ft *FrequencyTable[K]) Clone() *FrequencyTable[K] {
	return &FrequencyTable[K]{table: maps.Clone(ft.table)}
}

// Equal reports whether both tables hold the same items with the same weights.
func (ft *FrequencyTable[K]) Equal(other *FrequencyTable[K]) bool {
	return other != nil && maps.Equal(ft.table, other.table)
}

// init allocates the map of a zero-value table.
func (ft *FrequencyTable[K]) init() {
	if ft.table == nil {
		ft.table = make(map[K]float64)
	}
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
