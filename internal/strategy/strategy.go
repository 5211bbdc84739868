// Package strategy defines the Strategy interface for trading strategies,
// a Registry of named constructors, and the loader that resolves strategy
// IDs against the catalog and the registry.
package strategy

import (
	"context"
	"sort"

	"algoace/internal/domain"
)

// Strategy is the interface all trading strategies implement. A Strategy
// instance is stateful and serves exactly one backtest run.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// OnBar is called for each OHLCV bar in order. It returns zero or more
	// trading signals.
	OnBar(ctx context.Context, bar domain.Bar) ([]domain.Signal, error)
}

// Params are the tunable parameters of a strategy instance.
type Params map[string]float64

// Get returns the named parameter, or def when absent.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Constructor builds a fresh strategy instance from parameters.
type Constructor func(params Params) (Strategy, error)

// Registry holds the named strategy constructors available to the loader.
// Strategies are compiled in; there is no dynamic code loading.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register adds a constructor under the given key.
func (r *Registry) Register(key string, ctor Constructor) {
	r.constructors[key] = ctor
}

// New builds a fresh instance of the named strategy. The second return
// value reports whether the key is registered.
func (r *Registry) New(key string, params Params) (Strategy, bool, error) {
	ctor, ok := r.constructors[key]
	if !ok {
		return nil, false, nil
	}
	s, err := ctor(params)
	if err != nil {
		return nil, true, err
	}
	return s, true, nil
}

// List returns a sorted slice of all registered strategy keys.
func (r *Registry) List() []string {
	keys := make([]string, 0, len(r.constructors))
	for key := range r.constructors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
