package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"algoace/internal/domain"
)

// Strategy IDs on the wire: "strat-" followed by either a numeric catalog ID
// or a registry key slug.
var idPattern = regexp.MustCompile(`^strat-[a-z0-9][a-z0-9_-]*$`)

// Definition is a resolved strategy: the instance plus how it was resolved.
type Definition struct {
	ID       string
	Name     string
	Key      string
	Params   Params
	Strategy Strategy
}

// Loader resolves strategy IDs. Numeric IDs ("strat-1699890528481") come
// from the catalog; slug IDs ("strat-ema-cross") hit the registry directly
// with default parameters.
type Loader struct {
	catalog  *Catalog
	registry *Registry
}

// NewLoader creates a Loader over the given catalog and registry. The
// catalog may be nil, in which case only slug IDs resolve.
func NewLoader(catalog *Catalog, registry *Registry) *Loader {
	return &Loader{catalog: catalog, registry: registry}
}

// Load resolves a strategy ID to a fresh strategy instance.
func (l *Loader) Load(ctx context.Context, strategyID string) (*Definition, error) {
	id := strings.ToLower(strings.TrimSpace(strategyID))
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: malformed strategy id %q", domain.ErrValidation, strategyID)
	}

	suffix := strings.TrimPrefix(id, "strat-")
	if numericID, err := strconv.ParseInt(suffix, 10, 64); err == nil {
		return l.loadFromCatalog(ctx, id, numericID)
	}
	return l.loadFromRegistry(ctx, id, suffix, nil)
}

func (l *Loader) loadFromCatalog(ctx context.Context, id string, numericID int64) (*Definition, error) {
	if l.catalog == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry, err := l.catalog.Get(ctx, numericID)
	if err != nil {
		return nil, fmt.Errorf("loading strategy %s: %w", id, err)
	}

	def, err := l.loadFromRegistry(ctx, id, entry.RegistryKey, entry.Params)
	if err != nil {
		return nil, err
	}
	def.Name = entry.Name
	return def, nil
}

func (l *Loader) loadFromRegistry(ctx context.Context, id, key string, params Params) (*Definition, error) {
	s, ok, err := l.registry.New(key, params)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: constructing strategy %s: %v", domain.ErrExecution, id, err)
	}
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: initializing strategy %s: %v", domain.ErrExecution, id, err)
	}

	return &Definition{
		ID:       id,
		Name:     s.Name(),
		Key:      key,
		Params:   params,
		Strategy: s,
	}, nil
}
