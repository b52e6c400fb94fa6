package normalisers

import (
	"sort"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry implements NormaliserRegistry with one normaliser per source kind.
type Registry struct {
	mu          sync.RWMutex
	normalisers map[domain.SourceKind]driven.RecordNormaliser
}

// NewRegistry creates a new normaliser registry.
func NewRegistry() *Registry {
	return &Registry{
		normalisers: make(map[domain.SourceKind]driven.RecordNormaliser),
	}
}

// Register registers a normaliser, replacing any prior one for its kind.
func (r *Registry) Register(normaliser driven.RecordNormaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers[normaliser.Kind()] = normaliser
}

// Get retrieves the normaliser for a source kind.
// Returns nil if none is registered.
func (r *Registry) Get(kind domain.SourceKind) driven.RecordNormaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.normalisers[kind]
}

// Kinds returns all registered source kinds, sorted for determinism.
func (r *Registry) Kinds() []domain.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.SourceKind, 0, len(r.normalisers))
	for k := range r.normalisers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DefaultRegistry creates a registry with all built-in normalisers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&ChatNormaliser{})
	r.Register(&TicketNormaliser{})
	r.Register(&CommitNormaliser{})
	r.Register(&OfficeDocNormaliser{})

	return r
}
