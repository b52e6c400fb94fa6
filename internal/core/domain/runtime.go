package domain

import "sync"

// RuntimeConfig tracks which services are available at runtime and which
// embedding model version is active. The active version is explicit state
// threaded through indexer and retriever calls, never ambient: a query
// embedded under one version is only compared against that version's index.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend string // "redis" or "none"

	// Dynamic capability flags (updated when AI services change)
	embeddingAvailable bool
	llmAvailable       bool

	// activeEmbeddingVersion is the model version queries are served from
	activeEmbeddingVersion string

	// confidenceThreshold is the minimum top score for a sufficient answer
	confidenceThreshold float64
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend:        queueBackend,
		confidenceThreshold: DefaultConfidenceThreshold,
	}
}

// DefaultConfidenceThreshold is the default minimum top retrieval score
// below which the synthesizer returns an insufficient-evidence outcome.
const DefaultConfidenceThreshold = 0.25

// EmbeddingAvailable returns whether an embedding service is configured
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// LLMAvailable returns whether an LLM service is configured
func (c *RuntimeConfig) LLMAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetLLMAvailable updates the LLM availability flag
func (c *RuntimeConfig) SetLLMAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmAvailable = available
}

// ActiveEmbeddingVersion returns the model version queries are served from
func (c *RuntimeConfig) ActiveEmbeddingVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeEmbeddingVersion
}

// SetActiveEmbeddingVersion switches the queryable model version.
// Called only after a bulk reindex has fully completed.
func (c *RuntimeConfig) SetActiveEmbeddingVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeEmbeddingVersion = version
}

// ConfidenceThreshold returns the minimum sufficient top score
func (c *RuntimeConfig) ConfidenceThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.confidenceThreshold
}

// SetConfidenceThreshold updates the minimum sufficient top score
func (c *RuntimeConfig) SetConfidenceThreshold(threshold float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confidenceThreshold = threshold
}

// CanRetrieve returns true if questions can be answered right now
func (c *RuntimeConfig) CanRetrieve() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable && c.activeEmbeddingVersion != ""
}
