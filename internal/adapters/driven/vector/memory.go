package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*MemoryIndex)(nil)

// rebuildBatchSize is the page size used when rebuilding from the passage store
const rebuildBatchSize = 500

// MemoryIndex implements VectorIndex as an in-process structure partitioned
// by embedding model version. Entries are L2-normalised at insert so the
// inner product used by Search equals cosine similarity.
//
// The index is a cache over the passage store: it is rebuilt from persisted
// embeddings at startup and kept current by the ingest and reindex paths.
type MemoryIndex struct {
	mu sync.RWMutex

	// partitions maps version -> documentID -> that document's entries.
	// Grouping by document makes ReplaceDocument and DeleteDocument O(1)
	// swaps, which is what gives readers snapshot semantics per document.
	partitions map[string]map[string][]driven.VectorEntry
}

// NewMemoryIndex creates an empty in-memory vector index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		partitions: make(map[string]map[string][]driven.VectorEntry),
	}
}

// ReplaceDocument atomically swaps all entries owned by a document within
// one version partition. An empty entries slice removes the document.
func (m *MemoryIndex) ReplaceDocument(ctx context.Context, version, documentID string, entries []driven.VectorEntry) error {
	normalised := make([]driven.VectorEntry, 0, len(entries))
	for _, e := range entries {
		e.Embedding = normalise(e.Embedding)
		normalised = append(normalised, e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	partition := m.partitions[version]
	if partition == nil {
		if len(normalised) == 0 {
			return nil
		}
		partition = make(map[string][]driven.VectorEntry)
		m.partitions[version] = partition
	}

	if len(normalised) == 0 {
		delete(partition, documentID)
		return nil
	}
	partition[documentID] = normalised
	return nil
}

// DeleteDocument removes a document's entries from every partition
func (m *MemoryIndex) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, partition := range m.partitions {
		delete(partition, documentID)
	}
	return nil
}

// Search returns the k nearest entries in the given version partition by
// inner product, descending. Ties break on passage ID for determinism.
func (m *MemoryIndex) Search(ctx context.Context, version string, embedding []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	query := normalise(embedding)

	m.mu.RLock()
	defer m.mu.RUnlock()

	partition := m.partitions[version]
	if len(partition) == 0 {
		return nil, nil
	}

	var hits []driven.VectorHit
	for docID, entries := range partition {
		for _, e := range entries {
			hits = append(hits, driven.VectorHit{
				PassageID:  e.PassageID,
				DocumentID: docID,
				Score:      dot(query, e.Embedding),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PassageID < hits[j].PassageID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// PromoteVersion makes a partition the only live one. The partition may be
// empty or unknown; promotion still drops every other version.
func (m *MemoryIndex) PromoteVersion(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	promoted := m.partitions[version]
	if promoted == nil {
		promoted = make(map[string][]driven.VectorEntry)
	}
	m.partitions = map[string]map[string][]driven.VectorEntry{version: promoted}
	return nil
}

// DropVersion discards a partition
func (m *MemoryIndex) DropVersion(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.partitions, version)
	return nil
}

// Size returns the number of entries in a version partition
func (m *MemoryIndex) Size(ctx context.Context, version string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, entries := range m.partitions[version] {
		total += len(entries)
	}
	return total, nil
}

// Rebuild repopulates one version partition from the passage store. Called
// at startup, since the in-memory index does not survive restarts.
func (m *MemoryIndex) Rebuild(ctx context.Context, passages driven.PassageStore, version string) (int, error) {
	if version == "" {
		return 0, nil
	}

	byDocument := make(map[string][]driven.VectorEntry)
	for offset := 0; ; offset += rebuildBatchSize {
		batch, err := passages.ListIndexed(ctx, version, rebuildBatchSize, offset)
		if err != nil {
			return 0, err
		}
		for _, p := range batch {
			byDocument[p.DocumentID] = append(byDocument[p.DocumentID], driven.VectorEntry{
				PassageID:  p.ID,
				DocumentID: p.DocumentID,
				Embedding:  normalise(p.Embedding),
			})
		}
		if len(batch) < rebuildBatchSize {
			break
		}
	}

	total := 0
	for _, entries := range byDocument {
		total += len(entries)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[version] = byDocument
	return total, nil
}

// normalise returns a unit-length copy of v. Zero vectors come back as a copy.
func normalise(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
