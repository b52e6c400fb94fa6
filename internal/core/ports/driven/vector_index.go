package driven

import "context"

// VectorHit is one similarity-search match: a passage ID and its score.
type VectorHit struct {
	PassageID  string
	DocumentID string
	Score      float64
}

// VectorEntry is one indexed passage vector.
type VectorEntry struct {
	PassageID  string
	DocumentID string
	Embedding  []float32
}

// VectorIndex is the embedding sub-index used only by the indexer and
// retriever. It is partitioned by embedding model version: a search consults
// exactly one version's partition, so embeddings of differing versions are
// never compared. Implementations must give readers snapshot semantics - a
// search started before a document's passages are replaced sees either the
// fully-old or fully-new entries for that document, never a mix.
type VectorIndex interface {
	// ReplaceDocument atomically swaps all entries owned by a document
	// within one version partition. An empty entries slice removes the
	// document from the partition.
	ReplaceDocument(ctx context.Context, version, documentID string, entries []VectorEntry) error

	// DeleteDocument removes a document's entries from every partition
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns the k nearest entries in the given version partition,
	// by inner product, descending. An unknown version or empty partition
	// yields an empty result, not an error.
	Search(ctx context.Context, version string, embedding []float32, k int) ([]VectorHit, error)

	// PromoteVersion atomically makes a fully-built partition live and
	// drops all other partitions. Used at the end of a bulk reindex.
	PromoteVersion(ctx context.Context, version string) error

	// DropVersion discards a partition (e.g. a cancelled reindex build)
	DropVersion(ctx context.Context, version string) error

	// Size returns the number of entries in a version partition
	Size(ctx context.Context, version string) (int, error)
}
