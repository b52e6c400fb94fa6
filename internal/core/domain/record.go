package domain

import "time"

// RawRecord is what a connector hands to the ingestion intake: one source
// item in its pre-canonical form. The core does not know how it was fetched.
type RawRecord struct {
	SourceKind SourceKind        `json:"source_kind"`
	ExternalID string            `json:"external_id"`
	Author     string            `json:"author"`
	RawText    string            `json:"raw_text"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Deletion reports that a source item was removed at its origin.
type Deletion struct {
	SourceKind SourceKind `json:"source_kind"`
	ExternalID string     `json:"external_id"`
}
