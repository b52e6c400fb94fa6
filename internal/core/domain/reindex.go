package domain

import "time"

// ReindexState represents the lifecycle of a bulk reindex run
type ReindexState string

const (
	ReindexStateIdle      ReindexState = "idle"
	ReindexStateRunning   ReindexState = "running"
	ReindexStateCompleted ReindexState = "completed"
	ReindexStateCancelled ReindexState = "cancelled"
	ReindexStateFailed    ReindexState = "failed"
)

// ReindexStatus reports progress of a bulk re-embed. Cancellation or failure
// leaves the previously active version queryable: the version switch happens
// only on completion.
type ReindexStatus struct {
	State         ReindexState `json:"state"`
	FromVersion   string       `json:"from_version,omitempty"`
	ToVersion     string       `json:"to_version,omitempty"`
	PassagesTotal int          `json:"passages_total"`
	PassagesDone  int          `json:"passages_done"`
	Errors        int          `json:"errors"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// InProgress reports whether a reindex run is currently active.
func (s *ReindexStatus) InProgress() bool {
	return s.State == ReindexStateRunning
}
