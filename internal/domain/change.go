package domain

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which store produced a change.
type Source string

const (
	// SourceCanonical is a direct edit committed to the canonical store.
	SourceCanonical Source = "canonical"
	// SourceWorkspace is an edit observed by the workspace poll.
	SourceWorkspace Source = "workspace"
	// SourceCalendar is an edit reported by a calendar webhook fetch.
	SourceCalendar Source = "calendar"
)

// CandidateChange is one normalized external edit awaiting a resolution
// decision. Candidates are transient: produced by an ingestion path, consumed
// by the reconciliation runner, never persisted.
type CandidateChange struct {
	Source Source
	TripID uuid.UUID
	// ExternalID is the source store's id for the edited record. Used to
	// resolve the owning canonical item through its binding.
	ExternalID string
	Fields     ItemFields
	// Timestamp is the source store's own last-modified instant for the
	// record, not the time the candidate was observed.
	Timestamp time.Time
	// Deleted marks a cancelled/removed remote record. Recognized by the
	// runner but not yet propagated into the canonical store.
	Deleted bool
}

// MutationKind distinguishes the two staged write shapes.
type MutationKind string

const (
	// MutationCreate inserts a new item with its external binding written in
	// the same statement, so a duplicate candidate lands as an update.
	MutationCreate MutationKind = "create"
	// MutationUpdate conditionally overwrites an existing item, guarded by
	// the strict timestamp comparison at commit time.
	MutationUpdate MutationKind = "update"
)

// StagedMutation is one accepted candidate turned into a pending canonical
// write. The reconciliation runner stages these and the repo commits them in
// a single transaction per trip.
type StagedMutation struct {
	Kind   MutationKind
	Source Source
	// ItemID is the target canonical item for updates; ignored for creates.
	ItemID uuid.UUID
	// ExternalID is bound on creation (into the column matching Source).
	ExternalID string
	Fields     ItemFields
	Timestamp  time.Time
}
