// Package sync implements the bidirectional synchronization engine: conflict
// resolution against the canonical store, outward propagation to the mirrors,
// and the per-trip reconciliation batch runner driven by the ingestion paths.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/gcal"
	"github.com/hweiling/tripline/internal/workspace"
)

// WorkspaceStore is the outward surface of the workspace mirror the engine
// depends on. Implemented by workspace.Client; tests inject function-field
// fakes with no network.
type WorkspaceStore interface {
	// QueryUpdatedSince returns rows edited strictly after since, oldest first.
	QueryUpdatedSince(ctx context.Context, databaseID string, since time.Time) ([]workspace.Row, error)
	// CreateItem mirrors a canonical item as a new row and returns its id.
	CreateItem(ctx context.Context, databaseID string, item domain.ItineraryItem) (string, error)
	// UpdateItem writes the given field deltas to an existing row.
	UpdateItem(ctx context.Context, pageID string, fields domain.ItemFields) error
}

// CalendarStore is the outward surface of the calendar mirror.
// Implemented by gcal.Client.
type CalendarStore interface {
	// ListChanges fetches incremental changes and the next sync token.
	// Returns domain.ErrSyncTokenExpired (wrapped) when the remote reports
	// the stored token as gone.
	ListChanges(ctx context.Context, calendarID, syncToken string) ([]gcal.Change, string, error)
	// InsertEvent mirrors a canonical item as a new event and returns its id.
	InsertEvent(ctx context.Context, calendarID string, item domain.ItineraryItem) (string, error)
	// PatchEvent partially updates an existing mirrored event.
	PatchEvent(ctx context.Context, calendarID, eventID string, item domain.ItineraryItem) error
}

// TripStore is the slice of trip persistence the engine needs.
// Implemented by repo.TripRepo.
type TripStore interface {
	GetByCalendarChannelID(ctx context.Context, channelID string) (domain.Trip, error)
	ClearCalendarSyncToken(ctx context.Context, id uuid.UUID) error
}

// ItemFinder resolves external ids to canonical items through their bindings.
// Implemented by repo.ItemRepo.
type ItemFinder interface {
	GetByBinding(ctx context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error)
}

// BindingStore persists external ids returned by outbound creates.
// Implemented by repo.ItemRepo.
type BindingStore interface {
	SetWorkspaceItemID(ctx context.Context, itemID uuid.UUID, externalID string) error
	SetCalendarEventID(ctx context.Context, itemID uuid.UUID, externalID string) error
}

// BatchStore commits a trip's staged mutations and cursor advance atomically.
// Implemented by repo.SyncRepo.
type BatchStore interface {
	ApplyBatch(ctx context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error)
}
