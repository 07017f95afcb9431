// Package domain contains the core data types for the Tripline sync service.
// This package has zero external dependencies beyond uuid and is imported by
// every other internal package (repo, service, sync, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trip is the root container for an itinerary. A trip is the top-level
// aggregate; itinerary items belong to a trip.
//
// The external binding fields tie the trip to its mirrors: a workspace page
// with an inner database for itinerary rows, and a dedicated calendar with a
// push-notification channel. Bindings are written once at bootstrap (outside
// this service) and read by the sync engine; the engine itself only mutates
// CalendarSyncToken and LastSyncedAt.
type Trip struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Notes string    `json:"notes,omitempty"`

	// Workspace store bindings.
	WorkspacePageID     *string `json:"workspace_page_id,omitempty"`
	WorkspaceDatabaseID *string `json:"workspace_database_id,omitempty"`

	// Calendar store bindings. CalendarChannelID identifies the push
	// notification channel registered for the dedicated calendar;
	// CalendarResourceID is the opaque resource the channel watches.
	CalendarID         *string `json:"calendar_id,omitempty"`
	CalendarChannelID  *string `json:"calendar_channel_id,omitempty"`
	CalendarResourceID *string `json:"calendar_resource_id,omitempty"`

	// CalendarSyncToken is the incremental-fetch watermark returned by the
	// calendar store. nil means no incremental baseline exists yet and the
	// next fetch is bounded by time instead.
	CalendarSyncToken *string `json:"calendar_sync_token,omitempty"`

	// LastSyncedAt is the workspace polling watermark: only workspace rows
	// edited after this instant are fetched on the next cycle. Advanced only
	// when a reconciliation batch commits.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasWorkspaceBinding reports whether the trip is mirrored to a workspace
// database and therefore eligible for workspace polling.
func (t Trip) HasWorkspaceBinding() bool {
	return t.WorkspaceDatabaseID != nil && *t.WorkspaceDatabaseID != ""
}

// HasCalendarBinding reports whether the trip is mirrored to a dedicated
// calendar and therefore eligible for calendar ingestion.
func (t Trip) HasCalendarBinding() bool {
	return t.CalendarID != nil && *t.CalendarID != ""
}

// CursorUpdate carries the watermark advances committed atomically with a
// reconciliation batch. Nil fields are left untouched; ClearSyncToken wins
// over SyncToken and resets the incremental baseline after the remote
// reports the token expired.
type CursorUpdate struct {
	LastSyncedAt   *time.Time
	SyncToken      *string
	ClearSyncToken bool
}
