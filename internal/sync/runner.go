package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/observability"
)

// Runner is the reconciliation batch runner: it turns a polling cycle's
// candidate changes into staged canonical mutations, commits them atomically
// per trip together with the cursor advance, and queues propagation of the
// applied changes to the other stores.
type Runner struct {
	trips      TripStore
	items      ItemFinder
	batches    BatchStore
	workspace  WorkspaceStore
	calendar   CalendarStore
	propagator *Propagator
	log        *slog.Logger
}

// NewRunner constructs a Runner with its dependencies.
func NewRunner(trips TripStore, items ItemFinder, batches BatchStore, ws WorkspaceStore, cal CalendarStore, prop *Propagator, log *slog.Logger) *Runner {
	return &Runner{
		trips:      trips,
		items:      items,
		batches:    batches,
		workspace:  ws,
		calendar:   cal,
		propagator: prop,
		log:        log,
	}
}

// SyncWorkspaceTrip runs one workspace polling cycle for a single trip:
// fetch rows edited after the trip's watermark, reconcile, commit, advance
// the watermark.
func (r *Runner) SyncWorkspaceTrip(ctx context.Context, trip domain.Trip) error {
	if !trip.HasWorkspaceBinding() {
		return nil
	}

	since := time.Time{}
	if trip.LastSyncedAt != nil {
		since = *trip.LastSyncedAt
	}

	rows, err := r.workspace.QueryUpdatedSince(ctx, *trip.WorkspaceDatabaseID, since)
	if err != nil {
		// The watermark only advances on success, so the next scheduled run
		// re-fetches the same window. No immediate retry.
		return fmt.Errorf("sync.Runner.SyncWorkspaceTrip: %w", err)
	}
	if len(rows) == 0 {
		r.log.Debug("no workspace changes", "trip_id", trip.ID, "since", since)
		return nil
	}

	candidates := make([]domain.CandidateChange, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, domain.CandidateChange{
			Source:     domain.SourceWorkspace,
			TripID:     trip.ID,
			ExternalID: row.ID,
			Fields:     row.Fields,
			Timestamp:  row.LastEdited,
			Deleted:    row.Archived,
		})
	}

	now := time.Now().UTC()
	err = r.RunBatch(ctx, trip, domain.SourceWorkspace, candidates, domain.CursorUpdate{LastSyncedAt: &now})
	if err != nil {
		return fmt.Errorf("sync.Runner.SyncWorkspaceTrip: %w", err)
	}
	return nil
}

// SyncCalendarByChannel handles one calendar webhook notification: resolve
// the owning trip by its registered channel, fetch the incremental diff with
// the stored sync token, reconcile, and persist the next token with the
// batch.
//
// Returns domain.ErrNotFound when no trip is bound to the channel (callers
// treat it as a normal ignore) and domain.ErrSyncTokenExpired after clearing
// an expired token (the full-resync condition, surfaced but not performed).
func (r *Runner) SyncCalendarByChannel(ctx context.Context, channelID string) error {
	trip, err := r.trips.GetByCalendarChannelID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("sync.Runner.SyncCalendarByChannel: %w", err)
	}
	if !trip.HasCalendarBinding() {
		r.log.Warn("trip has channel but no calendar binding", "trip_id", trip.ID, "channel_id", channelID)
		return fmt.Errorf("sync.Runner.SyncCalendarByChannel: %w", domain.ErrNotFound)
	}

	token := ""
	if trip.CalendarSyncToken != nil {
		token = *trip.CalendarSyncToken
	}

	changes, nextToken, err := r.calendar.ListChanges(ctx, *trip.CalendarID, token)
	if err != nil {
		if errors.Is(err, domain.ErrSyncTokenExpired) {
			r.log.Warn("calendar sync token expired, clearing for full resync", "trip_id", trip.ID)
			if clearErr := r.trips.ClearCalendarSyncToken(ctx, trip.ID); clearErr != nil {
				return fmt.Errorf("sync.Runner.SyncCalendarByChannel: clear token: %w", clearErr)
			}
			return fmt.Errorf("sync.Runner.SyncCalendarByChannel: %w", domain.ErrSyncTokenExpired)
		}
		return fmt.Errorf("sync.Runner.SyncCalendarByChannel: %w", err)
	}

	candidates := make([]domain.CandidateChange, 0, len(changes))
	for _, ch := range changes {
		candidates = append(candidates, domain.CandidateChange{
			Source:     domain.SourceCalendar,
			TripID:     trip.ID,
			ExternalID: ch.EventID,
			Fields:     ch.Fields,
			Timestamp:  ch.Updated,
			Deleted:    ch.Cancelled,
		})
	}

	now := time.Now().UTC()
	cursor := domain.CursorUpdate{LastSyncedAt: &now}
	if nextToken != "" {
		cursor.SyncToken = &nextToken
	}

	if err := r.RunBatch(ctx, trip, domain.SourceCalendar, candidates, cursor); err != nil {
		return fmt.Errorf("sync.Runner.SyncCalendarByChannel: %w", err)
	}
	return nil
}

// RunBatch resolves each candidate against the canonical store, stages the
// accepted mutations, and commits them with the cursor advance as one atomic
// transaction. After the commit, applied changes are forwarded to the other
// stores with the batch's source excluded.
//
// Malformed candidates are logged and skipped, never fatal. A storage
// failure aborts the whole batch with the cursor untouched; re-running the
// same window is safe because already-applied changes lose the strict
// timestamp comparison on the second pass.
func (r *Runner) RunBatch(ctx context.Context, trip domain.Trip, source domain.Source, candidates []domain.CandidateChange, cursor domain.CursorUpdate) error {
	staged := make([]domain.StagedMutation, 0, len(candidates))
	for _, c := range candidates {
		if c.Deleted {
			// Cancellations are recognized but have no canonical handling
			// yet. TODO: decide archive-vs-delete semantics and propagate
			// cancellations instead of skipping them.
			r.log.Info("skipping deleted external record", "trip_id", trip.ID, "source", c.Source, "external_id", c.ExternalID)
			observability.RecordCandidateSkipped(string(source), "deleted")
			continue
		}
		if c.ExternalID == "" || c.Timestamp.IsZero() {
			r.log.Warn("skipping malformed candidate",
				"trip_id", trip.ID, "source", c.Source, "external_id", c.ExternalID, "timestamp", c.Timestamp)
			observability.RecordCandidateSkipped(string(source), "malformed")
			continue
		}

		var current *domain.ItineraryItem
		existing, err := r.items.GetByBinding(ctx, trip.ID, c.Source, c.ExternalID)
		switch {
		case err == nil:
			current = &existing
		case errors.Is(err, domain.ErrNotFound):
			// Unbound external id: resolution treats it as a creation.
		default:
			return fmt.Errorf("sync.Runner.RunBatch: resolve binding: %w", err)
		}

		decision := domain.Resolve(c, current)
		observability.RecordCandidate(string(source), decision.String())

		switch decision {
		case domain.DecisionCreate:
			staged = append(staged, domain.StagedMutation{
				Kind:       domain.MutationCreate,
				Source:     c.Source,
				ExternalID: c.ExternalID,
				Fields:     c.Fields,
				Timestamp:  c.Timestamp,
			})
		case domain.DecisionApply:
			staged = append(staged, domain.StagedMutation{
				Kind:      domain.MutationUpdate,
				Source:    c.Source,
				ItemID:    current.ID,
				Fields:    c.Fields,
				Timestamp: c.Timestamp,
			})
		case domain.DecisionIgnore:
			r.log.Debug("ignoring stale candidate", "trip_id", trip.ID, "source", c.Source, "external_id", c.ExternalID)
		}
	}

	applied, err := r.batches.ApplyBatch(ctx, trip.ID, staged, cursor)
	if err != nil {
		return fmt.Errorf("sync.Runner.RunBatch: %w", err)
	}

	r.log.Info("reconciliation batch committed",
		"trip_id", trip.ID, "source", source,
		"candidates", len(candidates), "staged", len(staged), "applied", len(applied))
	observability.RecordSyncCompleted(time.Now())

	// Forward after the canonical commit. Failures are logged inside the
	// propagator and never unwind the batch.
	for _, item := range applied {
		if err := r.propagator.Propagate(ctx, trip, item, source); err != nil {
			r.log.Warn("propagation incomplete after batch", "trip_id", trip.ID, "item_id", item.ID, "error", err)
		}
	}

	return nil
}
