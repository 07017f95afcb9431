package sync

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/observability"
)

// Propagator forwards a committed canonical mutation to the mirrors the item
// is bound to, skipping the store the change came from. Source exclusion is
// the first line of echo defense; the timestamp rule in domain.Resolve is
// the second, catching the mirror's own change hook reporting the write back.
type Propagator struct {
	workspace WorkspaceStore
	calendar  CalendarStore
	bindings  BindingStore
	log       *slog.Logger
}

// NewPropagator constructs a Propagator with its store dependencies.
func NewPropagator(ws WorkspaceStore, cal CalendarStore, bindings BindingStore, log *slog.Logger) *Propagator {
	return &Propagator{workspace: ws, calendar: cal, bindings: bindings, log: log}
}

// Propagate forwards item to every bound mirror except origin. Each forward
// is a targeted create-or-update: without a binding it creates a remote
// record and persists the returned external id; with one it updates in
// place.
//
// Per-target failures are logged and collected, never fatal: the canonical
// store is the durable source of truth and a mirror that falls behind looks
// stale on the next cycle. The joined error exists for observability only —
// callers must not roll back the canonical mutation on it.
func (p *Propagator) Propagate(ctx context.Context, trip domain.Trip, item domain.ItineraryItem, origin domain.Source) error {
	var errs error

	if origin != domain.SourceWorkspace && trip.HasWorkspaceBinding() {
		if err := p.forwardWorkspace(ctx, trip, item); err != nil {
			p.log.Error("workspace propagation failed",
				"trip_id", trip.ID, "item_id", item.ID, "error", err)
			observability.RecordPropagationFailure("workspace")
			errs = multierr.Append(errs, err)
		}
	}

	if origin != domain.SourceCalendar && trip.HasCalendarBinding() {
		if err := p.forwardCalendar(ctx, trip, item); err != nil {
			p.log.Error("calendar propagation failed",
				"trip_id", trip.ID, "item_id", item.ID, "error", err)
			observability.RecordPropagationFailure("calendar")
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// forwardWorkspace creates or updates the item's workspace row.
func (p *Propagator) forwardWorkspace(ctx context.Context, trip domain.Trip, item domain.ItineraryItem) error {
	if item.WorkspaceItemID == nil || *item.WorkspaceItemID == "" {
		id, err := p.workspace.CreateItem(ctx, *trip.WorkspaceDatabaseID, item)
		if err != nil {
			return fmt.Errorf("sync.Propagator: create workspace row: %w", err)
		}
		if err := p.bindings.SetWorkspaceItemID(ctx, item.ID, id); err != nil {
			return fmt.Errorf("sync.Propagator: record workspace binding: %w", err)
		}
		p.log.Info("created workspace row", "trip_id", trip.ID, "item_id", item.ID, "workspace_item_id", id)
		return nil
	}

	if err := p.workspace.UpdateItem(ctx, *item.WorkspaceItemID, itemDeltas(item)); err != nil {
		return fmt.Errorf("sync.Propagator: update workspace row: %w", err)
	}
	return nil
}

// forwardCalendar creates or patches the item's calendar event.
func (p *Propagator) forwardCalendar(ctx context.Context, trip domain.Trip, item domain.ItineraryItem) error {
	if item.CalendarEventID == nil || *item.CalendarEventID == "" {
		id, err := p.calendar.InsertEvent(ctx, *trip.CalendarID, item)
		if err != nil {
			return fmt.Errorf("sync.Propagator: insert calendar event: %w", err)
		}
		if err := p.bindings.SetCalendarEventID(ctx, item.ID, id); err != nil {
			return fmt.Errorf("sync.Propagator: record calendar binding: %w", err)
		}
		p.log.Info("created calendar event", "trip_id", trip.ID, "item_id", item.ID, "calendar_event_id", id)
		return nil
	}

	if err := p.calendar.PatchEvent(ctx, *trip.CalendarID, *item.CalendarEventID, item); err != nil {
		return fmt.Errorf("sync.Propagator: patch calendar event: %w", err)
	}
	return nil
}

// itemDeltas lifts the item's current values into the partial-update shape
// outbound workspace updates take.
func itemDeltas(item domain.ItineraryItem) domain.ItemFields {
	return domain.ItemFields{
		Title:     &item.Title,
		ItemDate:  &item.ItemDate,
		StartTime: &item.StartTime,
		Location:  &item.Location,
		Category:  &item.Category,
	}
}
