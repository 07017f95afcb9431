// Package service contains the business logic for canonical-store edits.
// Services validate inputs, enforce business rules, and orchestrate repo
// calls. No SQL lives here — services depend on repo interfaces, not
// implementations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/repo"
)

// Propagator forwards a committed canonical mutation to the bound mirrors.
// Implemented by sync.Propagator; defining the interface here (in the
// consumer package) lets service tests inject a no-op double.
type Propagator interface {
	Propagate(ctx context.Context, trip domain.Trip, item domain.ItineraryItem, origin domain.Source) error
}

// itemCategories are the recognized entry types, mirroring the select
// options provisioned in the workspace database.
var itemCategories = map[string]bool{
	"transport": true,
	"flight":    true,
	"hotel":     true,
	"food":      true,
	"play":      true,
	"ticket":    true,
	"star":      true,
}

// ItineraryService implements business logic for canonical itinerary edits.
// Create and Update are the canonical ingestion path: the committed mutation
// is handed straight to the propagator with source = canonical, which is
// always authoritative and needs no timestamp comparison.
type ItineraryService struct {
	trips      repo.TripRepo
	items      repo.ItemRepo
	propagator Propagator
	log        *slog.Logger
}

// NewItineraryService constructs an ItineraryService with its dependencies.
func NewItineraryService(trips repo.TripRepo, items repo.ItemRepo, propagator Propagator, log *slog.Logger) *ItineraryService {
	return &ItineraryService{trips: trips, items: items, propagator: propagator, log: log}
}

// Create validates the item, verifies the parent trip exists, persists, and
// forwards the new item to the trip's mirrors. A propagation failure is
// logged and does not fail the create — the mirrors catch up on the next
// reconciliation cycle.
func (s *ItineraryService) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	trip, err := s.trips.GetByID(ctx, item.TripID)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Create: %w", err)
	}
	if err := validateItem(item); err != nil {
		return domain.ItineraryItem{}, err
	}

	created, err := s.items.Create(ctx, item)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Create: %w", err)
	}

	if err := s.propagator.Propagate(ctx, trip, created, domain.SourceCanonical); err != nil {
		s.log.Warn("propagation incomplete after create", "item_id", created.ID, "error", err)
	}
	return created, nil
}

// GetByID returns a single item by ID, scoped to the given trip.
func (s *ItineraryService) GetByID(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error) {
	result, err := s.items.GetByID(ctx, tripID, itemID)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.GetByID: %w", err)
	}
	return result, nil
}

// ListByTripID returns all items for a trip in display order.
// Always returns a non-nil slice so callers can safely range over it.
func (s *ItineraryService) ListByTripID(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, fmt.Errorf("service.ItineraryService.ListByTripID: %w", err)
	}
	items, err := s.items.ListByTripID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.ItineraryService.ListByTripID: %w", err)
	}
	if items == nil {
		return []domain.ItineraryItem{}, nil
	}
	return items, nil
}

// Update validates and persists changes to an existing item, then forwards
// the committed state to the trip's mirrors. The repo bumps updated_at to
// the commit time, which is what makes the mirrors' later echo of this write
// lose the strict timestamp comparison.
func (s *ItineraryService) Update(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	trip, err := s.trips.GetByID(ctx, item.TripID)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Update: %w", err)
	}
	if err := validateItem(item); err != nil {
		return domain.ItineraryItem{}, err
	}

	// Preserve the existing bindings: the API surface does not expose them
	// and the propagator needs them to route updates.
	existing, err := s.items.GetByID(ctx, item.TripID, item.ID)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Update: %w", err)
	}
	item.WorkspaceItemID = existing.WorkspaceItemID
	item.CalendarEventID = existing.CalendarEventID

	updated, err := s.items.Update(ctx, item)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Update: %w", err)
	}

	if err := s.propagator.Propagate(ctx, trip, updated, domain.SourceCanonical); err != nil {
		s.log.Warn("propagation incomplete after update", "item_id", updated.ID, "error", err)
	}
	return updated, nil
}

// validateItem enforces business rules common to both Create and Update.
//   - Title must be non-empty (whitespace-only titles are rejected).
//   - ItemDate, when present, must be a calendar date in "2006-01-02" form.
//   - StartTime, when present, must be a wall clock in "15:04" form.
//   - Category, when present, must be one of the recognized entry types.
func validateItem(item domain.ItineraryItem) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if item.ItemDate != "" {
		if _, err := time.Parse("2006-01-02", item.ItemDate); err != nil {
			return fmt.Errorf("%w: item_date must be YYYY-MM-DD", domain.ErrValidation)
		}
	}
	if item.StartTime != "" {
		if _, err := time.Parse("15:04", item.StartTime); err != nil {
			return fmt.Errorf("%w: start_time must be HH:MM", domain.ErrValidation)
		}
	}
	if item.Category != "" && !itemCategories[item.Category] {
		return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, item.Category)
	}
	return nil
}
