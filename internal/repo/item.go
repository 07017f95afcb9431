package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hweiling/tripline/internal/domain"
)

// ItemRepo defines the persistence operations for ItineraryItems, including
// the binding lookups the sync engine resolves candidates through.
type ItemRepo interface {
	// Create inserts a new item from a canonical (internal) edit and returns
	// the persisted record with DB-generated id and timestamps.
	Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)

	// GetByID retrieves a single item scoped to its trip.
	// Returns domain.ErrNotFound if no such item exists under that trip.
	GetByID(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error)

	// ListByTripID returns all items for a trip ordered by date then start time.
	ListByTripID(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)

	// Update overwrites the mutable fields of an item from a canonical edit.
	// updated_at is bumped to the DB server clock — that commit time is the
	// candidate timestamp canonical edits carry into propagation.
	Update(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)

	// GetByBinding resolves the item bound to an external id from the given
	// store. Returns domain.ErrNotFound when the id is unbound, which the
	// sync engine treats as a creation rather than an update.
	GetByBinding(ctx context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error)

	// SetWorkspaceItemID persists the workspace id returned by an outbound
	// create. The write deliberately leaves updated_at alone: recording a
	// binding is not an edit and must not shift the conflict clock.
	SetWorkspaceItemID(ctx context.Context, itemID uuid.UUID, externalID string) error

	// SetCalendarEventID persists the calendar event id returned by an
	// outbound create. Same updated_at discipline as SetWorkspaceItemID.
	SetCalendarEventID(ctx context.Context, itemID uuid.UUID, externalID string) error
}

// pgItemRepo is the Postgres implementation of ItemRepo.
type pgItemRepo struct {
	db db
}

// NewItemRepo constructs an ItemRepo backed by the provided db connection.
func NewItemRepo(db db) ItemRepo {
	return &pgItemRepo{db: db}
}

const itemColumns = `id, trip_id, item_date, title, start_time, location, category,
	workspace_item_id, calendar_event_id, created_at, updated_at`

// Create inserts a new item row from a canonical edit.
func (r *pgItemRepo) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	const q = `
		INSERT INTO itinerary_items (trip_id, item_date, title, start_time, location, category)
		VALUES (@trip_id, @item_date, @title, @start_time, @location, @category)
		RETURNING ` + itemColumns

	args := pgx.NamedArgs{
		"trip_id":    item.TripID,
		"item_date":  item.ItemDate,
		"title":      item.Title,
		"start_time": item.StartTime,
		"location":   item.Location,
		"category":   item.Category,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanItem(row)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves an item by primary key, scoped to its trip.
func (r *pgItemRepo) GetByID(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error) {
	const q = `SELECT ` + itemColumns + `
		FROM itinerary_items WHERE id = @id AND trip_id = @trip_id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": itemID, "trip_id": tripID})
	result, err := scanItem(row)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.GetByID: %w", err)
	}
	return result, nil
}

// ListByTripID returns all items for a trip in display order.
func (r *pgItemRepo) ListByTripID(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	const q = `SELECT ` + itemColumns + `
		FROM itinerary_items
		WHERE trip_id = @trip_id
		ORDER BY item_date, start_time, created_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.ItemRepo.ListByTripID: %w", err)
	}
	defer rows.Close()

	var items []domain.ItineraryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ItemRepo.ListByTripID: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ItemRepo.ListByTripID: rows: %w", err)
	}

	return items, nil
}

// Update overwrites the mutable fields of an item from a canonical edit.
func (r *pgItemRepo) Update(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	const q = `
		UPDATE itinerary_items
		SET item_date  = @item_date,
		    title      = @title,
		    start_time = @start_time,
		    location   = @location,
		    category   = @category,
		    updated_at = now()
		WHERE id = @id AND trip_id = @trip_id
		RETURNING ` + itemColumns

	args := pgx.NamedArgs{
		"id":         item.ID,
		"trip_id":    item.TripID,
		"item_date":  item.ItemDate,
		"title":      item.Title,
		"start_time": item.StartTime,
		"location":   item.Location,
		"category":   item.Category,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanItem(row)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.Update: %w", err)
	}
	return result, nil
}

// GetByBinding resolves an item through its external-id binding column.
// Both binding columns carry partial unique indexes, so the lookup is a
// single index probe.
func (r *pgItemRepo) GetByBinding(ctx context.Context, tripID uuid.UUID, source domain.Source, externalID string) (domain.ItineraryItem, error) {
	var q string
	switch source {
	case domain.SourceWorkspace:
		q = `SELECT ` + itemColumns + `
			FROM itinerary_items WHERE trip_id = @trip_id AND workspace_item_id = @external_id`
	case domain.SourceCalendar:
		q = `SELECT ` + itemColumns + `
			FROM itinerary_items WHERE trip_id = @trip_id AND calendar_event_id = @external_id`
	default:
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.GetByBinding: no binding column for source %q", source)
	}

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "external_id": externalID})
	result, err := scanItem(row)
	if err != nil {
		return domain.ItineraryItem{}, fmt.Errorf("repo.ItemRepo.GetByBinding: %w", err)
	}
	return result, nil
}

// SetWorkspaceItemID records the workspace binding for an item.
func (r *pgItemRepo) SetWorkspaceItemID(ctx context.Context, itemID uuid.UUID, externalID string) error {
	const q = `UPDATE itinerary_items SET workspace_item_id = @external_id WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": itemID, "external_id": externalID})
	if err != nil {
		return fmt.Errorf("repo.ItemRepo.SetWorkspaceItemID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.ItemRepo.SetWorkspaceItemID: %w", domain.ErrNotFound)
	}
	return nil
}

// SetCalendarEventID records the calendar binding for an item.
func (r *pgItemRepo) SetCalendarEventID(ctx context.Context, itemID uuid.UUID, externalID string) error {
	const q = `UPDATE itinerary_items SET calendar_event_id = @external_id WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": itemID, "external_id": externalID})
	if err != nil {
		return fmt.Errorf("repo.ItemRepo.SetCalendarEventID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.ItemRepo.SetCalendarEventID: %w", domain.ErrNotFound)
	}
	return nil
}

// scanItem maps a single database row into a domain.ItineraryItem.
func scanItem(s scanner) (domain.ItineraryItem, error) {
	var (
		it     domain.ItineraryItem
		id     pgtype.UUID
		tripID pgtype.UUID
	)

	err := s.Scan(&id, &tripID, &it.ItemDate, &it.Title, &it.StartTime,
		&it.Location, &it.Category,
		&it.WorkspaceItemID, &it.CalendarEventID,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ItineraryItem{}, domain.ErrNotFound
		}
		return domain.ItineraryItem{}, err
	}

	it.ID = uuid.UUID(id.Bytes)
	it.TripID = uuid.UUID(tripID.Bytes)

	return it, nil
}
