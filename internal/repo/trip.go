// Package repo contains all database access logic for the Tripline sync
// service. Each resource has its own file with an interface and a Postgres
// implementation. No business logic lives here — only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hweiling/tripline/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo defines the persistence operations for Trips.
// The sync engine depends on this interface, not the concrete Postgres
// implementation, which allows it to be unit-tested with a mock.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record (with
	// DB-generated id, created_at, and updated_at populated). Bindings may
	// be empty; the bootstrap webhook only guarantees the row exists.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// GetByCalendarChannelID resolves the trip bound to a calendar push
	// channel. Returns domain.ErrNotFound when no trip registered the
	// channel — callers treat that as a normal ignore, not an error.
	GetByCalendarChannelID(ctx context.Context, channelID string) (domain.Trip, error)

	// ListWithWorkspaceBinding returns all trips with a non-empty workspace
	// database binding, the population the workspace poller iterates.
	ListWithWorkspaceBinding(ctx context.Context) ([]domain.Trip, error)

	// ClearCalendarSyncToken drops the stored incremental token after the
	// remote reports it expired, forcing the next fetch to re-baseline.
	ClearCalendarSyncToken(ctx context.Context, id uuid.UUID) error
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, title, notes, workspace_page_id, workspace_database_id,
	calendar_id, calendar_channel_id, calendar_resource_id, calendar_sync_token,
	last_synced_at, created_at, updated_at`

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (title, notes, workspace_page_id, workspace_database_id,
			calendar_id, calendar_channel_id, calendar_resource_id)
		VALUES (@title, @notes, @workspace_page_id, @workspace_database_id,
			@calendar_id, @calendar_channel_id, @calendar_resource_id)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"title":                 trip.Title,
		"notes":                 trip.Notes,
		"workspace_page_id":     trip.WorkspacePageID, // nil becomes NULL
		"workspace_database_id": trip.WorkspaceDatabaseID,
		"calendar_id":           trip.CalendarID,
		"calendar_channel_id":   trip.CalendarChannelID,
		"calendar_resource_id":  trip.CalendarResourceID,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// GetByCalendarChannelID resolves a trip by its registered webhook channel.
func (r *pgTripRepo) GetByCalendarChannelID(ctx context.Context, channelID string) (domain.Trip, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE calendar_channel_id = @channel_id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"channel_id": channelID})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByCalendarChannelID: %w", err)
	}
	return result, nil
}

// ListWithWorkspaceBinding returns all trips eligible for workspace polling,
// oldest watermark first so starved trips catch up before fresh ones.
func (r *pgTripRepo) ListWithWorkspaceBinding(ctx context.Context) ([]domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE workspace_database_id IS NOT NULL
		ORDER BY last_synced_at ASC NULLS FIRST`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithWorkspaceBinding: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.ListWithWorkspaceBinding: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithWorkspaceBinding: rows: %w", err)
	}

	return trips, nil
}

// ClearCalendarSyncToken nulls the stored incremental token.
func (r *pgTripRepo) ClearCalendarSyncToken(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE trips SET calendar_sync_token = NULL WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.ClearCalendarSyncToken: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.ClearCalendarSyncToken: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID and the nullable binding/watermark conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t            domain.Trip
		id           pgtype.UUID
		lastSyncedAt pgtype.Timestamptz
	)

	err := s.Scan(&id, &t.Title, &t.Notes,
		&t.WorkspacePageID, &t.WorkspaceDatabaseID,
		&t.CalendarID, &t.CalendarChannelID, &t.CalendarResourceID,
		&t.CalendarSyncToken, &lastSyncedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	if lastSyncedAt.Valid {
		ts := lastSyncedAt.Time
		t.LastSyncedAt = &ts
	}

	return t, nil
}
