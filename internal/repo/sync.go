package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hweiling/tripline/internal/domain"
)

// txBeginner is satisfied by *pgxpool.Pool and by pgx.Tx (which begins a
// nested savepoint). Taking this interface lets integration tests run a whole
// batch inside an outer transaction that is rolled back afterwards.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SyncRepo commits a reconciliation batch for one trip as a single atomic
// transaction: every staged mutation plus the cursor advance, all or nothing.
// A mid-batch failure leaves the cursor untouched so the next run re-fetches
// the same window; re-applying is safe because conditional updates are
// guarded by the strict updated_at comparison.
type SyncRepo interface {
	// ApplyBatch applies the staged mutations and the cursor update in one
	// transaction and returns the canonical state of every row it actually
	// wrote (creations and won updates; losers of the updated_at guard are
	// omitted).
	ApplyBatch(ctx context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error)
}

// pgSyncRepo is the Postgres implementation of SyncRepo.
type pgSyncRepo struct {
	db txBeginner
}

// NewSyncRepo constructs a SyncRepo backed by the provided pool or
// transaction.
func NewSyncRepo(db txBeginner) SyncRepo {
	return &pgSyncRepo{db: db}
}

// ApplyBatch runs the whole batch inside one transaction.
func (r *pgSyncRepo) ApplyBatch(ctx context.Context, tripID uuid.UUID, staged []domain.StagedMutation, cursor domain.CursorUpdate) ([]domain.ItineraryItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo.SyncRepo.ApplyBatch: begin: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer tx.Rollback(ctx)

	var applied []domain.ItineraryItem
	for _, m := range staged {
		var (
			item domain.ItineraryItem
			ok   bool
		)
		switch m.Kind {
		case domain.MutationCreate:
			item, ok, err = applyCreate(ctx, tx, tripID, m)
		case domain.MutationUpdate:
			item, ok, err = applyUpdate(ctx, tx, tripID, m.ItemID, m)
		default:
			err = fmt.Errorf("unknown mutation kind %q", m.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("repo.SyncRepo.ApplyBatch: %w", err)
		}
		if ok {
			applied = append(applied, item)
		}
	}

	if err := advanceCursor(ctx, tx, tripID, cursor); err != nil {
		return nil, fmt.Errorf("repo.SyncRepo.ApplyBatch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repo.SyncRepo.ApplyBatch: commit: %w", err)
	}
	return applied, nil
}

// applyCreate inserts a new item with its external binding written in the
// same statement. If a concurrent duplicate already claimed the binding, the
// partial unique index turns the insert into a no-op and the candidate is
// retried as a conditional update against the existing row — exactly one
// item ever exists per external id.
func applyCreate(ctx context.Context, tx pgx.Tx, tripID uuid.UUID, m domain.StagedMutation) (domain.ItineraryItem, bool, error) {
	var bindingCol string
	switch m.Source {
	case domain.SourceWorkspace:
		bindingCol = "workspace_item_id"
	case domain.SourceCalendar:
		bindingCol = "calendar_event_id"
	default:
		return domain.ItineraryItem{}, false, fmt.Errorf("create from source %q has no binding column", m.Source)
	}

	q := `
		INSERT INTO itinerary_items (trip_id, item_date, title, start_time, location, category, ` + bindingCol + `, updated_at)
		VALUES (@trip_id, COALESCE(@item_date, ''), COALESCE(@title, ''), COALESCE(@start_time, ''),
			COALESCE(@location, ''), COALESCE(@category, ''), @external_id, @ts)
		ON CONFLICT (trip_id, ` + bindingCol + `) WHERE ` + bindingCol + ` IS NOT NULL DO NOTHING
		RETURNING ` + itemColumns

	args := pgx.NamedArgs{
		"trip_id":     tripID,
		"item_date":   m.Fields.ItemDate,
		"title":       m.Fields.Title,
		"start_time":  m.Fields.StartTime,
		"location":    m.Fields.Location,
		"category":    m.Fields.Category,
		"external_id": m.ExternalID,
		"ts":          m.Timestamp,
	}

	item, err := scanItem(tx.QueryRow(ctx, q, args))
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ItineraryItem{}, false, err
	}

	// Conflict path: the binding exists already. Find the owner and fall
	// through to the timestamp-guarded update.
	existing, err := NewItemRepo(tx).GetByBinding(ctx, tripID, m.Source, m.ExternalID)
	if err != nil {
		return domain.ItineraryItem{}, false, err
	}
	return applyUpdate(ctx, tx, tripID, existing.ID, m)
}

// applyUpdate overwrites an item's fields with the candidate's deltas, but
// only while the candidate timestamp is still strictly newer than the row's
// updated_at. The guard runs at commit time inside the transaction, which is
// the compare-and-set discipline that makes concurrent canonical edits and
// batch reconciliation commute.
func applyUpdate(ctx context.Context, tx pgx.Tx, tripID, itemID uuid.UUID, m domain.StagedMutation) (domain.ItineraryItem, bool, error) {
	const q = `
		UPDATE itinerary_items
		SET item_date  = COALESCE(@item_date, item_date),
		    title      = COALESCE(@title, title),
		    start_time = COALESCE(@start_time, start_time),
		    location   = COALESCE(@location, location),
		    category   = COALESCE(@category, category),
		    updated_at = @ts
		WHERE id = @id AND trip_id = @trip_id AND updated_at < @ts
		RETURNING ` + itemColumns

	args := pgx.NamedArgs{
		"id":         itemID,
		"trip_id":    tripID,
		"item_date":  m.Fields.ItemDate,
		"title":      m.Fields.Title,
		"start_time": m.Fields.StartTime,
		"location":   m.Fields.Location,
		"category":   m.Fields.Category,
		"ts":         m.Timestamp,
	}

	item, err := scanItem(tx.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		// The row moved past the candidate between staging and commit.
		// Losing the race is not an error; the candidate is simply stale.
		return domain.ItineraryItem{}, false, nil
	}
	if err != nil {
		return domain.ItineraryItem{}, false, err
	}
	return item, true, nil
}

// advanceCursor writes the watermark fields on the trip row within the batch
// transaction. Nil fields keep their current value.
func advanceCursor(ctx context.Context, tx pgx.Tx, tripID uuid.UUID, c domain.CursorUpdate) error {
	const q = `
		UPDATE trips
		SET last_synced_at      = COALESCE(@last_synced_at, last_synced_at),
		    calendar_sync_token = CASE WHEN @clear_token THEN NULL
		                               ELSE COALESCE(@sync_token, calendar_sync_token) END
		WHERE id = @id`

	args := pgx.NamedArgs{
		"id":             tripID,
		"last_synced_at": c.LastSyncedAt,
		"sync_token":     c.SyncToken,
		"clear_token":    c.ClearSyncToken,
	}

	tag, err := tx.Exec(ctx, q, args)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advance cursor: %w", domain.ErrNotFound)
	}
	return nil
}
