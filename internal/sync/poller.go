package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hweiling/tripline/internal/domain"
)

// TripLister is the trip enumeration surface the poller depends on.
// Implemented by repo.TripRepo.
type TripLister interface {
	ListWithWorkspaceBinding(ctx context.Context) ([]domain.Trip, error)
}

// WorkspaceSyncer runs one workspace reconciliation cycle for a trip.
// Implemented by Runner.
type WorkspaceSyncer interface {
	SyncWorkspaceTrip(ctx context.Context, trip domain.Trip) error
}

// WorkspacePoller drives workspace ingestion on a fixed interval: each tick
// it enumerates trips with a workspace binding and reconciles each one
// independently. Each run is stateless beyond the per-trip watermark, so a
// failed run simply leaves its window to the next tick.
type WorkspacePoller struct {
	trips            TripLister
	syncer           WorkspaceSyncer
	interval         time.Duration
	log              *slog.Logger
	shutdownComplete chan struct{}
}

// NewWorkspacePoller constructs a WorkspacePoller. interval is typically
// ten minutes.
func NewWorkspacePoller(trips TripLister, syncer WorkspaceSyncer, interval time.Duration, log *slog.Logger) *WorkspacePoller {
	return &WorkspacePoller{
		trips:            trips,
		syncer:           syncer,
		interval:         interval,
		log:              log,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine and
// runs until ctx is cancelled. The first cycle runs immediately.
func (p *WorkspacePoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		close(p.shutdownComplete)
	}()

	for {
		if err := p.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error("workspace poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has fully stopped.
func (p *WorkspacePoller) Wait() {
	<-p.shutdownComplete
}

// runOnce executes a single polling cycle. Per-trip failures are logged and
// do not stop the cycle: one trip's broken mirror must not starve the rest.
func (p *WorkspacePoller) runOnce(ctx context.Context) error {
	trips, err := p.trips.ListWithWorkspaceBinding(ctx)
	if err != nil {
		return err
	}
	if len(trips) == 0 {
		p.log.Debug("no trips with workspace bindings")
		return nil
	}

	for _, trip := range trips {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.syncer.SyncWorkspaceTrip(ctx, trip); err != nil {
			p.log.Error("workspace sync failed for trip", "trip_id", trip.ID, "error", err)
		}
	}
	return nil
}
