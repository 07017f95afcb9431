package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/repo"
)

// TripService implements business logic for Trip operations. The sync core
// only consumes trips; creation happens through the bootstrap webhook, which
// provisions the canonical row with empty bindings for the external
// provisioning workflow to fill in later.
type TripService struct {
	repo repo.TripRepo
}

// NewTripService constructs a TripService backed by the provided TripRepo.
func NewTripService(r repo.TripRepo) *TripService {
	return &TripService{repo: r}
}

// Bootstrap creates the canonical trip row for a newly detected travel
// event. startDate and endDate are informational and recorded in the notes;
// all external bindings start empty.
func (s *TripService) Bootstrap(ctx context.Context, title, startDate, endDate string) (domain.Trip, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Trip{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	trip := domain.Trip{Title: strings.TrimSpace(title)}
	if startDate != "" || endDate != "" {
		trip.Notes = fmt.Sprintf("Generated from calendar (%s to %s)", startDate, endDate)
	}

	created, err := s.repo.Create(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Bootstrap: %w", err)
	}
	return created, nil
}

// GetByID returns a single trip by ID.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return trip, nil
}
