// Package handler implements the HTTP surface: the itinerary editing API,
// the push-notification webhooks, and the health check. Handlers are methods
// on Server, split into domain-specific files (item.go, webhook_gcal.go,
// etc.) but sharing the same struct so they can access its dependencies.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hweiling/tripline/internal/domain"
)

// ItineraryServicer defines the canonical-edit operations the item handlers
// depend on. Defining the interface here (in the consumer package) follows
// the Go convention: "accept interfaces, return concrete types". It lets
// handler tests inject a mock without touching the database or service layer.
type ItineraryServicer interface {
	Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
	GetByID(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error)
	ListByTripID(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	Update(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
}

// TripBootstrapper creates the canonical trip row for a newly detected
// travel event.
type TripBootstrapper interface {
	Bootstrap(ctx context.Context, title, startDate, endDate string) (domain.Trip, error)
}

// CalendarSyncer runs one incremental calendar reconciliation for the trip
// bound to a notification channel.
type CalendarSyncer interface {
	SyncCalendarByChannel(ctx context.Context, channelID string) error
}

// Server holds the dependencies shared by all HTTP handlers.
type Server struct {
	items      ItineraryServicer
	trips      TripBootstrapper
	calSync    CalendarSyncer
	tripMarker string
}

// NewServer constructs the Server with all its dependencies. tripMarker is
// the summary substring that identifies a calendar event as a travel event.
func NewServer(items ItineraryServicer, trips TripBootstrapper, calSync CalendarSyncer, tripMarker string) *Server {
	return &Server{items: items, trips: trips, calSync: calSync, tripMarker: tripMarker}
}

// Routes registers all endpoints on the given router. Middleware is wired
// by the caller so tests can mount routes bare.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Post("/webhooks/gcal", s.CalendarWebhook)
	r.Post("/webhooks/trips", s.TripWebhook)
	r.Route("/trips/{tripID}/items", func(r chi.Router) {
		r.Post("/", s.CreateItem)
		r.Get("/", s.ListItems)
		r.Put("/{itemID}", s.UpdateItem)
		r.Get("/{itemID}", s.GetItem)
	})
}
