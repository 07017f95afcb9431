package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// tripWebhookRequest is the notification body for a calendar event on the
// shared planning calendar. Only events whose summary carries the travel
// marker become trips.
type tripWebhookRequest struct {
	EventSummary string `json:"event_summary"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// TripWebhook handles POST /webhooks/trips. A travel event on the shared
// calendar (summary containing the configured marker) bootstraps a canonical
// trip row with empty external bindings; anything else is acknowledged and
// ignored.
func (s *Server) TripWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(headerResourceState) == resourceStateSync {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Sync OK"))
		return
	}

	var req tripWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Bad body"))
		return
	}

	if !strings.Contains(req.EventSummary, s.tripMarker) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ignored"))
		return
	}

	trip, err := s.trips.Bootstrap(r.Context(), req.EventSummary, req.StartDate, req.EndDate)
	if err != nil {
		slog.ErrorContext(r.Context(), "trip bootstrap failed", "summary", req.EventSummary, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
		return
	}

	slog.InfoContext(r.Context(), "trip bootstrapped", "trip_id", trip.ID, "title", trip.Title)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Created"))
}
