package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hweiling/tripline/internal/domain"
)

// Header names from the calendar push notification contract.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerResourceID    = "X-Goog-Resource-ID"
	headerResourceState = "X-Goog-Resource-State"

	resourceStateSync = "sync"
)

// CalendarWebhook handles POST /webhooks/gcal, the push notification the
// calendar provider sends when a watched calendar changes. The payload
// carries no event data, only channel headers; the actual diff is fetched
// with the trip's stored sync token.
//
// Response policy: the provider retries non-2xx deliveries with backoff, so
// every condition we cannot act on but also cannot recover from by retrying
// (unknown channel, expired token) is acknowledged with 200.
func (s *Server) CalendarWebhook(w http.ResponseWriter, r *http.Request) {
	// Channel registration handshake. No changes to fetch yet.
	if r.Header.Get(headerResourceState) == resourceStateSync {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Sync OK"))
		return
	}

	channelID := r.Header.Get(headerChannelID)
	resourceID := r.Header.Get(headerResourceID)
	if channelID == "" || resourceID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing headers"))
		return
	}

	err := s.calSync.SyncCalendarByChannel(r.Context(), channelID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	case errors.Is(err, domain.ErrNotFound):
		// Notifications can outlive their trip binding; acknowledge so the
		// provider stops redelivering.
		slog.WarnContext(r.Context(), "calendar notification for unknown channel", "channel_id", channelID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ignored"))
	case errors.Is(err, domain.ErrSyncTokenExpired):
		// Token already cleared downstream. Next manual or scheduled sync
		// starts fresh.
		slog.WarnContext(r.Context(), "calendar sync token expired", "channel_id", channelID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Sync token cleared"))
	default:
		slog.ErrorContext(r.Context(), "calendar webhook failed", "channel_id", channelID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
	}
}
