package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hweiling/tripline/internal/domain"
)

// itemRequest is the client-editable subset of an itinerary item. External
// bindings are never accepted from clients; the sync engine owns them.
type itemRequest struct {
	ItemDate  string `json:"item_date"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	Location  string `json:"location"`
	Category  string `json:"category"`
}

type itemResponse struct {
	ID        uuid.UUID `json:"id"`
	TripID    uuid.UUID `json:"trip_id"`
	ItemDate  string    `json:"item_date"`
	Title     string    `json:"title"`
	StartTime string    `json:"start_time,omitempty"`
	Location  string    `json:"location,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func itemToResponse(item domain.ItineraryItem) itemResponse {
	return itemResponse{
		ID:        item.ID,
		TripID:    item.TripID,
		ItemDate:  item.ItemDate,
		Title:     item.Title,
		StartTime: item.StartTime,
		Location:  item.Location,
		Category:  item.Category,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// CreateItem handles POST /trips/{tripID}/items.
func (s *Server) CreateItem(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeNotFound(w, "trip not found")
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "unable to parse body")
		return
	}

	created, err := s.items.Create(r.Context(), domain.ItineraryItem{
		TripID:    tripID,
		ItemDate:  req.ItemDate,
		Title:     req.Title,
		StartTime: req.StartTime,
		Location:  req.Location,
		Category:  req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeNotFound(w, "trip not found")
		case errors.Is(err, domain.ErrValidation):
			writeValidation(w, err)
		default:
			writeServerError(w)
		}
		return
	}

	writeJSON(w, http.StatusCreated, itemToResponse(created))
}

// ListItems handles GET /trips/{tripID}/items.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeNotFound(w, "trip not found")
		return
	}

	items, err := s.items.ListByTripID(r.Context(), tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "trip not found")
			return
		}
		writeServerError(w)
		return
	}

	data := make([]itemResponse, len(items))
	for i, item := range items {
		data[i] = itemToResponse(item)
	}
	writeJSON(w, http.StatusOK, map[string][]itemResponse{"data": data})
}

// GetItem handles GET /trips/{tripID}/items/{itemID}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeNotFound(w, "trip not found")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeNotFound(w, "item not found")
		return
	}

	item, err := s.items.GetByID(r.Context(), tripID, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w, "item not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, itemToResponse(item))
}

// UpdateItem handles PUT /trips/{tripID}/items/{itemID}.
func (s *Server) UpdateItem(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeNotFound(w, "trip not found")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeNotFound(w, "item not found")
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "unable to parse body")
		return
	}

	updated, err := s.items.Update(r.Context(), domain.ItineraryItem{
		ID:        itemID,
		TripID:    tripID,
		ItemDate:  req.ItemDate,
		Title:     req.Title,
		StartTime: req.StartTime,
		Location:  req.Location,
		Category:  req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeNotFound(w, "item not found")
		case errors.Is(err, domain.ErrValidation):
			writeValidation(w, err)
		default:
			writeServerError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, itemToResponse(updated))
}
