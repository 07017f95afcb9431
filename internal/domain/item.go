package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItineraryItem is a single scheduled entry in a trip's itinerary.
//
// WorkspaceItemID and CalendarEventID are the foreign bindings that map this
// record to its mirrors. At most one item per trip binds to a given external
// id per store — the repo enforces this with partial unique indexes, backing
// up the lookup-before-create discipline in the sync engine.
type ItineraryItem struct {
	ID     uuid.UUID `json:"id"`
	TripID uuid.UUID `json:"trip_id"`

	// ItemDate is the day the entry belongs to, in "2006-01-02" form. Items
	// are grouped by day, so the date doubles as the logical key when no
	// external binding exists yet.
	ItemDate  string `json:"item_date"`
	Title     string `json:"title"`
	StartTime string `json:"start_time,omitempty"` // "HH:MM", empty when unscheduled
	Location  string `json:"location,omitempty"`
	Category  string `json:"category,omitempty"` // transport, flight, hotel, food, play, ticket, star

	WorkspaceItemID *string `json:"workspace_item_id,omitempty"`
	CalendarEventID *string `json:"calendar_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemFields is the partial-update shape shared by candidates and outbound
// propagation. Nil means "no change"; a pointer to the empty string is an
// explicit clear.
type ItemFields struct {
	Title     *string
	ItemDate  *string
	StartTime *string
	Location  *string
	Category  *string
}

// ApplyTo overlays the non-nil fields onto item and returns the result.
func (f ItemFields) ApplyTo(item ItineraryItem) ItineraryItem {
	if f.Title != nil {
		item.Title = *f.Title
	}
	if f.ItemDate != nil {
		item.ItemDate = *f.ItemDate
	}
	if f.StartTime != nil {
		item.StartTime = *f.StartTime
	}
	if f.Location != nil {
		item.Location = *f.Location
	}
	if f.Category != nil {
		item.Category = *f.Category
	}
	return item
}

// IsEmpty reports whether no field delta is present.
func (f ItemFields) IsEmpty() bool {
	return f.Title == nil && f.ItemDate == nil && f.StartTime == nil &&
		f.Location == nil && f.Category == nil
}
