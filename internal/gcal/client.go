// Package gcal wraps the Google Calendar API as the external calendar store:
// itinerary items mirrored as events on a per-trip dedicated calendar.
// The rest of the service consumes this package through the interfaces
// declared in internal/sync.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hweiling/tripline/internal/domain"
)

// eventDuration is the default slot length for mirrored events. The canonical
// model only tracks a start time, so mirrors get a fixed-length block.
const eventDuration = time.Hour

// Change is one calendar event normalized to canonical field shape.
// Updated is the store's own last-modified time for the event and becomes
// the candidate timestamp during ingestion.
type Change struct {
	EventID   string
	Updated   time.Time
	Fields    domain.ItemFields
	Cancelled bool
}

// Client is the Google-Calendar-backed calendar store client.
type Client struct {
	srv      *calendar.Service
	timeZone string
}

// NewClient constructs a calendar client from an authenticated HTTP client
// (typically oauth2 with a stored refresh token). events are created in the
// given IANA time zone.
func NewClient(ctx context.Context, httpClient *http.Client, timeZone string) (*Client, error) {
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gcal.NewClient: %w", err)
	}
	return &Client{srv: srv, timeZone: timeZone}, nil
}

// ListChanges fetches incremental changes from the given calendar.
//
// With a sync token the store returns only events changed since the token
// was issued; without one (first sync, or after expiry) the fetch is bounded
// to events from now on and establishes a new baseline. Returns the next
// sync token to persist alongside the batch.
//
// A remote report that the token expired maps to domain.ErrSyncTokenExpired
// so callers can clear the token and surface the full-resync condition
// instead of failing.
func (c *Client) ListChanges(ctx context.Context, calendarID, syncToken string) ([]Change, string, error) {
	var (
		changes   []Change
		pageToken string
		nextToken string
	)
	for {
		call := c.srv.Events.List(calendarID).Context(ctx)
		if syncToken != "" {
			call = call.SyncToken(syncToken)
		} else {
			call = call.TimeMin(time.Now().UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
				return nil, "", fmt.Errorf("gcal.Client.ListChanges: %w", domain.ErrSyncTokenExpired)
			}
			return nil, "", fmt.Errorf("gcal.Client.ListChanges: %w", err)
		}

		for _, ev := range resp.Items {
			changes = append(changes, ParseEvent(ev))
		}

		if resp.NextPageToken == "" {
			nextToken = resp.NextSyncToken
			return changes, nextToken, nil
		}
		pageToken = resp.NextPageToken
	}
}

// InsertEvent mirrors a canonical item as a new event and returns its id.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, item domain.ItineraryItem) (string, error) {
	ev, err := c.buildEvent(item)
	if err != nil {
		return "", fmt.Errorf("gcal.Client.InsertEvent: %w", err)
	}

	created, err := c.srv.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gcal.Client.InsertEvent: %w", err)
	}
	return created.Id, nil
}

// PatchEvent performs a partial update on an existing mirrored event.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, item domain.ItineraryItem) error {
	ev, err := c.buildEvent(item)
	if err != nil {
		return fmt.Errorf("gcal.Client.PatchEvent: %w", err)
	}

	if _, err := c.srv.Events.Patch(calendarID, eventID, ev).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcal.Client.PatchEvent: %w", err)
	}
	return nil
}

// buildEvent converts a canonical item into the store's event shape.
// A dated item with a start time becomes a fixed-length timed event; a dated
// item without one becomes an all-day event.
func (c *Client) buildEvent(item domain.ItineraryItem) (*calendar.Event, error) {
	if item.ItemDate == "" {
		return nil, fmt.Errorf("item %s has no date to schedule: %w", item.ID, domain.ErrValidation)
	}

	ev := &calendar.Event{
		Summary:  item.Title,
		Location: item.Location,
	}

	if item.StartTime == "" {
		ev.Start = &calendar.EventDateTime{Date: item.ItemDate}
		ev.End = &calendar.EventDateTime{Date: item.ItemDate}
		return ev, nil
	}

	loc, err := time.LoadLocation(c.timeZone)
	if err != nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", item.ItemDate+" "+item.StartTime, loc)
	if err != nil {
		return nil, fmt.Errorf("item %s has malformed schedule %q %q: %w", item.ID, item.ItemDate, item.StartTime, domain.ErrValidation)
	}

	ev.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.timeZone}
	ev.End = &calendar.EventDateTime{DateTime: start.Add(eventDuration).Format(time.RFC3339), TimeZone: c.timeZone}
	return ev, nil
}

// ParseEvent normalizes one store event. Cancelled events arrive as tombstones
// with most fields stripped, so only the id and flag are meaningful there.
func ParseEvent(ev *calendar.Event) Change {
	ch := Change{EventID: ev.Id, Cancelled: ev.Status == "cancelled"}

	if ts, err := time.Parse(time.RFC3339, ev.Updated); err == nil {
		ch.Updated = ts
	}
	if ch.Cancelled {
		return ch
	}

	title := ev.Summary
	location := ev.Location
	ch.Fields.Title = &title
	ch.Fields.Location = &location

	if ev.Start != nil {
		switch {
		case ev.Start.DateTime != "":
			if start, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
				date := start.Format("2006-01-02")
				clock := start.Format("15:04")
				ch.Fields.ItemDate = &date
				ch.Fields.StartTime = &clock
			}
		case ev.Start.Date != "":
			date := ev.Start.Date
			empty := ""
			ch.Fields.ItemDate = &date
			ch.Fields.StartTime = &empty
		}
	}

	return ch
}
