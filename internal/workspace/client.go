// Package workspace wraps the Notion API as the external workspace store:
// itinerary rows mirrored as pages in a per-trip database. The rest of the
// service consumes this package through the interfaces declared in
// internal/sync, never the Notion client directly.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/sethvargo/go-retry"

	"github.com/hweiling/tripline/internal/domain"
)

// Property names of the per-trip itinerary database, fixed at bootstrap when
// the database is provisioned.
const (
	propTitle    = "Title"
	propDate     = "Date"
	propTime     = "Time"
	propLocation = "Location"
	propCategory = "Type"
)

const queryPageSize = 100

// Row is one workspace database row normalized to canonical field shape.
// LastEdited is the store's own last-modified time and becomes the candidate
// timestamp during ingestion.
type Row struct {
	ID         string
	LastEdited time.Time
	Fields     domain.ItemFields
	Archived   bool
}

// Client is the Notion-backed workspace store client.
type Client struct {
	api *notionapi.Client
}

// NewClient constructs a workspace client authenticated with the given
// integration token.
func NewClient(token string) *Client {
	return &Client{api: notionapi.NewClient(notionapi.Token(token))}
}

// QueryUpdatedSince returns every row of the given database edited strictly
// after since, oldest edit first, following pagination cursors until the
// store reports no more results.
func (c *Client) QueryUpdatedSince(ctx context.Context, databaseID string, since time.Time) ([]Row, error) {
	after := notionapi.Date(since)
	req := &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.TimestampFilter{
			Timestamp:      notionapi.TimestampLastEdited,
			LastEditedTime: &notionapi.DateFilterCondition{After: &after},
		},
		Sorts: []notionapi.SortObject{
			{Timestamp: notionapi.TimestampLastEdited, Direction: notionapi.SortOrderASC},
		},
		PageSize: queryPageSize,
	}

	var rows []Row
	for {
		var resp *notionapi.DatabaseQueryResponse
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			resp, err = c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("workspace.Client.QueryUpdatedSince: %w", err)
		}

		for _, page := range resp.Results {
			rows = append(rows, ParseRow(page))
		}

		if !resp.HasMore {
			return rows, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// CreateItem mirrors a canonical item as a new row in the trip's itinerary
// database and returns the store's id for it.
func (c *Client) CreateItem(ctx context.Context, databaseID string, item domain.ItineraryItem) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: itemProperties(domain.ItemFields{
			Title:     &item.Title,
			ItemDate:  &item.ItemDate,
			StartTime: &item.StartTime,
			Location:  &item.Location,
			Category:  &item.Category,
		}),
	}

	var page *notionapi.Page
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		page, err = c.api.Page.Create(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("workspace.Client.CreateItem: %w", err)
	}
	return string(page.ID), nil
}

// UpdateItem writes only the changed fields to an existing row.
func (c *Client) UpdateItem(ctx context.Context, pageID string, fields domain.ItemFields) error {
	props := itemProperties(fields)
	if len(props) == 0 {
		return nil
	}

	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
			Properties: props,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("workspace.Client.UpdateItem: %w", err)
	}
	return nil
}

// itemProperties builds the property payload for the non-nil fields.
func itemProperties(f domain.ItemFields) notionapi.Properties {
	props := notionapi.Properties{}
	if f.Title != nil {
		props[propTitle] = notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: *f.Title}}},
		}
	}
	if f.ItemDate != nil && *f.ItemDate != "" {
		if t, err := time.Parse("2006-01-02", *f.ItemDate); err == nil {
			start := notionapi.Date(t)
			props[propDate] = notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &start},
			}
		}
	}
	if f.StartTime != nil {
		props[propTime] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: *f.StartTime}}},
		}
	}
	if f.Location != nil {
		props[propLocation] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: *f.Location}}},
		}
	}
	if f.Category != nil && *f.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: *f.Category},
		}
	}
	return props
}

// withRetry runs call with bounded fibonacci backoff, retrying only
// rate-limit and server-side failures. Anything else surfaces immediately —
// the next scheduled cycle is the retry path for whole-batch failures.
func (c *Client) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(4, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err == nil {
			return nil
		}
		var apiErr *notionapi.Error
		if errors.As(err, &apiErr) && (apiErr.Status == 429 || apiErr.Status >= 500) {
			return retry.RetryableError(err)
		}
		return err
	})
}
