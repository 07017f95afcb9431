package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hweiling/tripline/internal/domain"
	"github.com/hweiling/tripline/internal/handler"
)

// mockItineraryServicer is a test double for handler.ItineraryServicer.
// Set only the method fields your test needs.
type mockItineraryServicer struct {
	create  func(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
	getByID func(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error)
	list    func(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error)
	update  func(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error)
}

func (m *mockItineraryServicer) Create(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	return m.create(ctx, item)
}
func (m *mockItineraryServicer) GetByID(ctx context.Context, tripID, itemID uuid.UUID) (domain.ItineraryItem, error) {
	return m.getByID(ctx, tripID, itemID)
}
func (m *mockItineraryServicer) ListByTripID(ctx context.Context, tripID uuid.UUID) ([]domain.ItineraryItem, error) {
	return m.list(ctx, tripID)
}
func (m *mockItineraryServicer) Update(ctx context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
	return m.update(ctx, item)
}

var _ handler.ItineraryServicer = (*mockItineraryServicer)(nil)

// ---- helpers ---------------------------------------------------------------

// newItemRouter wires a Server with the given mock into a chi router, the
// same way main.go wires it in production (minus middleware).
func newItemRouter(svc handler.ItineraryServicer) http.Handler {
	srv := handler.NewServer(svc, nil, nil, "")
	r := chi.NewRouter()
	srv.Routes(r)
	return r
}

func itemFixture(tripID uuid.UUID) domain.ItineraryItem {
	return domain.ItineraryItem{
		ID:        uuid.New(),
		TripID:    tripID,
		ItemDate:  "2026-03-11",
		Title:     "Sushi dinner",
		StartTime: "18:00",
		Location:  "Sapporo",
		Category:  "food",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

// ---- CreateItem ------------------------------------------------------------

func TestCreateItem_Success(t *testing.T) {
	tripID := uuid.New()
	svc := &mockItineraryServicer{
		create: func(_ context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
			assert.Equal(t, tripID, item.TripID)
			item.ID = uuid.New()
			return item, nil
		},
	}
	h := newItemRouter(svc)

	body := jsonBody(t, map[string]string{
		"item_date": "2026-03-11", "title": "Sushi dinner", "start_time": "18:00", "category": "food",
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/trips/%s/items", tripID), body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Sushi dinner", got["title"])
	assert.Equal(t, tripID.String(), got["trip_id"])
}

func TestCreateItem_ValidationError(t *testing.T) {
	svc := &mockItineraryServicer{
		create: func(_ context.Context, _ domain.ItineraryItem) (domain.ItineraryItem, error) {
			return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Create: %w: title is required", domain.ErrValidation)
		},
	}
	h := newItemRouter(svc)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/trips/%s/items", uuid.New()), jsonBody(t, map[string]string{}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var got handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "validation_error", got.Error.Code)
	assert.Equal(t, "title is required", got.Error.Message)
}

func TestCreateItem_TripNotFound(t *testing.T) {
	svc := &mockItineraryServicer{
		create: func(_ context.Context, _ domain.ItineraryItem) (domain.ItineraryItem, error) {
			return domain.ItineraryItem{}, fmt.Errorf("service.ItineraryService.Create: %w", domain.ErrNotFound)
		},
	}
	h := newItemRouter(svc)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/trips/%s/items", uuid.New()), jsonBody(t, map[string]string{"title": "x"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var got handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "not_found", got.Error.Code)
}

func TestCreateItem_MalformedBody(t *testing.T) {
	h := newItemRouter(&mockItineraryServicer{})

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/trips/%s/items", uuid.New()), bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateItem_MalformedTripID(t *testing.T) {
	h := newItemRouter(&mockItineraryServicer{})

	req := httptest.NewRequest(http.MethodPost, "/trips/not-a-uuid/items", jsonBody(t, map[string]string{"title": "x"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---- ListItems -------------------------------------------------------------

func TestListItems_Success(t *testing.T) {
	tripID := uuid.New()
	svc := &mockItineraryServicer{
		list: func(_ context.Context, id uuid.UUID) ([]domain.ItineraryItem, error) {
			assert.Equal(t, tripID, id)
			return []domain.ItineraryItem{itemFixture(tripID), itemFixture(tripID)}, nil
		},
	}
	h := newItemRouter(svc)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/trips/%s/items", tripID), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got["data"], 2)
}

func TestListItems_EmptyIsJSONArray(t *testing.T) {
	svc := &mockItineraryServicer{
		list: func(context.Context, uuid.UUID) ([]domain.ItineraryItem, error) {
			return []domain.ItineraryItem{}, nil
		},
	}
	h := newItemRouter(svc)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/trips/%s/items", uuid.New()), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

// ---- GetItem / UpdateItem --------------------------------------------------

func TestGetItem_NotFound(t *testing.T) {
	svc := &mockItineraryServicer{
		getByID: func(context.Context, uuid.UUID, uuid.UUID) (domain.ItineraryItem, error) {
			return domain.ItineraryItem{}, domain.ErrNotFound
		},
	}
	h := newItemRouter(svc)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/trips/%s/items/%s", uuid.New(), uuid.New()), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateItem_Success(t *testing.T) {
	tripID := uuid.New()
	itemID := uuid.New()
	svc := &mockItineraryServicer{
		update: func(_ context.Context, item domain.ItineraryItem) (domain.ItineraryItem, error) {
			assert.Equal(t, itemID, item.ID)
			assert.Equal(t, tripID, item.TripID)
			item.UpdatedAt = time.Now().UTC()
			return item, nil
		},
	}
	h := newItemRouter(svc)

	body := jsonBody(t, map[string]string{"item_date": "2026-03-12", "title": "Ramen lunch"})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/trips/%s/items/%s", tripID, itemID), body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Ramen lunch", got["title"])
}
