package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = session.Identity{SessionKey: "sess-1", Fingerprint: "fp-1"}

type cartCall struct {
	op        string
	id        session.Identity
	productID string
	quantity  int
	items     []service.SyncItem
}

type mockCartManager struct {
	cart  *domain.Cart
	err   error
	calls []cartCall
}

func (m *mockCartManager) record(c cartCall) (*domain.Cart, error) {
	m.calls = append(m.calls, c)
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

func (m *mockCartManager) GetCart(ctx context.Context, id session.Identity) (*domain.Cart, error) {
	return m.record(cartCall{op: "get", id: id})
}

func (m *mockCartManager) AddItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error) {
	return m.record(cartCall{op: "add", id: id, productID: productID, quantity: quantity})
}

func (m *mockCartManager) UpdateItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error) {
	return m.record(cartCall{op: "update", id: id, productID: productID, quantity: quantity})
}

func (m *mockCartManager) RemoveItem(ctx context.Context, id session.Identity, productID string) (*domain.Cart, error) {
	return m.record(cartCall{op: "remove", id: id, productID: productID})
}

func (m *mockCartManager) ClearCart(ctx context.Context, id session.Identity) (*domain.Cart, error) {
	return m.record(cartCall{op: "clear", id: id})
}

func (m *mockCartManager) SyncCart(ctx context.Context, id session.Identity, items []service.SyncItem) (*domain.Cart, error) {
	return m.record(cartCall{op: "sync", id: id, items: items})
}

func sampleCart() *domain.Cart {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cart := domain.NewCart(testIdentity.SessionKey, testIdentity.Fingerprint, now, 0)
	cart.ID = "cart-1"
	cart.Items = []domain.CartItem{
		{ItemID: "i1", ProductRef: "P1", Quantity: 2, UnitPriceSnapshot: 150000, AddedAt: now},
		{ItemID: "i2", ProductRef: "P2", Quantity: 1, UnitPriceSnapshot: 85000, AddedAt: now},
	}
	return cart
}

func withIdentity(r *http.Request) *http.Request {
	return r.WithContext(session.NewContext(r.Context(), testIdentity))
}

// withURLParam routes a single chi URL parameter without a full router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var resp CartResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestGetCart_Success(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil)))

	require.Equal(t, http.StatusOK, recorder.Code)
	resp := decodeCart(t, recorder)
	assert.Equal(t, "cart-1", resp.ID)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, int64(385000), resp.TotalAmount)
	assert.Equal(t, 3, resp.TotalItems)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, int64(300000), resp.Items[0].Subtotal)
	assert.Equal(t, testIdentity, carts.calls[0].id)
}

func TestGetCart_NoSession(t *testing.T) {
	handler := NewCartHandler(&mockCartManager{cart: sampleCart()}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "missing_session", decodeError(t, recorder).Code)
}

func TestAddItem_Success(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	body := []byte(`{"product_id":"P1","quantity":2}`)
	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader(body))))

	require.Equal(t, http.StatusCreated, recorder.Code)
	require.Len(t, carts.calls, 1)
	assert.Equal(t, "P1", carts.calls[0].productID)
	assert.Equal(t, 2, carts.calls[0].quantity)
}

func TestAddItem_DefaultsQuantityToOne(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader([]byte(`{"product_id":"P1"}`)))))

	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, 1, carts.calls[0].quantity)
}

func TestAddItem_InvalidJSON(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	tests := []struct {
		name string
		body string
	}{
		{"garbage", "invalid json"},
		{"fractional quantity", `{"product_id":"P1","quantity":2.5}`},
		{"string quantity", `{"product_id":"P1","quantity":"two"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.AddItem(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader([]byte(tt.body)))))

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, "invalid_request", decodeError(t, recorder).Code)
		})
	}
	assert.Empty(t, carts.calls)
}

func TestAddItem_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.Invalid("quantity", "must be a positive integer"), http.StatusBadRequest, "validation_failed"},
		{"product not found", &domain.ProductError{ProductID: "P9", Kind: domain.ErrNotFound}, http.StatusUnprocessableEntity, "product_not_found"},
		{"product unavailable", &domain.ProductError{ProductID: "P5", Kind: domain.ErrUnavailable}, http.StatusUnprocessableEntity, "product_unavailable"},
		{"catalog outage", fmt.Errorf("catalog lookup P1: %w", domain.ErrDependency), http.StatusBadGateway, "dependency_failure"},
		{"store failure", fmt.Errorf("add item: %w: %w", domain.ErrPersistence, errors.New("connection reset")), http.StatusInternalServerError, "internal_error"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCartHandler(&mockCartManager{err: tt.err}, 5*time.Second, nil)

			recorder := httptest.NewRecorder()
			handler.AddItem(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader([]byte(`{"product_id":"P1","quantity":1}`)))))

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, recorder).Code)
		})
	}
}

func TestAddItem_ValidationFields(t *testing.T) {
	handler := NewCartHandler(&mockCartManager{err: domain.Invalid("product_id", "is required")}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader([]byte(`{"quantity":1}`)))))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, map[string]string{"product_id": "is required"}, decodeError(t, recorder).Fields)
}

func TestInternalErrorDoesNotLeakDetails(t *testing.T) {
	handler := NewCartHandler(&mockCartManager{err: errors.New("mongo: server selection timeout at 10.0.0.3")}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, withIdentity(httptest.NewRequest(http.MethodGet, "/", nil)))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "10.0.0.3")
}

func TestUpdateQuantity_Success(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	req := httptest.NewRequest(http.MethodPut, "/items/P1", bytes.NewReader([]byte(`{"quantity":0}`)))
	req = withIdentity(withURLParam(req, "product_id", "P1"))

	recorder := httptest.NewRecorder()
	handler.UpdateQuantity(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, cartCall{op: "update", id: testIdentity, productID: "P1", quantity: 0}, carts.calls[0])
}

func TestUpdateQuantity_MissingQuantity(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	req := httptest.NewRequest(http.MethodPut, "/items/P1", bytes.NewReader([]byte(`{}`)))
	req = withIdentity(withURLParam(req, "product_id", "P1"))

	recorder := httptest.NewRecorder()
	handler.UpdateQuantity(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_quantity", decodeError(t, recorder).Code)
	assert.Empty(t, carts.calls)
}

func TestUpdateQuantity_ItemNotInCart(t *testing.T) {
	handler := NewCartHandler(&mockCartManager{err: fmt.Errorf("update: %w", domain.ErrNotFound)}, 5*time.Second, nil)

	req := httptest.NewRequest(http.MethodPut, "/items/P3", bytes.NewReader([]byte(`{"quantity":4}`)))
	req = withIdentity(withURLParam(req, "product_id", "P3"))

	recorder := httptest.NewRecorder()
	handler.UpdateQuantity(recorder, req)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRemoveItem(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	req := withIdentity(withURLParam(httptest.NewRequest(http.MethodDelete, "/items/P2", nil), "product_id", "P2"))
	recorder := httptest.NewRecorder()
	handler.RemoveItem(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "remove", carts.calls[0].op)
	assert.Equal(t, "P2", carts.calls[0].productID)
}

func TestRemoveItem_EmptyProductID(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	req := withIdentity(withURLParam(httptest.NewRequest(http.MethodDelete, "/items/", nil), "product_id", " "))
	recorder := httptest.NewRecorder()
	handler.RemoveItem(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, carts.calls)
}

func TestClearCart(t *testing.T) {
	cleared := sampleCart()
	cleared.Items = nil
	cleared.Status = domain.CartStatusAbandoned
	handler := NewCartHandler(&mockCartManager{cart: cleared}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.ClearCart(recorder, withIdentity(httptest.NewRequest(http.MethodDelete, "/", nil)))

	require.Equal(t, http.StatusOK, recorder.Code)
	resp := decodeCart(t, recorder)
	assert.Equal(t, "abandoned", resp.Status)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
	assert.Zero(t, resp.TotalAmount)
}

func TestSyncCart_PassesRawQuantities(t *testing.T) {
	carts := &mockCartManager{cart: sampleCart()}
	handler := NewCartHandler(carts, 5*time.Second, nil)

	body := `{"items":[{"product_id":"P1","quantity":3},{"product_id":"P2","quantity":"abc"},{"product_id":"P3"}]}`
	recorder := httptest.NewRecorder()
	handler.SyncCart(recorder, withIdentity(httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader([]byte(body)))))

	require.Equal(t, http.StatusOK, recorder.Code)
	items := carts.calls[0].items
	require.Len(t, items, 3)
	assert.Equal(t, 3, service.CoerceQuantity(items[0].Quantity))
	assert.Equal(t, 1, service.CoerceQuantity(items[1].Quantity))
	assert.Equal(t, 1, service.CoerceQuantity(items[2].Quantity))
}
