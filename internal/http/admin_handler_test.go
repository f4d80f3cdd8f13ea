package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCartAdmin struct {
	carts   []*domain.Cart
	total   int64
	deleted int64
	err     error
	filter  domain.CartFilter
}

func (m *mockCartAdmin) ListCarts(ctx context.Context, filter domain.CartFilter) ([]*domain.Cart, int64, error) {
	m.filter = filter
	return m.carts, m.total, m.err
}

func (m *mockCartAdmin) CleanupExpired(ctx context.Context) (int64, error) {
	return m.deleted, m.err
}

type mockOrderAdmin struct {
	orders  []*domain.Order
	total   int64
	err     error
	filter  domain.OrderFilter
	status  *domain.OrderStatus
	notes   *string
	deleted []string
}

func (m *mockOrderAdmin) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int64, error) {
	m.filter = filter
	return m.orders, m.total, m.err
}

func (m *mockOrderAdmin) UpdateStatus(ctx context.Context, orderNumber string, status *domain.OrderStatus, notes *string) (*domain.Order, error) {
	m.status, m.notes = status, notes
	if m.err != nil {
		return nil, m.err
	}
	o := sampleOrder()
	o.OrderNumber = orderNumber
	if status != nil {
		o.Status = *status
	}
	return o, nil
}

func (m *mockOrderAdmin) Delete(ctx context.Context, orderNumber string) error {
	m.deleted = append(m.deleted, orderNumber)
	return m.err
}

func TestAdminListCarts(t *testing.T) {
	carts := &mockCartAdmin{carts: []*domain.Cart{sampleCart()}, total: 41}
	handler := NewAdminHandler(carts, &mockOrderAdmin{}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.ListCarts(recorder, httptest.NewRequest(http.MethodGet, "/admin/carts?status=active&page=3&limit=10", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, domain.CartFilter{Status: domain.CartStatusActive, Page: 3, Limit: 10}, carts.filter)

	var resp PageResponse[AdminCartDTO]
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, int64(41), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "sess-1", resp.Items[0].SessionKey)
	assert.Equal(t, int64(385000), resp.Items[0].TotalAmount)
}

func TestAdminCleanupCarts(t *testing.T) {
	handler := NewAdminHandler(&mockCartAdmin{deleted: 7}, &mockOrderAdmin{}, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.CleanupCarts(recorder, httptest.NewRequest(http.MethodPost, "/admin/carts/cleanup", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"deleted":7}`, recorder.Body.String())
}

func TestAdminListOrders_Filters(t *testing.T) {
	orders := &mockOrderAdmin{orders: []*domain.Order{sampleOrder()}, total: 1}
	handler := NewAdminHandler(&mockCartAdmin{}, orders, 5*time.Second, nil)

	url := "/admin/orders?status=contacted&phone=0900&search=ORD-2026&from=2026-03-01&to=2026-03-31"
	recorder := httptest.NewRecorder()
	handler.ListOrders(recorder, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, domain.OrderStatusContacted, orders.filter.Status)
	assert.Equal(t, "0900", orders.filter.Phone)
	assert.Equal(t, "ORD-2026", orders.filter.Search)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), orders.filter.From)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), orders.filter.To, "day-only upper bound covers the whole day")
	assert.Equal(t, 1, orders.filter.Page)
	assert.Equal(t, 20, orders.filter.Limit)
}

func TestAdminListOrders_BadDate(t *testing.T) {
	orders := &mockOrderAdmin{}
	handler := NewAdminHandler(&mockCartAdmin{}, orders, 5*time.Second, nil)

	recorder := httptest.NewRecorder()
	handler.ListOrders(recorder, httptest.NewRequest(http.MethodGet, "/admin/orders?from=yesterday", nil))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, decodeError(t, recorder).Fields, "from")
}

func TestAdminUpdateOrder(t *testing.T) {
	orders := &mockOrderAdmin{}
	handler := NewAdminHandler(&mockCartAdmin{}, orders, 5*time.Second, nil)

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ORD-1", bytes.NewReader([]byte(`{"status":"contacted"}`)))
	req = withURLParam(req, "order_number", "ORD-1")
	recorder := httptest.NewRecorder()
	handler.UpdateOrder(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, orders.status)
	assert.Equal(t, domain.OrderStatusContacted, *orders.status)
	assert.Nil(t, orders.notes)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, "contacted", resp["status"])
}

func TestAdminUpdateOrder_NotFound(t *testing.T) {
	orders := &mockOrderAdmin{err: fmt.Errorf("update order ORD-1: %w", repository.ErrOrderNotFound)}
	handler := NewAdminHandler(&mockCartAdmin{}, orders, 5*time.Second, nil)

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/admin/orders/ORD-1", bytes.NewReader([]byte(`{"notes":"called"}`))), "order_number", "ORD-1")
	recorder := httptest.NewRecorder()
	handler.UpdateOrder(recorder, req)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAdminDeleteOrder(t *testing.T) {
	orders := &mockOrderAdmin{}
	handler := NewAdminHandler(&mockCartAdmin{}, orders, 5*time.Second, nil)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/admin/orders/ORD-1", nil), "order_number", "ORD-1")
	recorder := httptest.NewRecorder()
	handler.DeleteOrder(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, []string{"ORD-1"}, orders.deleted)
}

func TestParseDate(t *testing.T) {
	got, ok := parseDate("2026-03-01T08:30:00+07:00", true)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC)))

	got, ok = parseDate("", false)
	assert.True(t, ok)
	assert.True(t, got.IsZero())

	_, ok = parseDate("03/01/2026", false)
	assert.False(t, ok)
}

func TestPaging(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 20},
		{"page=0&limit=-5", 1, 20},
		{"page=2&limit=500", 2, 100},
		{"page=x&limit=y", 1, 20},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		page, limit := paging(req.URL.Query())
		assert.Equal(t, tt.wantPage, page, tt.query)
		assert.Equal(t, tt.wantLimit, limit, tt.query)
	}
}
