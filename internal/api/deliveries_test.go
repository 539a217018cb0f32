package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest captures one request for endpoint assertions.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// newEndpointServer serves status 200 with the given response body and
// records every request.
func newEndpointServer(t *testing.T, response any) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}

		if r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}

		reqs = append(reqs, rec)

		w.Header().Set("Content-Type", "application/json")

		if response != nil {
			json.NewEncoder(w).Encode(response)
		}
	}))

	t.Cleanup(srv.Close)

	return srv, &reqs
}

func TestCreateDelivery(t *testing.T) {
	srv, reqs := newEndpointServer(t, Delivery{ID: "d-new", Date: "2025-03-12", Number: "L-2025-031"})
	c := newTestClient(t, srv)

	d, err := c.CreateDelivery(context.Background(), "2025-03-12", "rush order")
	require.NoError(t, err)

	assert.Equal(t, "d-new", d.ID)
	assert.Equal(t, "L-2025-031", d.Number)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/deliveries", req.Path)
	assert.Equal(t, "2025-03-12", req.Body["date"])
	assert.Equal(t, "rush order", req.Body["notes"])
}

func TestDeleteDelivery(t *testing.T) {
	srv, reqs := newEndpointServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.DeleteDelivery(context.Background(), "d1"))

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/deliveries/d1", (*reqs)[0].Path)
}

func TestAddOrderToDelivery(t *testing.T) {
	srv, reqs := newEndpointServer(t, Delivery{
		ID:     "d1",
		Orders: []Order{{ID: 42, Number: "A-42"}},
	})
	c := newTestClient(t, srv)

	d, err := c.AddOrderToDelivery(context.Background(), "d1", 42)
	require.NoError(t, err)
	require.Len(t, d.Orders, 1)
	assert.Equal(t, int64(42), d.Orders[0].ID)

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodPut, (*reqs)[0].Method)
	assert.Equal(t, "/deliveries/d1/orders/42", (*reqs)[0].Path)
}

func TestRemoveOrderFromDelivery(t *testing.T) {
	srv, reqs := newEndpointServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.RemoveOrderFromDelivery(context.Background(), "d1", 42))

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/deliveries/d1/orders/42", (*reqs)[0].Path)
}

func TestMoveOrder(t *testing.T) {
	srv, reqs := newEndpointServer(t, Delivery{ID: "d2"})
	c := newTestClient(t, srv)

	d, err := c.MoveOrder(context.Background(), "d1", 42, "d2")
	require.NoError(t, err)
	assert.Equal(t, "d2", d.ID)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/orders/42/move", req.Path)
	assert.Equal(t, "d1", req.Body["source_delivery_id"])
	assert.Equal(t, "d2", req.Body["target_delivery_id"])
}

func TestAddDeliveryItem(t *testing.T) {
	srv, reqs := newEndpointServer(t, Item{ID: 501, Type: "glass_rack"})
	c := newTestClient(t, srv)

	item, err := c.AddDeliveryItem(context.Background(), "d1", "glass_rack", "rack #4", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(501), item.ID)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/deliveries/d1/items", req.Path)
	assert.Equal(t, "glass_rack", req.Body["type"])
	assert.Equal(t, float64(2), req.Body["quantity"])
}

func TestDeleteDeliveryItem(t *testing.T) {
	srv, reqs := newEndpointServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.DeleteDeliveryItem(context.Background(), "d1", 501))

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/deliveries/d1/items/501", (*reqs)[0].Path)
}

func TestCompleteOrders(t *testing.T) {
	srv, reqs := newEndpointServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.CompleteOrders(context.Background(), "d1", "2025-03-08"))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/deliveries/d1/complete", req.Path)
	assert.Equal(t, "2025-03-08", req.Body["production_date"])
}
