package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndFetchOrder(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKUs(10, 20)
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders", map[string]any{
		"entity_id": 1,
		"lines": []map[string]any{
			{"sku": 10, "qty": "2"},
			{"sku": 20, "qty": "3.5"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createdOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.OrderID)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%d", created.OrderID), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var ord orderResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &ord))
	require.Equal(t, "purchase", ord.Type)
	require.Len(t, ord.Lines, 2)
	require.Equal(t, 1, ord.Lines[0].Position)
	require.Equal(t, 2, ord.Lines[1].Position)
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	router := newTestRouter(f)

	// Missing lines fails struct validation.
	rec := doJSON(t, router, http.MethodPost, "/sale-orders", map[string]any{"entity_id": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown counterparty maps to 404.
	rec = doJSON(t, router, http.MethodPost, "/sale-orders", map[string]any{
		"entity_id": 9,
		"lines":     []map[string]any{{"sku": 10, "qty": "1"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed quantity maps to 400.
	rec = doJSON(t, router, http.MethodPost, "/sale-orders", map[string]any{
		"entity_id": 1,
		"lines":     []map[string]any{{"sku": 10, "qty": "lots"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerFulfillmentFlow(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerEntity(2)
	f.registerSKU(10)
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders", map[string]any{
		"entity_id": 1,
		"lines":     []map[string]any{{"sku": 10, "qty": "4"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var po createdOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &po))

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/purchase-orders/%d/receive", po.OrderID), map[string]any{"mode": "full-delivery"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 4, f.ledger.qty(10), 1e-9)

	rec = doJSON(t, router, http.MethodPost, "/sale-orders", map[string]any{
		"entity_id": 2,
		"lines":     []map[string]any{{"sku": 10, "qty": "5"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var so createdOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &so))

	// Demands exceed stock, ship-full refuses with 409 and mutates nothing.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sale-orders/%d/issue", so.OrderID), map[string]any{"mode": "ship-full"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.InDelta(t, 4, f.ledger.qty(10), 1e-9)

	// Unknown fulfillment mode maps to 400.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sale-orders/%d/issue", so.OrderID), map[string]any{"mode": "partial"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Fulfilling a missing order maps to 404.
	rec = doJSON(t, router, http.MethodPost, "/purchase-orders/9999/receive", map[string]any{"mode": "full-delivery"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
