package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/interceptor"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/pos"
	"github.com/xelth-com/eckpos/internal/store"
)

// downTransport never reaches the backend
type downTransport struct{}

func (downTransport) Do(ctx context.Context, method, path string, body interface{}, header http.Header) (*backend.Response, error) {
	return nil, &backend.ConnectivityError{Method: method, Path: path, Err: errors.New("network is unreachable")}
}

func offlinePos(t *testing.T) (*mux.Router, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Init(context.Background()))
	p, err := models.ProductFromJSON([]byte(`{"id":1,"sku":"HAM-01","barcode":"8901","name":"Claw Hammer","selling_price":"459.77"}`))
	require.NoError(t, err)
	require.NoError(t, st.UpsertProducts(context.Background(), []models.Product{p}))

	ic := interceptor.New(downTransport{}, st, nil)
	r := mux.NewRouter()
	NewPosHandler(pos.NewCheckout(ic, pos.DefaultTaxRate, "Rs"), pos.NewLookup(ic)).RegisterRoutes(r)
	return r, st
}

func TestOfflineSaleEndpoint(t *testing.T) {
	r, st := offlinePos(t)

	rec := do(t, r, http.MethodPost, "/sales", `{"items":[{"barcode":"8901","quantity":1}],"payment_method":"cash","paid_amount":"500"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Receipt pos.Receipt `json:"receipt"`
		Status  string      `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Receipt.Offline)
	assert.Equal(t, pos.OfflineMarker, body.Status)
	assert.Equal(t, "500.00", body.Receipt.Total.StringFixed(2))

	pending, err := st.ListPendingOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSaleEndpointErrors(t *testing.T) {
	r, _ := offlinePos(t)

	rec := do(t, r, http.MethodPost, "/sales", `{"items":[{"barcode":"8901","quantity":1}],"payment_method":"cash","paid_amount":"300"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, r, http.MethodPost, "/sales", `{"items":[],"payment_method":"cash","paid_amount":"300"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/sales", `{"items":[{"barcode":"0000","quantity":1}],"payment_method":"card"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectedSaleKeepsBackendStatus(t *testing.T) {
	rec := do(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondSaleError(w, &backend.RejectedError{Status: http.StatusUnauthorized, Body: []byte(`{"error":"token expired"}`)})
	}), http.MethodGet, "/", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"token expired"}`, rec.Body.String())
}
