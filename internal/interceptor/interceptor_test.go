package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/session"
	"github.com/xelth-com/eckpos/internal/store"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []bool
}

func (r *recordingReporter) Report(online bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, online)
}

func (r *recordingReporter) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return false, false
	}
	return r.reports[len(r.reports)-1], true
}

// offlineClient points at a server that has already gone away.
func offlineClient(t *testing.T) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	return backend.New(base, 500*time.Millisecond, session.NewHolder(session.Session{}))
}

func onlineClient(t *testing.T, h http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return backend.New(srv.URL, time.Second, session.NewHolder(session.FromToken("tok")))
}

func newStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.Init(context.Background()))
	return s
}

func seedProduct(t *testing.T, s store.Store, raw string) models.Product {
	t.Helper()
	p, err := models.ProductFromJSON([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, s.UpsertProducts(context.Background(), []models.Product{p}))
	return p
}

// failingOrders refuses to persist pending orders.
type failingOrders struct {
	store.Store
}

func (failingOrders) AppendPendingOrder(ctx context.Context, order *models.PendingOrder) error {
	return store.ErrStorageUnavailable
}

func TestOnlineResponsePassesThrough(t *testing.T) {
	client := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"id":1,"sku":"HAM-01","name":"Claw Hammer","selling_price":350}]}`))
	})
	rep := &recordingReporter{}
	i := New(client, newStore(t), rep)

	resp, err := i.Send(context.Background(), http.MethodGet, "/products", nil)
	require.NoError(t, err)

	assert.False(t, resp.Queued)
	assert.False(t, resp.FromCache)
	assert.JSONEq(t, `{"products":[{"id":1,"sku":"HAM-01","name":"Claw Hammer","selling_price":350}]}`, string(resp.Body))
	online, ok := rep.last()
	require.True(t, ok)
	assert.True(t, online)
}

func TestRejectionIsReturnedNotQueued(t *testing.T) {
	client := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"insufficient stock"}`))
	})
	st := newStore(t)
	rep := &recordingReporter{}
	i := New(client, st, rep)

	_, err := i.Send(context.Background(), http.MethodPost, "/orders", map[string]interface{}{"items": []int{}})
	require.Error(t, err)

	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "insufficient stock", rejected.Message())

	pending, err := st.ListPendingOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A rejection still proves the backend is reachable
	online, _ := rep.last()
	assert.True(t, online)
}

func TestOrderCreateCarriesIdempotencyKey(t *testing.T) {
	var header, reference string
	client := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(backend.IdempotencyHeader)
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			ClientReference string `json:"client_reference"`
		}
		_ = json.Unmarshal(body, &payload)
		reference = payload.ClientReference
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":{"id":77,"order_number":"ORD-77"}}`))
	})
	i := New(client, newStore(t), nil)

	_, err := i.Send(context.Background(), http.MethodPost, "/orders", map[string]interface{}{"items": []int{}})
	require.NoError(t, err)

	assert.NotEmpty(t, header)
	assert.Equal(t, header, reference)

	// An existing reference is kept
	_, err = i.Send(context.Background(), http.MethodPost, "/orders", map[string]interface{}{"client_reference": "abc-123"})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", header)
	assert.Equal(t, "abc-123", reference)
}

func TestOfflineOrderIsSavedLocally(t *testing.T) {
	st := newStore(t)
	rep := &recordingReporter{}
	i := New(offlineClient(t), st, rep)
	ctx := context.Background()

	payload := models.OrderPayload{
		Items:         []models.OrderItem{{ProductID: 1, Quantity: 2}},
		PaymentMethod: models.PaymentCash,
	}
	resp, err := i.Send(ctx, http.MethodPost, "/orders", payload)
	require.NoError(t, err)

	assert.True(t, resp.Queued)
	assert.Equal(t, http.StatusAccepted, resp.Status)

	var ack Ack
	require.NoError(t, resp.Decode(&ack))
	assert.True(t, ack.Queued)
	assert.NotZero(t, ack.LocalID)
	assert.Contains(t, ack.OrderNumber, "OFFLINE-")

	pending, err := st.ListPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ack.LocalID, pending[0].LocalID)
	assert.False(t, pending[0].Synced)
	assert.NotEmpty(t, pending[0].IdempotencyKey)

	stored, err := pending[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, pending[0].IdempotencyKey, stored.ClientReference)
	assert.Len(t, stored.Items, 1)

	online, ok := rep.last()
	require.True(t, ok)
	assert.False(t, online)
}

func TestOfflineOrderStorageFailureIsReported(t *testing.T) {
	i := New(offlineClient(t), failingOrders{Store: newStore(t)}, nil)

	resp, err := i.Send(context.Background(), http.MethodPost, "/orders", map[string]interface{}{"items": []int{}})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestOfflineWritesAreQueued(t *testing.T) {
	st := newStore(t)
	i := New(offlineClient(t), st, nil)
	ctx := context.Background()

	cases := []struct {
		method, path, queueType string
	}{
		{http.MethodPost, "/customers", models.QueueTypeCreateCustomer},
		{http.MethodPut, "/inventory/4", models.QueueTypeUpdateInventory},
		{http.MethodPatch, "/products/9", models.QueueTypeUpdateProduct},
		{http.MethodPost, "/suppliers", models.QueueTypeRequest},
	}
	for _, tc := range cases {
		resp, err := i.Send(ctx, tc.method, tc.path, map[string]int{"quantity": 3})
		require.NoError(t, err, tc.path)
		assert.True(t, resp.Queued)

		var ack Ack
		require.NoError(t, resp.Decode(&ack))
		assert.NotZero(t, ack.QueueID)
	}

	items, err := st.ListSyncItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, len(cases))
	for n, tc := range cases {
		assert.Equal(t, tc.queueType, items[n].Type)
		assert.Equal(t, tc.method, items[n].Method)
		assert.Equal(t, tc.path, items[n].Path)
		assert.JSONEq(t, `{"quantity":3}`, string(items[n].Payload))
		assert.Zero(t, items[n].RetryCount)
	}
}

func TestOfflineDeleteIsNotQueued(t *testing.T) {
	st := newStore(t)
	i := New(offlineClient(t), st, nil)

	_, err := i.Send(context.Background(), http.MethodDelete, "/products/3", nil)
	require.Error(t, err)
	assert.Equal(t, backend.FailureConnectivity, backend.ClassifyFailure(err))

	items, err := st.ListSyncItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOfflineReadsServeCachedRecords(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	seedProduct(t, st, `{"id":1,"sku":"HAM-01","barcode":"8901","name":"Claw Hammer","selling_price":350}`)
	seedProduct(t, st, `{"id":2,"sku":"SAW-02","barcode":"8902","name":"Hand Saw","selling_price":420}`)
	c, err := models.CustomerFromJSON([]byte(`{"id":5,"first_name":"Asha","last_name":"Rao","phone":"+919800000001"}`))
	require.NoError(t, err)
	require.NoError(t, st.UpsertCustomers(ctx, []models.Customer{c}))
	require.NoError(t, st.UpsertInventory(ctx, []models.InventorySnapshot{{ProductID: 1, QuantityOnHand: 12, LastUpdated: time.Now()}}))

	i := New(offlineClient(t), st, nil)

	t.Run("product list", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/products", nil)
		require.NoError(t, err)
		assert.True(t, resp.FromCache)
		var body struct {
			Products []map[string]interface{} `json:"products"`
		}
		require.NoError(t, resp.Decode(&body))
		assert.Len(t, body.Products, 2)
	})

	t.Run("search", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/products/search?q=saw", nil)
		require.NoError(t, err)
		var body struct {
			Products []struct {
				SKU string `json:"sku"`
			} `json:"products"`
		}
		require.NoError(t, resp.Decode(&body))
		require.Len(t, body.Products, 1)
		assert.Equal(t, "SAW-02", body.Products[0].SKU)
	})

	t.Run("search without match", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/products/search?q=drill", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"products":[]}`, string(resp.Body))
	})

	t.Run("barcode", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/products/barcode/8901", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"product":{"id":1,"sku":"HAM-01","barcode":"8901","name":"Claw Hammer","selling_price":350}}`, string(resp.Body))
	})

	t.Run("barcode with slash", func(t *testing.T) {
		seedProduct(t, st, `{"id":3,"sku":"PIPE-3","barcode":"PV/20-3","name":"PVC Pipe","selling_price":80}`)
		resp, err := i.Send(ctx, http.MethodGet, "/products/barcode/"+url.PathEscape("PV/20-3"), nil)
		require.NoError(t, err)
		assert.True(t, resp.FromCache)
		assert.JSONEq(t, `{"product":{"id":3,"sku":"PIPE-3","barcode":"PV/20-3","name":"PVC Pipe","selling_price":80}}`, string(resp.Body))
	})

	t.Run("unknown barcode", func(t *testing.T) {
		_, err := i.Send(ctx, http.MethodGet, "/products/barcode/0000", nil)
		assert.ErrorIs(t, err, ErrNoCachedData)
	})

	t.Run("customer by phone", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/customers/phone/+919800000001", nil)
		require.NoError(t, err)
		var body struct {
			Customer struct {
				ID int64 `json:"id"`
			} `json:"customer"`
		}
		require.NoError(t, resp.Decode(&body))
		assert.Equal(t, int64(5), body.Customer.ID)
	})

	t.Run("stock", func(t *testing.T) {
		resp, err := i.Send(ctx, http.MethodGet, "/inventory/1", nil)
		require.NoError(t, err)
		var body struct {
			Inventory models.InventorySnapshot `json:"inventory"`
		}
		require.NoError(t, resp.Decode(&body))
		assert.Equal(t, 12, body.Inventory.QuantityOnHand)
	})

	t.Run("uncached resource", func(t *testing.T) {
		_, err := i.Send(ctx, http.MethodGet, "/reports/daily", nil)
		require.Error(t, err)
		assert.Equal(t, backend.FailureConnectivity, backend.ClassifyFailure(err))
	})
}

func TestOfflineReadWithEmptyReplica(t *testing.T) {
	i := New(offlineClient(t), newStore(t), nil)
	ctx := context.Background()

	for _, path := range []string{"/products", "/products/search?q=hammer", "/customers", "/inventory/1"} {
		_, err := i.Send(ctx, http.MethodGet, path, nil)
		assert.ErrorIs(t, err, ErrNoCachedData, path)
	}
}

func TestOfflineReadMatchesLastOnlineRead(t *testing.T) {
	const catalogue = `{"products":[{"id":1,"sku":"HAM-01","name":"Claw Hammer","selling_price":350,"category":"tools"}]}`
	online := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(catalogue))
	})
	st := newStore(t)
	ctx := context.Background()

	resp, err := New(online, st, nil).Send(ctx, http.MethodGet, "/products", nil)
	require.NoError(t, err)

	// What a pull would have stored
	records, err := backend.DecodeCollection(resp.Body, "products")
	require.NoError(t, err)
	for _, raw := range records {
		seedProduct(t, st, string(raw))
	}

	cached, err := New(offlineClient(t), st, nil).Send(ctx, http.MethodGet, "/products", nil)
	require.NoError(t, err)
	assert.JSONEq(t, string(resp.Body), string(cached.Body))
}

func TestOnlineStockLookupRefreshesSnapshot(t *testing.T) {
	client := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"inventory":{"product_id":3,"quantity_on_hand":41}}`))
	})
	st := newStore(t)
	i := New(client, st, nil)

	_, err := i.Send(context.Background(), http.MethodGet, "/inventory/3", nil)
	require.NoError(t, err)

	snap, err := st.GetInventory(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 41, snap.QuantityOnHand)
}

func TestCanceledRequestIsNeitherCachedNorQueued(t *testing.T) {
	block := make(chan struct{})
	client := onlineClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	st := newStore(t)
	rep := &recordingReporter{}
	i := New(client, st, rep)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := i.Send(ctx, http.MethodPost, "/customers", map[string]string{"first_name": "Asha"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	items, err := st.ListSyncItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	_, reported := rep.last()
	assert.False(t, reported)
}
