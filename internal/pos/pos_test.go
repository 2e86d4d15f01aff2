package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/interceptor"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/session"
	"github.com/xelth-com/eckpos/internal/store"
	"pgregory.net/rapid"
)

// orderDesk is a backend transport that can go offline or reject orders
type orderDesk struct {
	mu      sync.Mutex
	offline bool
	reject  bool
	calls   int
	orders  []models.OrderPayload
	keys    []string
}

func (d *orderDesk) Do(ctx context.Context, method, path string, body interface{}, header http.Header) (*backend.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.offline {
		return nil, &backend.ConnectivityError{Method: method, Path: path, Err: errors.New("dial tcp: connection refused")}
	}
	if d.reject {
		return nil, &backend.RejectedError{Method: method, Path: path, Status: http.StatusUnprocessableEntity, Body: []byte(`{"error":"product 1 is discontinued"}`)}
	}

	var order models.OrderPayload
	if raw, ok := body.(json.RawMessage); ok {
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, err
		}
	}
	d.orders = append(d.orders, order)
	d.keys = append(d.keys, header.Get(backend.IdempotencyHeader))
	id := len(d.orders)
	return &backend.Response{
		Status: http.StatusCreated,
		Body:   []byte(fmt.Sprintf(`{"order":{"id":%d,"order_number":"ORD-%05d"}}`, id, id)),
	}, nil
}

func (d *orderDesk) setOffline(offline bool) {
	d.mu.Lock()
	d.offline = offline
	d.mu.Unlock()
}

func (d *orderDesk) accepted() []models.OrderPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.OrderPayload(nil), d.orders...)
}

// fataler is satisfied by *testing.T and *rapid.T
type fataler interface {
	Fatal(args ...interface{})
}

func item(t fataler, id int64, name, price string, stock *int) models.Product {
	raw := fmt.Sprintf(`{"id":%d,"sku":"SKU-%d","name":%q,"selling_price":%q}`, id, id, name, price)
	p, err := models.ProductFromJSON([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	p.QuantityOnHand = stock
	return p
}

func stock(n int) *int { return &n }

func newStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.Init(context.Background()))
	return s
}

// fiveHundredCart totals Rs 500.00 with tax: 459.77 + 40.23
func fiveHundredCart(t *testing.T) *Cart {
	cart := NewCart()
	require.NoError(t, cart.Add(item(t, 1, "Angle Grinder", "459.77", nil), 1))
	return cart
}

func TestOnlineCashSaleWithExactChange(t *testing.T) {
	var gotKey string
	var gotOrder models.OrderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		gotKey = r.Header.Get(backend.IdempotencyHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotOrder)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":{"id":812,"order_number":"ORD-000812"}}`))
	}))
	defer srv.Close()

	st := newStore(t)
	client := backend.New(srv.URL, time.Second, session.NewHolder(session.FromToken("tok")))
	co := NewCheckout(interceptor.New(client, st, nil), DefaultTaxRate, "Rs")

	cart := fiveHundredCart(t)
	assert.Equal(t, "500.00", co.Totals(cart).Total.StringFixed(2))

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCash, decimal.RequireFromString("500"))
	require.NoError(t, err)

	assert.Equal(t, "ORD-000812", receipt.OrderNumber)
	assert.Equal(t, int64(812), receipt.ServerID)
	assert.False(t, receipt.Offline)
	assert.Empty(t, receipt.Status())
	assert.Equal(t, "459.77", receipt.Subtotal.StringFixed(2))
	assert.Equal(t, "40.23", receipt.Tax.StringFixed(2))
	assert.Equal(t, "500.00", receipt.Total.StringFixed(2))
	assert.Equal(t, "0.00", receipt.Change.StringFixed(2))
	assert.True(t, cart.IsEmpty())

	assert.Equal(t, receipt.ClientReference, gotKey)
	assert.Equal(t, receipt.ClientReference, gotOrder.ClientReference)
	assert.Equal(t, models.PaymentCash, gotOrder.PaymentMethod)
	require.Len(t, gotOrder.Items, 1)
	assert.Equal(t, "459.77", gotOrder.Items[0].UnitPrice.StringFixed(2))

	orders, err := st.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOfflineSaleGetsProvisionalReceipt(t *testing.T) {
	st := newStore(t)
	desk := &orderDesk{offline: true}
	co := NewCheckout(interceptor.New(desk, st, nil), DefaultTaxRate, "Rs")
	cart := fiveHundredCart(t)

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCash, decimal.RequireFromString("500"))
	require.NoError(t, err)

	assert.True(t, receipt.Offline)
	assert.Equal(t, OfflineMarker, receipt.Status())
	assert.True(t, strings.HasPrefix(receipt.OrderNumber, "OFFLINE-"), receipt.OrderNumber)
	assert.Contains(t, receipt.Text(), strings.ToUpper(OfflineMarker))
	assert.True(t, cart.IsEmpty())

	pending, err := st.ListPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Synced)
	assert.Equal(t, receipt.LocalID, pending[0].LocalID)
	assert.Equal(t, receipt.OrderNumber, pending[0].ProvisionalNumber())
	assert.Equal(t, receipt.ClientReference, pending[0].IdempotencyKey)

	payload, err := pending[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, "500.00", payload.TotalAmount.StringFixed(2))
}

func TestShortCashIsRejectedBeforeSubmitting(t *testing.T) {
	st := newStore(t)
	desk := &orderDesk{}
	co := NewCheckout(interceptor.New(desk, st, nil), DefaultTaxRate, "Rs")
	cart := fiveHundredCart(t)
	before := cart.Lines()

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCash, decimal.RequireFromString("300"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	assert.Nil(t, receipt)

	assert.Equal(t, before, cart.Lines())
	assert.Zero(t, desk.calls)
	orders, err := st.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRejectedSaleKeepsCart(t *testing.T) {
	st := newStore(t)
	desk := &orderDesk{reject: true}
	co := NewCheckout(interceptor.New(desk, st, nil), DefaultTaxRate, "Rs")
	cart := fiveHundredCart(t)

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCard, decimal.Zero)
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, backend.ErrRejected)

	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "product 1 is discontinued", rejected.Message())

	assert.Equal(t, 1, cart.Len())
	orders, err := st.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

type brokenStore struct{ store.Store }

func (brokenStore) AppendPendingOrder(context.Context, *models.PendingOrder) error {
	return &store.Error{Collection: store.PendingOrders, Op: "append", Err: errors.New("disk full")}
}

func TestOfflineSaleThatCannotBeSavedFails(t *testing.T) {
	desk := &orderDesk{offline: true}
	co := NewCheckout(interceptor.New(desk, brokenStore{Store: newStore(t)}, nil), DefaultTaxRate, "Rs")
	cart := fiveHundredCart(t)

	_, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCard, decimal.Zero)
	assert.ErrorIs(t, err, ErrSaleNotPersisted)
	assert.False(t, cart.IsEmpty())
}

func TestCardSaleTendersExactTotal(t *testing.T) {
	desk := &orderDesk{}
	co := NewCheckout(interceptor.New(desk, newStore(t), nil), DefaultTaxRate, "Rs")
	cart := NewCart()
	require.NoError(t, cart.Add(item(t, 2, "Paint Roller", "100", nil), 2))
	customer := models.Customer{ID: 44, FirstName: "Nimal", LastName: "Perera"}

	receipt, err := co.CompleteSale(context.Background(), cart, &customer, models.PaymentCard, decimal.RequireFromString("1"))
	require.NoError(t, err)

	assert.Equal(t, "217.50", receipt.Total.StringFixed(2))
	assert.True(t, receipt.Paid.Equal(receipt.Total))
	assert.True(t, receipt.Change.IsZero())
	assert.Equal(t, "Nimal Perera", receipt.CustomerName)
	assert.NotContains(t, receipt.Text(), "Change")

	orders := desk.accepted()
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].CustomerID)
	assert.Equal(t, int64(44), *orders[0].CustomerID)
}

func TestZeroTaxRateChargesNoTax(t *testing.T) {
	desk := &orderDesk{}
	co := NewCheckout(interceptor.New(desk, newStore(t), nil), decimal.Zero, "Rs")
	cart := NewCart()
	require.NoError(t, cart.Add(item(t, 2, "Paint Roller", "100", nil), 1))

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCard, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, receipt.TaxRate.IsZero())
	assert.True(t, receipt.Tax.IsZero())
	assert.Equal(t, "100.00", receipt.Total.StringFixed(2))

	orders := desk.accepted()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].TaxAmount.IsZero())
	assert.Equal(t, "100.00", orders[0].TotalAmount.StringFixed(2))
}

func TestCashMatchesPrintedTotal(t *testing.T) {
	co := NewCheckout(interceptor.New(&orderDesk{}, newStore(t), nil), decimal.Zero, "Rs")
	cart := NewCart()
	require.NoError(t, cart.Add(item(t, 3, "Wall Plug", "1.094", nil), 1))

	totals := co.Totals(cart)
	assert.Equal(t, "1.09", totals.Total.String())

	receipt, err := co.CompleteSale(context.Background(), cart, nil, models.PaymentCash, decimal.RequireFromString("1.09"))
	require.NoError(t, err)
	assert.True(t, receipt.Change.IsZero())
	assert.Contains(t, receipt.Text(), "1.09")
}

func TestCompleteSaleValidation(t *testing.T) {
	co := NewCheckout(interceptor.New(&orderDesk{}, newStore(t), nil), DefaultTaxRate, "Rs")

	_, err := co.CompleteSale(context.Background(), NewCart(), nil, models.PaymentCash, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = co.CompleteSale(context.Background(), fiveHundredCart(t), nil, models.PaymentMethod("barter"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestCartRespectsKnownStock(t *testing.T) {
	cart := NewCart()
	drill := item(t, 1, "Drill", "2500", stock(2))
	tape := item(t, 2, "Tape", "90", nil)

	require.NoError(t, cart.Add(drill, 1))
	require.NoError(t, cart.Add(drill, 1))
	assert.ErrorIs(t, cart.Add(drill, 1), ErrInsufficientStock)
	assert.ErrorIs(t, cart.SetQuantity(1, 3), ErrInsufficientStock)
	assert.ErrorIs(t, cart.Add(drill, 0), ErrInvalidQuantity)

	// Unknown stock is not limited
	require.NoError(t, cart.Add(tape, 40))
	assert.Equal(t, "8600", cart.Subtotal().String())

	require.NoError(t, cart.SetQuantity(2, 1))
	assert.Equal(t, "5090", cart.Subtotal().String())
	assert.ErrorIs(t, cart.SetQuantity(99, 1), ErrNotInCart)

	require.NoError(t, cart.SetQuantity(2, 0))
	assert.Equal(t, 1, cart.Len())
	assert.True(t, cart.Remove(1))
	assert.False(t, cart.Remove(1))
	assert.True(t, cart.IsEmpty())
}

func TestLookupFallsBackToReplica(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	p := item(t, 5, "Spirit Level", "780", nil)
	p.Barcode = "4006381333931"
	p.RawData = nil
	require.NoError(t, st.UpsertProducts(ctx, []models.Product{p}))
	require.NoError(t, st.UpsertInventory(ctx, []models.InventorySnapshot{{ProductID: 5, QuantityOnHand: 6, LastUpdated: time.Now()}}))
	c, err := models.CustomerFromJSON([]byte(`{"id":3,"first_name":"Kamala","phone":"0771234567"}`))
	require.NoError(t, err)
	require.NoError(t, st.UpsertCustomers(ctx, []models.Customer{c}))

	lookup := NewLookup(interceptor.New(&orderDesk{offline: true}, st, nil))

	got, err := lookup.ProductByBarcode(ctx, "4006381333931")
	require.NoError(t, err)
	assert.Equal(t, "Spirit Level", got.Name)

	found, err := lookup.SearchProducts(ctx, "spirit")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(5), found[0].ID)

	qty, err := lookup.StockLevel(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, qty)

	cust, err := lookup.CustomerByPhone(ctx, "0771234567")
	require.NoError(t, err)
	assert.Equal(t, "Kamala", cust.FirstName)

	_, err = lookup.CustomerByPhone(ctx, "0000")
	assert.ErrorIs(t, err, interceptor.ErrNoCachedData)
}

func TestEveryReceiptIsBackedByAnOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st := store.NewMemoryStore()
		if err := st.Init(ctx); err != nil {
			rt.Fatal(err)
		}
		desk := &orderDesk{}
		co := NewCheckout(interceptor.New(desk, st, nil), DefaultTaxRate, "Rs")

		var offline, online []*Receipt
		sales := rapid.IntRange(1, 8).Draw(rt, "sales")
		for i := 0; i < sales; i++ {
			desk.setOffline(rapid.Bool().Draw(rt, "offline"))

			cart := NewCart()
			qty := rapid.IntRange(1, 5).Draw(rt, "qty")
			if err := cart.Add(item(rt, int64(i+1), "Bolt", "12.50", nil), qty); err != nil {
				rt.Fatal(err)
			}
			method := rapid.SampledFrom([]models.PaymentMethod{models.PaymentCash, models.PaymentCard, models.PaymentCredit}).Draw(rt, "method")

			receipt, err := co.CompleteSale(ctx, cart, nil, method, decimal.NewFromInt(100))
			if err != nil {
				rt.Fatalf("sale %d: %v", i, err)
			}
			if receipt.Offline {
				offline = append(offline, receipt)
			} else {
				online = append(online, receipt)
			}
		}

		pending, err := st.ListPendingOrders(ctx)
		if err != nil {
			rt.Fatal(err)
		}
		if len(pending) != len(offline) {
			rt.Fatalf("%d offline receipts but %d pending orders", len(offline), len(pending))
		}
		byKey := map[string]int{}
		for _, o := range pending {
			byKey[o.IdempotencyKey]++
		}
		for _, r := range offline {
			if byKey[r.ClientReference] != 1 {
				rt.Fatalf("offline receipt %s has %d pending orders", r.OrderNumber, byKey[r.ClientReference])
			}
		}

		accepted := desk.accepted()
		if len(accepted) != len(online) {
			rt.Fatalf("%d online receipts but backend holds %d orders", len(online), len(accepted))
		}
		for n, r := range online {
			if accepted[n].ClientReference != r.ClientReference {
				rt.Fatalf("online receipt %s not confirmed by backend", r.OrderNumber)
			}
		}
	})
}
