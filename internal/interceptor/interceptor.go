// Package interceptor wraps every backend call made by the POS and applies the
// offline fallback policy when the backend cannot be reached.
package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/store"
	"gorm.io/datatypes"
)

// ErrNoCachedData means an offline read found no local replica to answer with.
var ErrNoCachedData = errors.New("no cached data available offline")

// searchLimit caps offline product search results
const searchLimit = 50

// Transport sends a request to the backend
type Transport interface {
	Do(ctx context.Context, method, path string, body interface{}, header http.Header) (*backend.Response, error)
}

// Reporter receives observed connectivity, usually *connectivity.Monitor
type Reporter interface {
	Report(online bool, reason string)
}

// Ack is the body of the synthetic "queued" acknowledgment
type Ack struct {
	Queued      bool   `json:"queued"`
	Message     string `json:"message"`
	QueueID     uint   `json:"queue_id,omitempty"`
	LocalID     uint   `json:"local_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Interceptor is the single entry point for POS backend calls
type Interceptor struct {
	transport Transport
	store     store.Store
	reporter  Reporter
	now       func() time.Time
}

// New creates an interceptor. reporter may be nil.
func New(transport Transport, st store.Store, reporter Reporter) *Interceptor {
	return &Interceptor{
		transport: transport,
		store:     st,
		reporter:  reporter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send issues one request.
//
// Backend answers, including error statuses, are returned unchanged. When no
// answer arrives, cacheable reads are served from the local store and writes
// are recorded for the sync manager, returning a Response with Queued set.
func (i *Interceptor) Send(ctx context.Context, method, path string, body interface{}) (*backend.Response, error) {
	payload, err := backend.EncodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: encode body: %w", method, path, err)
	}

	r := resolve(method, path)
	header := http.Header{}
	if r.kind == routeOrderCreate {
		var key string
		payload, key, err = ensureClientReference(payload)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		header.Set(backend.IdempotencyHeader, key)
	}

	var reqBody interface{}
	if payload != nil {
		reqBody = json.RawMessage(payload)
	}

	resp, err := i.transport.Do(ctx, method, path, reqBody, header)
	switch backend.ClassifyFailure(err) {
	case backend.FailureNone:
		i.report(true, "request_ok")
		if r.kind == routeInventory {
			i.rememberStock(ctx, r.param, resp.Body)
		}
		return resp, nil

	case backend.FailureRejected:
		// The backend answered, so the network is fine.
		i.report(true, "request_rejected")
		return nil, err

	case backend.FailureConnectivity:
		i.report(false, err.Error())

	default:
		return nil, err
	}

	switch {
	case method == http.MethodGet && r.kind != routeOther:
		log.Debug().Str("method", method).Str("path", path).Msg("📴 Backend unreachable, serving from local store")
		return i.readFallback(ctx, r, err)

	case r.kind == routeOrderCreate:
		return i.queueOrder(ctx, method, path, payload, header.Get(backend.IdempotencyHeader))

	case isWrite(method):
		return i.queueWrite(ctx, r, method, path, payload)
	}

	return nil, err
}

func (i *Interceptor) report(online bool, reason string) {
	if i.reporter != nil {
		i.reporter.Report(online, reason)
	}
}

// ensureClientReference returns the payload with a client_reference, minting one if missing.
func ensureClientReference(payload []byte) ([]byte, string, error) {
	fields := map[string]json.RawMessage{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, "", fmt.Errorf("order payload must be a JSON object: %w", err)
		}
	}

	var key string
	if raw, ok := fields["client_reference"]; ok {
		_ = json.Unmarshal(raw, &key)
	}
	if key != "" {
		return payload, key, nil
	}

	key = uuid.NewString()
	encoded, _ := json.Marshal(key)
	fields["client_reference"] = encoded
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return out, key, nil
}

// ============ OFFLINE READS ============

func (i *Interceptor) readFallback(ctx context.Context, r route, cause error) (*backend.Response, error) {
	var (
		body interface{}
		err  error
	)

	switch r.kind {
	case routeProductList:
		body, err = i.cachedProducts(ctx)
	case routeProductSearch:
		body, err = i.searchProducts(ctx, r.param)
	case routeProductBarcode:
		body, err = i.productByBarcode(ctx, r.param)
	case routeCustomerList:
		body, err = i.cachedCustomers(ctx)
	case routeCustomerPhone:
		body, err = i.customerByPhone(ctx, r.param)
	case routeInventory:
		body, err = i.cachedStock(ctx, r.param)
	default:
		return nil, cause
	}

	if errors.Is(err, store.ErrNotFound) {
		err = ErrNoCachedData
	}
	if err != nil {
		return nil, fmt.Errorf("offline read: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("offline read: %w", err)
	}
	return &backend.Response{Status: http.StatusOK, Body: data, FromCache: true}, nil
}

func (i *Interceptor) cachedProducts(ctx context.Context) (interface{}, error) {
	products, err := i.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNoCachedData
	}
	return map[string]interface{}{"products": productRecords(products)}, nil
}

func (i *Interceptor) searchProducts(ctx context.Context, query string) (interface{}, error) {
	products, err := i.store.SearchProducts(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		// Distinguish "no match" from "nothing cached"
		all, err := i.store.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, ErrNoCachedData
		}
	}
	return map[string]interface{}{"products": productRecords(products)}, nil
}

func (i *Interceptor) productByBarcode(ctx context.Context, barcode string) (interface{}, error) {
	products, err := i.store.FindProductsByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		products, err = i.store.FindProductsBySKU(ctx, barcode)
		if err != nil {
			return nil, err
		}
	}
	if len(products) == 0 {
		return nil, ErrNoCachedData
	}
	return map[string]interface{}{"product": products[0].JSON()}, nil
}

func (i *Interceptor) cachedCustomers(ctx context.Context) (interface{}, error) {
	customers, err := i.store.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, ErrNoCachedData
	}
	records := make([]json.RawMessage, 0, len(customers))
	for _, c := range customers {
		records = append(records, c.JSON())
	}
	return map[string]interface{}{"customers": records}, nil
}

func (i *Interceptor) customerByPhone(ctx context.Context, phone string) (interface{}, error) {
	customers, err := i.store.FindCustomersByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, ErrNoCachedData
	}
	return map[string]interface{}{"customer": customers[0].JSON()}, nil
}

func (i *Interceptor) cachedStock(ctx context.Context, param string) (interface{}, error) {
	productID, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return nil, ErrNoCachedData
	}
	snap, err := i.store.GetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"inventory": snap}, nil
}

func productRecords(products []models.Product) []json.RawMessage {
	records := make([]json.RawMessage, 0, len(products))
	for _, p := range products {
		records = append(records, p.JSON())
	}
	return records
}

// rememberStock keeps the inventory snapshot fresh from online stock lookups.
func (i *Interceptor) rememberStock(ctx context.Context, param string, body []byte) {
	productID, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return
	}
	var envelope struct {
		Inventory *struct {
			QuantityOnHand *int `json:"quantity_on_hand"`
		} `json:"inventory"`
		QuantityOnHand *int `json:"quantity_on_hand"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return
	}
	qty := envelope.QuantityOnHand
	if envelope.Inventory != nil && envelope.Inventory.QuantityOnHand != nil {
		qty = envelope.Inventory.QuantityOnHand
	}
	if qty == nil {
		return
	}

	snap := models.InventorySnapshot{ProductID: productID, QuantityOnHand: *qty, LastUpdated: i.now()}
	if err := i.store.UpsertInventory(ctx, []models.InventorySnapshot{snap}); err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("⚠️ Could not cache stock level")
	}
}

// ============ OFFLINE WRITES ============

func (i *Interceptor) queueOrder(ctx context.Context, method, path string, payload []byte, key string) (*backend.Response, error) {
	order := &models.PendingOrder{
		IdempotencyKey: key,
		Payload:        datatypes.JSON(payload),
		CreatedAt:      i.now(),
	}
	if err := i.store.AppendPendingOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("idempotency_key", key).Msg("❌ Could not save offline order")
		return nil, fmt.Errorf("%s %s: save pending order: %w", method, path, err)
	}

	log.Info().
		Uint("local_id", order.LocalID).
		Str("order_number", order.ProvisionalNumber()).
		Msg("📝 Order saved offline, pending sync")

	return ack(Ack{
		Queued:      true,
		Message:     "Order saved offline and will sync when connection returns",
		LocalID:     order.LocalID,
		OrderNumber: order.ProvisionalNumber(),
		CreatedAt:   order.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (i *Interceptor) queueWrite(ctx context.Context, r route, method, path string, payload []byte) (*backend.Response, error) {
	item := &models.SyncQueueItem{
		Type:      r.queueType,
		Method:    method,
		Path:      path,
		Payload:   datatypes.JSON(payload),
		CreatedAt: i.now(),
	}
	if err := i.store.AppendSyncItem(ctx, item); err != nil {
		log.Error().Err(err).Str("type", item.Type).Msg("❌ Could not queue offline write")
		return nil, fmt.Errorf("%s %s: queue write: %w", method, path, err)
	}

	log.Info().Uint("queue_id", item.ID).Str("type", item.Type).Msg("📝 Request queued for sync")

	return ack(Ack{
		Queued:    true,
		Message:   "Request queued for sync",
		QueueID:   item.ID,
		CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
	})
}

func ack(a Ack) (*backend.Response, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &backend.Response{Status: http.StatusAccepted, Body: data, Queued: true}, nil
}
