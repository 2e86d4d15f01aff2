package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xelth-com/eckpos/internal/models"
)

// Backend resource paths
const (
	PathOrders    = "/orders"
	PathProducts  = "/products"
	PathCustomers = "/customers"
	PathInventory = "/inventory"
	PathHealth    = "/health"
)

// IdempotencyHeader carries a pending order's idempotency key
const IdempotencyHeader = "Idempotency-Key"

// CreateOrder submits one order and returns the backend's confirmation.
func (c *Client) CreateOrder(ctx context.Context, payload json.RawMessage, idempotencyKey string) (*models.OrderConfirmation, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyHeader, idempotencyKey)
	}
	resp, err := c.Do(ctx, http.MethodPost, PathOrders, payload, header)
	if err != nil {
		return nil, err
	}
	return DecodeOrderConfirmation(resp.Body)
}

// DecodeOrderConfirmation accepts {"order":{...}}, {"data":{...}} or a flat object.
func DecodeOrderConfirmation(body []byte) (*models.OrderConfirmation, error) {
	var envelope struct {
		Order *models.OrderConfirmation `json:"order"`
		Data  *models.OrderConfirmation `json:"data"`
		models.OrderConfirmation
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode order confirmation: %w", err)
	}

	conf := envelope.OrderConfirmation
	if envelope.Order != nil {
		conf = *envelope.Order
	} else if envelope.Data != nil {
		conf = *envelope.Data
	}
	if conf.ID == 0 && conf.OrderNumber == "" {
		return nil, fmt.Errorf("decode order confirmation: no order id in response")
	}
	if conf.OrderNumber == "" {
		conf.OrderNumber = fmt.Sprintf("ORD-%d", conf.ID)
	}
	return &conf, nil
}

// ListProducts pulls the catalog, optionally only records changed after updatedAfter.
func (c *Client) ListProducts(ctx context.Context, updatedAfter *time.Time) ([]models.Product, error) {
	raw, err := c.listCollection(ctx, PathProducts, "products", updatedAfter)
	if err != nil {
		return nil, err
	}
	products := make([]models.Product, 0, len(raw))
	for _, r := range raw {
		p, err := models.ProductFromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

// ListCustomers pulls customers, optionally only records changed after updatedAfter.
func (c *Client) ListCustomers(ctx context.Context, updatedAfter *time.Time) ([]models.Customer, error) {
	raw, err := c.listCollection(ctx, PathCustomers, "customers", updatedAfter)
	if err != nil {
		return nil, err
	}
	customers := make([]models.Customer, 0, len(raw))
	for _, r := range raw {
		cust, err := models.CustomerFromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("decode customer: %w", err)
		}
		customers = append(customers, cust)
	}
	return customers, nil
}

func (c *Client) listCollection(ctx context.Context, path, key string, updatedAfter *time.Time) ([]json.RawMessage, error) {
	if updatedAfter != nil {
		path += "?updatedAfter=" + url.QueryEscape(updatedAfter.UTC().Format(time.RFC3339Nano))
	}
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeCollection(resp.Body, key)
}

// DecodeCollection reads {"<key>": [...]} or a bare JSON array.
func DecodeCollection(body []byte, key string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	field, ok := envelope[key]
	if !ok {
		return nil, fmt.Errorf("decode %s: missing %q field", key, key)
	}
	if err := json.Unmarshal(field, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

// Replay sends a stored write verbatim.
func (c *Client) Replay(ctx context.Context, method, path string, payload json.RawMessage) error {
	var body interface{}
	if len(payload) > 0 {
		body = payload
	}
	_, err := c.Do(ctx, method, path, body, nil)
	return err
}
