package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/models"
)

// Lookup answers the counter's product and customer queries. Going through
// the interceptor means offline answers come from the local replica.
type Lookup struct {
	sender Sender
}

func NewLookup(sender Sender) *Lookup {
	return &Lookup{sender: sender}
}

func (l *Lookup) ProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	resp, err := l.sender.Send(ctx, http.MethodGet, backend.PathProducts+"/barcode/"+url.PathEscape(barcode), nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Product json.RawMessage `json:"product"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Product) == 0 || string(body.Product) == "null" {
		return nil, fmt.Errorf("barcode %s: no product in response", barcode)
	}
	p, err := models.ProductFromJSON(body.Product)
	if err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &p, nil
}

func (l *Lookup) SearchProducts(ctx context.Context, query string) ([]models.Product, error) {
	resp, err := l.sender.Send(ctx, http.MethodGet, backend.PathProducts+"/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	raw, err := backend.DecodeCollection(resp.Body, "products")
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

func (l *Lookup) CustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	resp, err := l.sender.Send(ctx, http.MethodGet, backend.PathCustomers+"/phone/"+url.PathEscape(phone), nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Customer json.RawMessage `json:"customer"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Customer) == 0 || string(body.Customer) == "null" {
		return nil, fmt.Errorf("phone %s: no customer in response", phone)
	}
	c, err := models.CustomerFromJSON(body.Customer)
	if err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	return &c, nil
}

// StockLevel returns the on-hand quantity of a product
func (l *Lookup) StockLevel(ctx context.Context, productID int64) (int, error) {
	resp, err := l.sender.Send(ctx, http.MethodGet, backend.PathInventory+"/"+strconv.FormatInt(productID, 10), nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		Inventory *struct {
			QuantityOnHand int `json:"quantity_on_hand"`
		} `json:"inventory"`
		QuantityOnHand *int `json:"quantity_on_hand"`
	}
	if err := resp.Decode(&body); err != nil {
		return 0, err
	}
	switch {
	case body.Inventory != nil:
		return body.Inventory.QuantityOnHand, nil
	case body.QuantityOnHand != nil:
		return *body.QuantityOnHand, nil
	}
	return 0, fmt.Errorf("product %d: no stock level in response", productID)
}
