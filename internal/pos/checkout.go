package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/interceptor"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/store"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInsufficientPayment  = errors.New("paid amount is less than the total")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	// ErrSaleNotPersisted means the backend was unreachable and the local store
	// could not keep the sale either. The sale did not happen.
	ErrSaleNotPersisted = errors.New("sale could not be saved")
)

// DefaultTaxRate matches the TAX_RATE default in config
var DefaultTaxRate = decimal.RequireFromString("0.0875")

// Sender issues backend calls, usually through the interceptor
type Sender interface {
	Send(ctx context.Context, method, path string, body interface{}) (*backend.Response, error)
}

// Checkout completes sales
type Checkout struct {
	sender   Sender
	taxRate  decimal.Decimal
	currency string
	now      func() time.Time
}

// NewCheckout applies taxRate as given; zero means a tax-exempt till.
func NewCheckout(sender Sender, taxRate decimal.Decimal, currency string) *Checkout {
	return &Checkout{
		sender:   sender,
		taxRate:  taxRate,
		currency: currency,
		now:      time.Now,
	}
}

// Totals holds the computed amounts of a cart
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Totals computes subtotal and tax, both rounded to cents, and the grand total.
// Payment is checked against the same amounts the receipt prints.
func (c *Checkout) Totals(cart *Cart) Totals {
	subtotal := cart.Subtotal().Round(2)
	tax := subtotal.Mul(c.taxRate).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// CompleteSale submits the cart and returns a receipt. When the backend is
// unreachable the sale is kept locally and the receipt is marked offline.
// The cart is cleared only once a receipt exists.
func (c *Checkout) CompleteSale(ctx context.Context, cart *Cart, customer *models.Customer, method models.PaymentMethod, paid decimal.Decimal) (*Receipt, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}

	totals := c.Totals(cart)
	change := decimal.Zero
	if method.Tendered() {
		if paid.LessThan(totals.Total) {
			return nil, fmt.Errorf("%w: paid %s, total %s", ErrInsufficientPayment, paid.StringFixed(2), totals.Total.StringFixed(2))
		}
		change = paid.Sub(totals.Total)
	} else {
		paid = totals.Total
	}

	now := c.now()
	payload := models.OrderPayload{
		Items:           cart.Items(),
		PaymentMethod:   method,
		Notes:           "POS Sale - " + now.Format("2006-01-02 15:04:05"),
		ClientReference: uuid.NewString(),
		Subtotal:        totals.Subtotal,
		TaxAmount:       totals.Tax,
		TotalAmount:     totals.Total,
		PaidAmount:      paid,
		ChangeAmount:    change,
	}
	if customer != nil {
		id := customer.ID
		payload.CustomerID = &id
	}

	resp, err := c.sender.Send(ctx, http.MethodPost, backend.PathOrders, payload)
	if err != nil {
		if errors.Is(err, store.ErrStorageUnavailable) || errors.Is(err, store.ErrStorageIO) {
			log.Error().Err(err).Str("client_reference", payload.ClientReference).Msg("❌ Sale lost: backend unreachable and local save failed")
			return nil, fmt.Errorf("%w: %v", ErrSaleNotPersisted, err)
		}
		log.Warn().Err(err).Str("client_reference", payload.ClientReference).Msg("⚠️ Sale failed")
		return nil, err
	}

	receipt := &Receipt{
		ClientReference: payload.ClientReference,
		Items:           payload.Items,
		Subtotal:        totals.Subtotal,
		TaxRate:         c.taxRate,
		Tax:             totals.Tax,
		Total:           totals.Total,
		PaymentMethod:   method,
		Paid:            paid,
		Change:          change,
		Currency:        c.currency,
		IssuedAt:        now,
	}
	if customer != nil {
		receipt.CustomerName = customer.FullName()
	}

	if resp.Queued {
		var ack interceptor.Ack
		if err := resp.Decode(&ack); err != nil {
			return nil, fmt.Errorf("read offline acknowledgment: %w", err)
		}
		receipt.Offline = true
		receipt.LocalID = ack.LocalID
		receipt.OrderNumber = ack.OrderNumber
		log.Info().Str("order_number", ack.OrderNumber).Str("total", totals.Total.StringFixed(2)).Msg("🧾 Sale completed offline")
	} else {
		conf, err := backend.DecodeOrderConfirmation(resp.Body)
		if err != nil {
			// The backend has the order; a retry with the same cart would be a new sale
			log.Error().Err(err).Str("client_reference", payload.ClientReference).Msg("❌ Order accepted but confirmation unreadable")
			return nil, err
		}
		receipt.ServerID = conf.ID
		receipt.OrderNumber = conf.OrderNumber
		log.Info().Str("order_number", conf.OrderNumber).Str("total", totals.Total.StringFixed(2)).Msg("🧾 Sale completed")
	}

	cart.Clear()
	return receipt, nil
}
