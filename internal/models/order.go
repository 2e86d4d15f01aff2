package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentMethod defines how a sale was paid
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentCredit       PaymentMethod = "credit"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// Tendered reports whether the method implies cash handed over at the counter.
func (m PaymentMethod) Tendered() bool { return m == PaymentCash }

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCredit, PaymentBankTransfer:
		return true
	}
	return false
}

// OrderItem is a single sale line
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity * unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderPayload is the body sent to the backend order-creation endpoint
type OrderPayload struct {
	CustomerID      *int64          `json:"customer_id,omitempty"`
	Items           []OrderItem     `json:"items"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Notes           string          `json:"notes,omitempty"`
	ClientReference string          `json:"client_reference"` // idempotency key
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	ChangeAmount    decimal.Decimal `json:"change_amount"`
}

// OrderConfirmation is what the backend returns for a created order
type OrderConfirmation struct {
	ID          int64  `json:"id"`
	OrderNumber string `json:"order_number"`
}

// PendingOrder is a locally originated sale the backend has not confirmed yet.
// Rows are kept after sync as an audit trail.
type PendingOrder struct {
	LocalID           uint           `gorm:"primaryKey;autoIncrement" json:"local_id"`
	IdempotencyKey    string         `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Payload           datatypes.JSON `json:"payload"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
	Synced            bool           `gorm:"default:false;index" json:"synced"`
	ServerID          *int64         `json:"server_id,omitempty"`
	ServerOrderNumber string         `json:"server_order_number,omitempty"`
	SyncedAt          *time.Time     `json:"synced_at,omitempty"`
}

func (PendingOrder) TableName() string { return "pending_orders" }

// ProvisionalNumber is the order number printed on an offline receipt.
// Unique within the local store because LocalID is.
func (o PendingOrder) ProvisionalNumber() string {
	return fmt.Sprintf("OFFLINE-%d-%d", o.CreatedAt.UnixMilli(), o.LocalID)
}

// DecodePayload unmarshals the stored order payload.
func (o PendingOrder) DecodePayload() (OrderPayload, error) {
	var p OrderPayload
	if err := json.Unmarshal(o.Payload, &p); err != nil {
		return OrderPayload{}, fmt.Errorf("decode pending order %d: %w", o.LocalID, err)
	}
	return p, nil
}
