package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Product is the local replica of a backend catalog record.
// Owned by the backend; only sync pulls write it.
type Product struct {
	ID            int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SKU           string          `gorm:"column:sku;index" json:"sku"` // unique on the backend, not enforced here
	Barcode       string          `gorm:"index" json:"barcode,omitempty"`
	Name          string          `gorm:"index" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4)" json:"selling_price"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(20,4)" json:"cost_price"`
	MinStockLevel int             `json:"min_stock_level"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false;index" json:"updated_at"`

	// QuantityOnHand is only carried on the wire; it feeds the inventory snapshot.
	QuantityOnHand *int `gorm:"-" json:"quantity_on_hand,omitempty"`

	// RawData keeps the backend record verbatim so offline reads keep its shape.
	RawData datatypes.JSON `json:"-"`
}

func (Product) TableName() string { return "products" }

// ProductFromJSON decodes a backend product and retains the raw record.
func ProductFromJSON(raw json.RawMessage) (Product, error) {
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, err
	}
	p.RawData = datatypes.JSON(append([]byte(nil), raw...))
	return p, nil
}

// JSON returns the record in the backend's shape.
func (p Product) JSON() json.RawMessage {
	if len(p.RawData) > 0 {
		return json.RawMessage(p.RawData)
	}
	b, _ := json.Marshal(p)
	return b
}
