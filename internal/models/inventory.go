package models

import "time"

// InventorySnapshot is the last-known on-hand quantity of a product.
// Only used to display stock while offline; the backend holds the real number.
type InventorySnapshot struct {
	ProductID      int64     `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	QuantityOnHand int       `json:"quantity_on_hand"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (InventorySnapshot) TableName() string { return "inventory" }
