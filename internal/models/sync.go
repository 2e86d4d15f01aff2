package models

import (
	"time"

	"gorm.io/datatypes"
)

// Well-known metadata keys
const (
	MetaLastProductSync  = "lastProductSync"
	MetaLastCustomerSync = "lastCustomerSync"
)

// Sync queue item types
const (
	QueueTypeCreateProduct   = "createProduct"
	QueueTypeUpdateProduct   = "updateProduct"
	QueueTypeUpdateInventory = "updateInventory"
	QueueTypeCreateCustomer  = "createCustomer"
	QueueTypeUpdateCustomer  = "updateCustomer"
	QueueTypeRequest         = "request" // any other write, replayed verbatim
)

// SyncQueueItem is a deferred write waiting to be replayed against the backend
type SyncQueueItem struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Type          string         `gorm:"type:varchar(100);not null;index" json:"type"` // createProduct, updateInventory, ...
	Method        string         `gorm:"type:varchar(10);not null" json:"method"`
	Path          string         `gorm:"type:varchar(500);not null" json:"path"`
	Payload       datatypes.JSON `json:"payload"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	RetryCount    int            `gorm:"default:0" json:"retry_count"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
}

func (SyncQueueItem) TableName() string { return "sync_queue" }

// Stuck reports whether the item has used up its automatic retries.
func (i SyncQueueItem) Stuck(ceiling int) bool {
	return i.RetryCount >= ceiling
}

// MetadataEntry is a flat key/value used for sync bookkeeping
type MetadataEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MetadataEntry) TableName() string { return "sync_metadata" }

// All returns every model the local store migrates.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Customer{},
		&InventorySnapshot{},
		&PendingOrder{},
		&SyncQueueItem{},
		&MetadataEntry{},
	}
}
