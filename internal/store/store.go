// Package store is the terminal's local persistent store: the offline replica
// of reference data plus the pending orders and deferred writes that have not
// reached the backend yet.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/eckpos/internal/models"
)

// Collection names one of the six local collections
type Collection string

const (
	Products      Collection = "products"
	Customers     Collection = "customers"
	Inventory     Collection = "inventory"
	PendingOrders Collection = "pendingOrders"
	SyncQueue     Collection = "syncQueue"
	Metadata      Collection = "metadata"
)

var (
	// ErrStorageUnavailable means the store could not be opened at all.
	// The terminal can still run online-only.
	ErrStorageUnavailable = errors.New("local store unavailable")
	// ErrStorageIO means the underlying database rejected an operation.
	ErrStorageIO = errors.New("local store I/O error")

	ErrNotFound      = errors.New("record not found")
	ErrAlreadySynced = errors.New("pending order already synced")
	ErrDuplicateKey  = errors.New("idempotency key already recorded")
)

// Error describes a failed store operation
type Error struct {
	Collection Collection
	Op         string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

// Unwrap exposes both the I/O sentinel and the driver error.
func (e *Error) Unwrap() []error {
	return []error{ErrStorageIO, e.Err}
}

func ioErr(c Collection, op string, err error) error {
	return &Error{Collection: c, Op: op, Err: err}
}

func notFound(c Collection, key interface{}) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, c, key)
}

type ProductStore interface {
	// UpsertProducts replaces or inserts by id; all-or-nothing per call.
	UpsertProducts(ctx context.Context, products []models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	FindProductsBySKU(ctx context.Context, sku string) ([]models.Product, error)
	FindProductsByBarcode(ctx context.Context, barcode string) ([]models.Product, error)
	// SearchProducts matches name, SKU or barcode case-insensitively. limit <= 0 means no limit.
	SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error)
}

type CustomerStore interface {
	UpsertCustomers(ctx context.Context, customers []models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	FindCustomersByPhone(ctx context.Context, phone string) ([]models.Customer, error)
	FindCustomersByEmail(ctx context.Context, email string) ([]models.Customer, error)
}

type InventoryStore interface {
	UpsertInventory(ctx context.Context, snapshots []models.InventorySnapshot) error
	GetInventory(ctx context.Context, productID int64) (*models.InventorySnapshot, error)
	ListInventory(ctx context.Context) ([]models.InventorySnapshot, error)
}

type OrderStore interface {
	// AppendPendingOrder assigns LocalID (and CreatedAt when zero) and inserts.
	AppendPendingOrder(ctx context.Context, order *models.PendingOrder) error
	GetPendingOrder(ctx context.Context, localID uint) (*models.PendingOrder, error)
	// ListPendingOrders returns unsynced orders, oldest first.
	ListPendingOrders(ctx context.Context) ([]models.PendingOrder, error)
	// ListOrders returns every recorded order, synced ones included.
	ListOrders(ctx context.Context) ([]models.PendingOrder, error)
	MarkSynced(ctx context.Context, localID uint, serverID int64, orderNumber string) error
	RemovePendingOrder(ctx context.Context, localID uint) error
}

type QueueStore interface {
	// AppendSyncItem assigns ID (and CreatedAt when zero), resets RetryCount and inserts.
	AppendSyncItem(ctx context.Context, item *models.SyncQueueItem) error
	GetSyncItem(ctx context.Context, id uint) (*models.SyncQueueItem, error)
	// ListSyncItems returns the queue oldest first.
	ListSyncItems(ctx context.Context) ([]models.SyncQueueItem, error)
	FindSyncItemsByType(ctx context.Context, itemType string) ([]models.SyncQueueItem, error)
	RemoveSyncItem(ctx context.Context, id uint) error
	// RecordReplayFailure increments the retry counter and returns its new value.
	RecordReplayFailure(ctx context.Context, id uint, reason string) (int, error)
	ResetRetries(ctx context.Context, id uint) error
}

type MetadataStore interface {
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, bool, error)
}

// Store is the full local persistent store
type Store interface {
	// Init opens or creates every collection. Safe to call on each start.
	Init(ctx context.Context) error
	Close() error

	ProductStore
	CustomerStore
	InventoryStore
	OrderStore
	QueueStore
	MetadataStore
}
