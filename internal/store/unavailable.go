package store

import (
	"context"
	"fmt"

	"github.com/xelth-com/eckpos/internal/models"
)

// Unavailable stands in for a store that failed to open.
// Every operation reports ErrStorageUnavailable so the terminal keeps
// working online-only and callers can tell the user why offline sales fail.
type Unavailable struct {
	cause error
}

func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

func (u *Unavailable) err() error {
	if u.cause == nil {
		return ErrStorageUnavailable
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, u.cause)
}

func (u *Unavailable) Init(context.Context) error { return u.err() }
func (u *Unavailable) Close() error               { return nil }

func (u *Unavailable) UpsertProducts(context.Context, []models.Product) error { return u.err() }
func (u *Unavailable) GetProduct(context.Context, int64) (*models.Product, error) {
	return nil, u.err()
}
func (u *Unavailable) ListProducts(context.Context) ([]models.Product, error) { return nil, u.err() }
func (u *Unavailable) FindProductsBySKU(context.Context, string) ([]models.Product, error) {
	return nil, u.err()
}
func (u *Unavailable) FindProductsByBarcode(context.Context, string) ([]models.Product, error) {
	return nil, u.err()
}
func (u *Unavailable) SearchProducts(context.Context, string, int) ([]models.Product, error) {
	return nil, u.err()
}

func (u *Unavailable) UpsertCustomers(context.Context, []models.Customer) error { return u.err() }
func (u *Unavailable) GetCustomer(context.Context, int64) (*models.Customer, error) {
	return nil, u.err()
}
func (u *Unavailable) ListCustomers(context.Context) ([]models.Customer, error) { return nil, u.err() }
func (u *Unavailable) FindCustomersByPhone(context.Context, string) ([]models.Customer, error) {
	return nil, u.err()
}
func (u *Unavailable) FindCustomersByEmail(context.Context, string) ([]models.Customer, error) {
	return nil, u.err()
}

func (u *Unavailable) UpsertInventory(context.Context, []models.InventorySnapshot) error {
	return u.err()
}
func (u *Unavailable) GetInventory(context.Context, int64) (*models.InventorySnapshot, error) {
	return nil, u.err()
}
func (u *Unavailable) ListInventory(context.Context) ([]models.InventorySnapshot, error) {
	return nil, u.err()
}

func (u *Unavailable) AppendPendingOrder(context.Context, *models.PendingOrder) error {
	return u.err()
}
func (u *Unavailable) GetPendingOrder(context.Context, uint) (*models.PendingOrder, error) {
	return nil, u.err()
}
func (u *Unavailable) ListPendingOrders(context.Context) ([]models.PendingOrder, error) {
	return nil, u.err()
}
func (u *Unavailable) ListOrders(context.Context) ([]models.PendingOrder, error) {
	return nil, u.err()
}
func (u *Unavailable) MarkSynced(context.Context, uint, int64, string) error { return u.err() }
func (u *Unavailable) RemovePendingOrder(context.Context, uint) error      { return u.err() }

func (u *Unavailable) AppendSyncItem(context.Context, *models.SyncQueueItem) error { return u.err() }
func (u *Unavailable) GetSyncItem(context.Context, uint) (*models.SyncQueueItem, error) {
	return nil, u.err()
}
func (u *Unavailable) ListSyncItems(context.Context) ([]models.SyncQueueItem, error) {
	return nil, u.err()
}
func (u *Unavailable) FindSyncItemsByType(context.Context, string) ([]models.SyncQueueItem, error) {
	return nil, u.err()
}
func (u *Unavailable) RemoveSyncItem(context.Context, uint) error { return u.err() }
func (u *Unavailable) RecordReplayFailure(context.Context, uint, string) (int, error) {
	return 0, u.err()
}
func (u *Unavailable) ResetRetries(context.Context, uint) error { return u.err() }

func (u *Unavailable) SetMetadata(context.Context, string, string) error { return u.err() }
func (u *Unavailable) GetMetadata(context.Context, string) (string, bool, error) {
	return "", false, u.err()
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Unavailable)(nil)
)
