package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xelth-com/eckpos/internal/models"
	"gorm.io/datatypes"
)

// MemoryStore keeps every collection in process memory.
// Used by tests and by terminals running without a disk.
type MemoryStore struct {
	mu sync.RWMutex

	products  map[int64]models.Product
	customers map[int64]models.Customer
	inventory map[int64]models.InventorySnapshot
	orders    map[uint]models.PendingOrder
	queue     map[uint]models.SyncQueueItem
	metadata  map[string]models.MetadataEntry

	nextOrderID uint
	nextQueueID uint
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.products = make(map[int64]models.Product)
	s.customers = make(map[int64]models.Customer)
	s.inventory = make(map[int64]models.InventorySnapshot)
	s.orders = make(map[uint]models.PendingOrder)
	s.queue = make(map[uint]models.SyncQueueItem)
	s.metadata = make(map[string]models.MetadataEntry)
}

func (s *MemoryStore) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.products == nil {
		s.reset()
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneJSON(b datatypes.JSON) datatypes.JSON {
	if b == nil {
		return nil
	}
	return append(datatypes.JSON(nil), b...)
}

func cloneProduct(p models.Product) models.Product {
	p.RawData = cloneJSON(p.RawData)
	p.QuantityOnHand = nil // not persisted
	return p
}

func cloneCustomer(c models.Customer) models.Customer {
	c.RawData = cloneJSON(c.RawData)
	return c
}

func cloneOrder(o models.PendingOrder) models.PendingOrder {
	o.Payload = cloneJSON(o.Payload)
	if o.ServerID != nil {
		id := *o.ServerID
		o.ServerID = &id
	}
	if o.SyncedAt != nil {
		at := *o.SyncedAt
		o.SyncedAt = &at
	}
	return o
}

func cloneItem(i models.SyncQueueItem) models.SyncQueueItem {
	i.Payload = cloneJSON(i.Payload)
	if i.LastAttemptAt != nil {
		at := *i.LastAttemptAt
		i.LastAttemptAt = &at
	}
	return i
}

// ============ PRODUCTS ============

func (s *MemoryStore) UpsertProducts(ctx context.Context, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return ioErr(Products, "upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = cloneProduct(p)
	}
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound(Products, id)
	}
	p = cloneProduct(p)
	return &p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.filterProducts(func(models.Product) bool { return true }), nil
}

func (s *MemoryStore) FindProductsBySKU(ctx context.Context, sku string) ([]models.Product, error) {
	return s.filterProducts(func(p models.Product) bool { return p.SKU == sku }), nil
}

func (s *MemoryStore) FindProductsByBarcode(ctx context.Context, barcode string) ([]models.Product, error) {
	return s.filterProducts(func(p models.Product) bool { return p.Barcode == barcode }), nil
}

func (s *MemoryStore) SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error) {
	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" {
		return []models.Product{}, nil
	}
	found := s.filterProducts(func(p models.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.SKU), q) ||
			strings.Contains(strings.ToLower(p.Barcode), q)
	})
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Name != found[j].Name {
			return found[i].Name < found[j].Name
		}
		return found[i].ID < found[j].ID
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (s *MemoryStore) filterProducts(keep func(models.Product) bool) []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Product{}
	for _, p := range s.products {
		if keep(p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============ CUSTOMERS ============

func (s *MemoryStore) UpsertCustomers(ctx context.Context, customers []models.Customer) error {
	if err := ctx.Err(); err != nil {
		return ioErr(Customers, "upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range customers {
		s.customers[c.ID] = cloneCustomer(c)
	}
	return nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, notFound(Customers, id)
	}
	c = cloneCustomer(c)
	return &c, nil
}

func (s *MemoryStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return s.filterCustomers(func(models.Customer) bool { return true }), nil
}

func (s *MemoryStore) FindCustomersByPhone(ctx context.Context, phone string) ([]models.Customer, error) {
	return s.filterCustomers(func(c models.Customer) bool { return c.Phone == phone }), nil
}

func (s *MemoryStore) FindCustomersByEmail(ctx context.Context, email string) ([]models.Customer, error) {
	return s.filterCustomers(func(c models.Customer) bool { return c.Email == email }), nil
}

func (s *MemoryStore) filterCustomers(keep func(models.Customer) bool) []models.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Customer{}
	for _, c := range s.customers {
		if keep(c) {
			out = append(out, cloneCustomer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============ INVENTORY ============

func (s *MemoryStore) UpsertInventory(ctx context.Context, snapshots []models.InventorySnapshot) error {
	if err := ctx.Err(); err != nil {
		return ioErr(Inventory, "upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snapshots {
		s.inventory[snap.ProductID] = snap
	}
	return nil
}

func (s *MemoryStore) GetInventory(ctx context.Context, productID int64) (*models.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.inventory[productID]
	if !ok {
		return nil, notFound(Inventory, productID)
	}
	return &snap, nil
}

func (s *MemoryStore) ListInventory(ctx context.Context) ([]models.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InventorySnapshot, 0, len(s.inventory))
	for _, snap := range s.inventory {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// ============ PENDING ORDERS ============

func (s *MemoryStore) AppendPendingOrder(ctx context.Context, order *models.PendingOrder) error {
	if err := ctx.Err(); err != nil {
		return ioErr(PendingOrders, "append", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.IdempotencyKey == order.IdempotencyKey {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, order.IdempotencyKey)
		}
	}

	s.nextOrderID++
	order.LocalID = s.nextOrderID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Synced = false
	order.ServerID = nil
	order.ServerOrderNumber = ""
	order.SyncedAt = nil

	s.orders[order.LocalID] = cloneOrder(*order)
	return nil
}

func (s *MemoryStore) GetPendingOrder(ctx context.Context, localID uint) (*models.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[localID]
	if !ok {
		return nil, notFound(PendingOrders, localID)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *MemoryStore) ListPendingOrders(ctx context.Context) ([]models.PendingOrder, error) {
	return s.filterOrders(func(o models.PendingOrder) bool { return !o.Synced }), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context) ([]models.PendingOrder, error) {
	orders := s.filterOrders(func(models.PendingOrder) bool { return true })
	sort.Slice(orders, func(i, j int) bool { return orders[i].LocalID < orders[j].LocalID })
	return orders, nil
}

func (s *MemoryStore) filterOrders(keep func(models.PendingOrder) bool) []models.PendingOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.PendingOrder{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out
}

func (s *MemoryStore) MarkSynced(ctx context.Context, localID uint, serverID int64, orderNumber string) error {
	if err := ctx.Err(); err != nil {
		return ioErr(PendingOrders, "markSynced", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[localID]
	if !ok {
		return notFound(PendingOrders, localID)
	}
	if o.Synced {
		return fmt.Errorf("%w: %d", ErrAlreadySynced, localID)
	}
	now := time.Now().UTC()
	o.Synced = true
	o.ServerID = &serverID
	o.ServerOrderNumber = orderNumber
	o.SyncedAt = &now
	s.orders[localID] = o
	return nil
}

func (s *MemoryStore) RemovePendingOrder(ctx context.Context, localID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[localID]; !ok {
		return notFound(PendingOrders, localID)
	}
	delete(s.orders, localID)
	return nil
}

// ============ SYNC QUEUE ============

func (s *MemoryStore) AppendSyncItem(ctx context.Context, item *models.SyncQueueItem) error {
	if err := ctx.Err(); err != nil {
		return ioErr(SyncQueue, "append", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQueueID++
	item.ID = s.nextQueueID
	item.RetryCount = 0
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.queue[item.ID] = cloneItem(*item)
	return nil
}

func (s *MemoryStore) GetSyncItem(ctx context.Context, id uint) (*models.SyncQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.queue[id]
	if !ok {
		return nil, notFound(SyncQueue, id)
	}
	item = cloneItem(item)
	return &item, nil
}

func (s *MemoryStore) ListSyncItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	return s.filterQueue(func(models.SyncQueueItem) bool { return true }), nil
}

func (s *MemoryStore) FindSyncItemsByType(ctx context.Context, itemType string) ([]models.SyncQueueItem, error) {
	return s.filterQueue(func(i models.SyncQueueItem) bool { return i.Type == itemType }), nil
}

func (s *MemoryStore) filterQueue(keep func(models.SyncQueueItem) bool) []models.SyncQueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.SyncQueueItem{}
	for _, item := range s.queue {
		if keep(item) {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) RemoveSyncItem(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[id]; !ok {
		return notFound(SyncQueue, id)
	}
	delete(s.queue, id)
	return nil
}

func (s *MemoryStore) RecordReplayFailure(ctx context.Context, id uint, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok {
		return 0, notFound(SyncQueue, id)
	}
	now := time.Now().UTC()
	item.RetryCount++
	item.LastError = reason
	item.LastAttemptAt = &now
	s.queue[id] = item
	return item.RetryCount, nil
}

func (s *MemoryStore) ResetRetries(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok {
		return notFound(SyncQueue, id)
	}
	item.RetryCount = 0
	item.LastError = ""
	s.queue[id] = item
	return nil
}

// ============ METADATA ============

func (s *MemoryStore) SetMetadata(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return ioErr(Metadata, "set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = models.MetadataEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.metadata[key]
	return entry.Value, ok, nil
}
