package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xelth-com/eckpos/internal/database"
	"github.com/xelth-com/eckpos/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 200

// GormStore keeps the collections in the terminal's SQL database
type GormStore struct {
	db     *gorm.DB
	closer func() error
}

// NewGormStore wraps an open database connection.
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db.DB, closer: db.Close}
}

func (s *GormStore) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *GormStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func readErr(c Collection, op string, key interface{}, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(c, key)
	}
	return ioErr(c, op, err)
}

// upsertByID writes one batch inside a transaction, replacing rows that share a primary key.
func upsertByID(ctx context.Context, db *gorm.DB, pk string, rows interface{}) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: pk}},
			UpdateAll: true,
		}).CreateInBatches(rows, upsertBatchSize).Error
	})
}

// ============ PRODUCTS ============

func (s *GormStore) UpsertProducts(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	rows := append([]models.Product(nil), products...)
	if err := upsertByID(ctx, s.db, "id", &rows); err != nil {
		return ioErr(Products, "upsert", err)
	}
	return nil
}

func (s *GormStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Take(&p, id).Error; err != nil {
		return nil, readErr(Products, "get", id, err)
	}
	return &p, nil
}

func (s *GormStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, ioErr(Products, "list", err)
	}
	return products, nil
}

func (s *GormStore) FindProductsBySKU(ctx context.Context, sku string) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("sku = ?", sku).Order("id").Find(&products).Error; err != nil {
		return nil, ioErr(Products, "find", err)
	}
	return products, nil
}

func (s *GormStore) FindProductsByBarcode(ctx context.Context, barcode string) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("barcode = ?", barcode).Order("id").Find(&products).Error; err != nil {
		return nil, ioErr(Products, "find", err)
	}
	return products, nil
}

func (s *GormStore) SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error) {
	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" {
		return []models.Product{}, nil
	}
	like := "%" + q + "%"

	tx := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(barcode) LIKE ?", like, like, like).
		Order("name").Order("id")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var products []models.Product
	if err := tx.Find(&products).Error; err != nil {
		return nil, ioErr(Products, "search", err)
	}
	return products, nil
}

// ============ CUSTOMERS ============

func (s *GormStore) UpsertCustomers(ctx context.Context, customers []models.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	rows := append([]models.Customer(nil), customers...)
	if err := upsertByID(ctx, s.db, "id", &rows); err != nil {
		return ioErr(Customers, "upsert", err)
	}
	return nil
}

func (s *GormStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).Take(&c, id).Error; err != nil {
		return nil, readErr(Customers, "get", id, err)
	}
	return &c, nil
}

func (s *GormStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).Order("id").Find(&customers).Error; err != nil {
		return nil, ioErr(Customers, "list", err)
	}
	return customers, nil
}

func (s *GormStore) FindCustomersByPhone(ctx context.Context, phone string) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).Order("id").Find(&customers).Error; err != nil {
		return nil, ioErr(Customers, "find", err)
	}
	return customers, nil
}

func (s *GormStore) FindCustomersByEmail(ctx context.Context, email string) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).Where("email = ?", email).Order("id").Find(&customers).Error; err != nil {
		return nil, ioErr(Customers, "find", err)
	}
	return customers, nil
}

// ============ INVENTORY ============

func (s *GormStore) UpsertInventory(ctx context.Context, snapshots []models.InventorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	rows := append([]models.InventorySnapshot(nil), snapshots...)
	if err := upsertByID(ctx, s.db, "product_id", &rows); err != nil {
		return ioErr(Inventory, "upsert", err)
	}
	return nil
}

func (s *GormStore) GetInventory(ctx context.Context, productID int64) (*models.InventorySnapshot, error) {
	var snap models.InventorySnapshot
	if err := s.db.WithContext(ctx).Take(&snap, productID).Error; err != nil {
		return nil, readErr(Inventory, "get", productID, err)
	}
	return &snap, nil
}

func (s *GormStore) ListInventory(ctx context.Context) ([]models.InventorySnapshot, error) {
	var snaps []models.InventorySnapshot
	if err := s.db.WithContext(ctx).Order("product_id").Find(&snaps).Error; err != nil {
		return nil, ioErr(Inventory, "list", err)
	}
	return snaps, nil
}

// ============ PENDING ORDERS ============

func (s *GormStore) AppendPendingOrder(ctx context.Context, order *models.PendingOrder) error {
	order.LocalID = 0
	order.Synced = false
	order.ServerID = nil
	order.ServerOrderNumber = ""
	order.SyncedAt = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PendingOrder{}).
			Where("idempotency_key = ?", order.IdempotencyKey).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, order.IdempotencyKey)
		}
		return tx.Create(order).Error
	})
	if errors.Is(err, ErrDuplicateKey) {
		return err
	}
	if err != nil {
		return ioErr(PendingOrders, "append", err)
	}
	return nil
}

func (s *GormStore) GetPendingOrder(ctx context.Context, localID uint) (*models.PendingOrder, error) {
	var o models.PendingOrder
	if err := s.db.WithContext(ctx).Take(&o, localID).Error; err != nil {
		return nil, readErr(PendingOrders, "get", localID, err)
	}
	return &o, nil
}

func (s *GormStore) ListPendingOrders(ctx context.Context) ([]models.PendingOrder, error) {
	var orders []models.PendingOrder
	if err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at").Order("local_id").
		Find(&orders).Error; err != nil {
		return nil, ioErr(PendingOrders, "list", err)
	}
	return orders, nil
}

func (s *GormStore) ListOrders(ctx context.Context) ([]models.PendingOrder, error) {
	var orders []models.PendingOrder
	if err := s.db.WithContext(ctx).Order("local_id").Find(&orders).Error; err != nil {
		return nil, ioErr(PendingOrders, "list", err)
	}
	return orders, nil
}

func (s *GormStore) MarkSynced(ctx context.Context, localID uint, serverID int64, orderNumber string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PendingOrder{}).
			Where("local_id = ? AND synced = ?", localID, false).
			Updates(map[string]interface{}{
				"synced":              true,
				"server_id":           serverID,
				"server_order_number": orderNumber,
				"synced_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&models.PendingOrder{}).Where("local_id = ?", localID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound(PendingOrders, localID)
		}
		return fmt.Errorf("%w: %d", ErrAlreadySynced, localID)
	})
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadySynced) {
		return err
	}
	return ioErr(PendingOrders, "markSynced", err)
}

func (s *GormStore) RemovePendingOrder(ctx context.Context, localID uint) error {
	res := s.db.WithContext(ctx).Delete(&models.PendingOrder{}, localID)
	if res.Error != nil {
		return ioErr(PendingOrders, "remove", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(PendingOrders, localID)
	}
	return nil
}

// ============ SYNC QUEUE ============

func (s *GormStore) AppendSyncItem(ctx context.Context, item *models.SyncQueueItem) error {
	item.ID = 0
	item.RetryCount = 0
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return ioErr(SyncQueue, "append", err)
	}
	return nil
}

func (s *GormStore) GetSyncItem(ctx context.Context, id uint) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	if err := s.db.WithContext(ctx).Take(&item, id).Error; err != nil {
		return nil, readErr(SyncQueue, "get", id, err)
	}
	return &item, nil
}

func (s *GormStore) ListSyncItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	if err := s.db.WithContext(ctx).Order("created_at").Order("id").Find(&items).Error; err != nil {
		return nil, ioErr(SyncQueue, "list", err)
	}
	return items, nil
}

func (s *GormStore) FindSyncItemsByType(ctx context.Context, itemType string) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	if err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"type": itemType}).
		Order("created_at").Order("id").
		Find(&items).Error; err != nil {
		return nil, ioErr(SyncQueue, "find", err)
	}
	return items, nil
}

func (s *GormStore) RemoveSyncItem(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.SyncQueueItem{}, id)
	if res.Error != nil {
		return ioErr(SyncQueue, "remove", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(SyncQueue, id)
	}
	return nil
}

func (s *GormStore) RecordReplayFailure(ctx context.Context, id uint, reason string) (int, error) {
	now := time.Now().UTC()
	var retries int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SyncQueueItem{}).Where("id = ?", id).Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      reason,
			"last_attempt_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(SyncQueue, id)
		}
		var item models.SyncQueueItem
		if err := tx.Select("retry_count").Take(&item, id).Error; err != nil {
			return err
		}
		retries = item.RetryCount
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, ioErr(SyncQueue, "recordFailure", err)
	}
	return retries, nil
}

func (s *GormStore) ResetRetries(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.SyncQueueItem{}).Where("id = ?", id).Updates(map[string]interface{}{
		"retry_count": 0,
		"last_error":  "",
	})
	if res.Error != nil {
		return ioErr(SyncQueue, "resetRetries", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(SyncQueue, id)
	}
	return nil
}

// ============ METADATA ============

func (s *GormStore) SetMetadata(ctx context.Context, key, value string) error {
	entry := models.MetadataEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return ioErr(Metadata, "set", err)
	}
	return nil
}

func (s *GormStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var entry models.MetadataEntry
	err := s.db.WithContext(ctx).Where(&models.MetadataEntry{Key: key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioErr(Metadata, "get", err)
	}
	return entry.Value, true, nil
}
