package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/models"
)

// pullProducts refreshes the product replica and, for records that carry a
// quantity, the inventory snapshot.
func (m *Manager) pullProducts(ctx context.Context, result *PassResult) error {
	since, err := m.watermark(ctx, models.MetaLastProductSync)
	if err != nil {
		return fmt.Errorf("read product watermark: %w", err)
	}

	requestStart := m.now()
	products, err := m.backend.ListProducts(ctx, since)
	if err != nil {
		return fmt.Errorf("pull products: %w", err)
	}

	updated := make([]time.Time, 0, len(products))
	var snapshots []models.InventorySnapshot
	for _, p := range products {
		updated = append(updated, p.UpdatedAt)
		if p.QuantityOnHand != nil {
			snapshots = append(snapshots, models.InventorySnapshot{
				ProductID:      p.ID,
				QuantityOnHand: *p.QuantityOnHand,
				LastUpdated:    requestStart,
			})
		}
	}

	if len(products) > 0 {
		if err := m.store.UpsertProducts(ctx, products); err != nil {
			return fmt.Errorf("store products: %w", err)
		}
	}
	if len(snapshots) > 0 {
		if err := m.store.UpsertInventory(ctx, snapshots); err != nil {
			return fmt.Errorf("store inventory: %w", err)
		}
	}
	if err := m.advanceWatermark(ctx, models.MetaLastProductSync, requestStart, updated); err != nil {
		return fmt.Errorf("advance product watermark: %w", err)
	}

	result.ProductsPulled = len(products)
	log.Info().Int("count", len(products)).Bool("incremental", since != nil).Msg("📥 Products pulled")
	return nil
}

func (m *Manager) pullCustomers(ctx context.Context, result *PassResult) error {
	since, err := m.watermark(ctx, models.MetaLastCustomerSync)
	if err != nil {
		return fmt.Errorf("read customer watermark: %w", err)
	}

	requestStart := m.now()
	customers, err := m.backend.ListCustomers(ctx, since)
	if err != nil {
		return fmt.Errorf("pull customers: %w", err)
	}

	updated := make([]time.Time, 0, len(customers))
	for _, c := range customers {
		updated = append(updated, c.UpdatedAt)
	}

	if len(customers) > 0 {
		if err := m.store.UpsertCustomers(ctx, customers); err != nil {
			return fmt.Errorf("store customers: %w", err)
		}
	}
	if err := m.advanceWatermark(ctx, models.MetaLastCustomerSync, requestStart, updated); err != nil {
		return fmt.Errorf("advance customer watermark: %w", err)
	}

	result.CustomersPulled = len(customers)
	log.Info().Int("count", len(customers)).Bool("incremental", since != nil).Msg("📥 Customers pulled")
	return nil
}
