package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/backend"
)

// pushOrders submits unsynced pending orders, oldest first. A failed order is
// left untouched for the next pass; its idempotency key makes the resubmit safe.
func (m *Manager) pushOrders(ctx context.Context, result *PassResult) error {
	orders, err := m.store.ListPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	log.Info().Int("count", len(orders)).Msg("📤 Pushing pending orders")

	for _, order := range orders {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("push orders: %w", err)
		}

		conf, err := m.backend.CreateOrder(ctx, json.RawMessage(order.Payload), order.IdempotencyKey)
		if err != nil {
			result.FailedOrders++
			if backend.ClassifyFailure(err) != backend.FailureRejected {
				// No point hammering an unreachable backend with the rest
				return fmt.Errorf("push order %d: %w", order.LocalID, err)
			}
			log.Warn().Err(err).Uint("local_id", order.LocalID).Msg("⚠️ Backend rejected pending order, keeping it")
			continue
		}

		if err := m.store.MarkSynced(ctx, order.LocalID, conf.ID, conf.OrderNumber); err != nil {
			return fmt.Errorf("mark order %d synced: %w", order.LocalID, err)
		}
		result.PushedOrders++

		log.Info().
			Uint("local_id", order.LocalID).
			Str("provisional", order.ProvisionalNumber()).
			Str("order_number", conf.OrderNumber).
			Msg("✅ Pending order confirmed")
	}
	return nil
}
