package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/models"
)

// ErrUnknownQueueType is recorded against items no replayer handles
var ErrUnknownQueueType = errors.New("no replayer for queue item type")

// Replayer re-sends one deferred write
type Replayer func(ctx context.Context, item models.SyncQueueItem) error

func (m *Manager) defaultReplayers() map[string]Replayer {
	return map[string]Replayer{
		models.QueueTypeCreateProduct:   m.replayVerbatim,
		models.QueueTypeUpdateProduct:   m.replayVerbatim,
		models.QueueTypeUpdateInventory: m.replayInventory,
		models.QueueTypeCreateCustomer:  m.replayVerbatim,
		models.QueueTypeUpdateCustomer:  m.replayVerbatim,
		models.QueueTypeRequest:         m.replayVerbatim,
	}
}

func (m *Manager) replayVerbatim(ctx context.Context, item models.SyncQueueItem) error {
	return m.backend.Replay(ctx, item.Method, item.Path, json.RawMessage(item.Payload))
}

// replayInventory also moves the local snapshot to the accepted quantity.
func (m *Manager) replayInventory(ctx context.Context, item models.SyncQueueItem) error {
	if err := m.replayVerbatim(ctx, item); err != nil {
		return err
	}

	productID, err := strconv.ParseInt(path.Base(item.Path), 10, 64)
	if err != nil {
		return nil
	}
	var body struct {
		QuantityOnHand *int `json:"quantity_on_hand"`
	}
	if json.Unmarshal(item.Payload, &body) != nil || body.QuantityOnHand == nil {
		return nil
	}
	snap := models.InventorySnapshot{ProductID: productID, QuantityOnHand: *body.QuantityOnHand, LastUpdated: m.now()}
	if err := m.store.UpsertInventory(ctx, []models.InventorySnapshot{snap}); err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("⚠️ Could not update stock snapshot after replay")
	}
	return nil
}

// drainQueue replays queued writes oldest first. Items at the retry ceiling
// are skipped and reported instead of replayed.
func (m *Manager) drainQueue(ctx context.Context, result *PassResult) error {
	items, err := m.store.ListSyncItems(ctx)
	if err != nil {
		return fmt.Errorf("list sync queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	log.Info().Int("count", len(items)).Msg("📤 Draining sync queue")

	for _, item := range items {
		if item.Stuck(m.config.MaxRetries) {
			result.Stuck = append(result.Stuck, stuckItem(item))
			continue
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("drain sync queue: %w", err)
		}

		replay, ok := m.replayers[item.Type]
		if ok {
			err = replay(ctx, item)
		} else {
			err = fmt.Errorf("%w: %q", ErrUnknownQueueType, item.Type)
		}

		if err == nil {
			if err := m.store.RemoveSyncItem(ctx, item.ID); err != nil {
				return fmt.Errorf("remove replayed item %d: %w", item.ID, err)
			}
			result.Replayed++
			log.Debug().Uint("id", item.ID).Str("type", item.Type).Msg("✅ Queued write replayed")
			continue
		}

		if ctx.Err() != nil {
			// Pass deadline or shutdown, not the item's fault
			return fmt.Errorf("drain sync queue: %w", ctx.Err())
		}

		count, serr := m.store.RecordReplayFailure(ctx, item.ID, err.Error())
		if serr != nil {
			return fmt.Errorf("record failure of item %d: %w", item.ID, serr)
		}
		result.Failed++
		log.Warn().Err(err).Uint("id", item.ID).Str("type", item.Type).Int("retry_count", count).Msg("⚠️ Replay failed")

		if count >= m.config.MaxRetries {
			item.RetryCount = count
			item.LastError = err.Error()
			result.Stuck = append(result.Stuck, stuckItem(item))
		}
	}
	return nil
}

func stuckItem(item models.SyncQueueItem) StuckItem {
	return StuckItem{
		ID:         item.ID,
		Type:       item.Type,
		Method:     item.Method,
		Path:       item.Path,
		RetryCount: item.RetryCount,
		LastError:  item.LastError,
		CreatedAt:  item.CreatedAt,
	}
}

// RequeueStuck resets the retry counter of every stuck item so the next pass
// replays them again. Returns how many were requeued.
func (m *Manager) RequeueStuck(ctx context.Context) (int, error) {
	items, err := m.store.ListSyncItems(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Stuck(m.config.MaxRetries) {
			continue
		}
		if err := m.store.ResetRetries(ctx, item.ID); err != nil {
			return n, fmt.Errorf("requeue item %d: %w", item.ID, err)
		}
		n++
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("🔁 Stuck items requeued")
	}
	return n, nil
}

// Discard removes one queued write for good. The payload is logged as the audit record.
func (m *Manager) Discard(ctx context.Context, id uint) error {
	item, err := m.store.GetSyncItem(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.RemoveSyncItem(ctx, id); err != nil {
		return err
	}
	log.Warn().
		Uint("id", item.ID).
		Str("type", item.Type).
		Str("method", item.Method).
		Str("path", item.Path).
		RawJSON("payload", payloadOrNull(item.Payload)).
		Int("retry_count", item.RetryCount).
		Str("last_error", item.LastError).
		Msg("🗑️ Sync queue item discarded")
	return nil
}

func payloadOrNull(p []byte) []byte {
	if len(p) == 0 || !json.Valid(p) {
		return []byte("null")
	}
	return p
}
