package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// watermark returns the stored pull watermark, or nil for a full pull.
func (m *Manager) watermark(ctx context.Context, key string) (*time.Time, error) {
	value, ok, err := m.store.GetMetadata(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("⚠️ Unreadable sync watermark, doing a full pull")
		return nil, nil
	}
	return &ts, nil
}

// advanceWatermark stores max(requestStart, newest record timestamp).
func (m *Manager) advanceWatermark(ctx context.Context, key string, requestStart time.Time, updated []time.Time) error {
	mark := requestStart
	for _, ts := range updated {
		if ts.After(mark) {
			mark = ts
		}
	}
	return m.store.SetMetadata(ctx, key, mark.UTC().Format(time.RFC3339Nano))
}
