// Package sync reconciles the local store with the backend: it pushes pending
// orders, pulls reference data and drains the queue of deferred writes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/config"
	"github.com/xelth-com/eckpos/internal/connectivity"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/store"
	"golang.org/x/time/rate"
)

// ErrSyncInProgress is returned when a pass is requested while another runs.
var ErrSyncInProgress = errors.New("sync already in progress")

// Backend is the part of the backend client the manager calls directly.
// Sync only runs while online, so it never goes through the offline fallback.
type Backend interface {
	CreateOrder(ctx context.Context, payload json.RawMessage, idempotencyKey string) (*models.OrderConfirmation, error)
	ListProducts(ctx context.Context, updatedAfter *time.Time) ([]models.Product, error)
	ListCustomers(ctx context.Context, updatedAfter *time.Time) ([]models.Customer, error)
	Replay(ctx context.Context, method, path string, payload json.RawMessage) error
}

// Monitor provides connectivity state and transitions
type Monitor interface {
	IsOnline() bool
	Subscribe(fn func(connectivity.Event)) func()
}

// Option configures a Manager
type Option func(*Manager)

// WithMonitor wires connectivity events. Without one the manager assumes it is online.
func WithMonitor(mon Monitor) Option {
	return func(m *Manager) { m.monitor = mon }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithReplayer registers or replaces the replay handler for a queue type
func WithReplayer(itemType string, r Replayer) Option {
	return func(m *Manager) { m.replayers[itemType] = r }
}

// Manager orchestrates reconciliation passes
type Manager struct {
	mu sync.RWMutex

	// Core components
	store     store.Store
	backend   Backend
	config    *config.SyncConfig
	monitor   Monitor
	replayers map[string]Replayer
	limiter   *rate.Limiter
	now       func() time.Time

	// State
	isRunning      bool
	syncInProgress bool
	lastPass       *PassResult

	cancel      context.CancelFunc
	done        chan struct{}
	trigger     chan struct{}
	unsubscribe func()

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

// NewManager creates a sync manager. cfg may be nil for defaults.
func NewManager(st store.Store, backend Backend, cfg *config.SyncConfig, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	m := &Manager{
		store:     st,
		backend:   backend,
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.ReplayRate), cfg.ReplayBurst),
		now:       func() time.Time { return time.Now().UTC() },
		trigger:   make(chan struct{}, 1),
		listeners: make(map[int]func(Event)),
	}
	m.replayers = m.defaultReplayers()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the background worker
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("sync manager already running")
	}

	log.Info().Msg("🔄 Sync Manager starting...")

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.isRunning = true

	if m.monitor != nil {
		m.unsubscribe = m.monitor.Subscribe(m.onConnectivity)
	}

	go m.worker(ctx)

	// m.mu is held here, so skip Trigger (it reads syncInProgress under the lock)
	if m.config.SyncOnStartup && m.online() {
		select {
		case m.trigger <- struct{}{}:
		default:
		}
	}

	log.Info().
		Bool("auto_sync", m.config.AutoSyncEnabled).
		Dur("interval", m.config.AutoSyncEvery()).
		Msg("✅ Sync Manager started")
	return nil
}

// Stop stops the worker and waits for an in-flight pass to end
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	log.Info().Msg("🛑 Stopping Sync Manager...")
	m.isRunning = false
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancel()
	done := m.done
	m.mu.Unlock()

	<-done
	log.Info().Msg("✅ Sync Manager stopped")
}

// Trigger requests a pass without waiting for it. Requests made while a pass
// is running are dropped.
func (m *Manager) Trigger() {
	if m.IsSyncing() {
		log.Debug().Msg("⏳ Sync already in progress, trigger dropped")
		return
	}
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// IsSyncing reports whether a pass is running
func (m *Manager) IsSyncing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncInProgress
}

// LastPass returns the result of the most recent pass, if any
func (m *Manager) LastPass() *PassResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPass
}

// onConnectivity runs inside the monitor's notification; it must not block.
func (m *Manager) onConnectivity(ev connectivity.Event) {
	switch ev {
	case connectivity.EventOnline:
		m.emit(Event{Type: EventOnline})
		log.Info().Msg("🌐 Back online, scheduling sync")
		m.Trigger()
	case connectivity.EventOffline:
		m.emit(Event{Type: EventOffline})
	}
}

func (m *Manager) online() bool {
	return m.monitor == nil || m.monitor.IsOnline()
}

// worker serializes triggered and scheduled passes
func (m *Manager) worker(ctx context.Context) {
	defer close(m.done)

	var tick <-chan time.Time
	if m.config.AutoSyncEnabled {
		ticker := time.NewTicker(m.config.AutoSyncEvery())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
			m.runBackground(ctx)
		case <-tick:
			if !m.online() {
				log.Debug().Msg("⏭️ Auto-sync skipped, offline")
				continue
			}
			log.Debug().Msg("Auto-sync triggered")
			m.runBackground(ctx)
		}
	}
}

func (m *Manager) runBackground(ctx context.Context) {
	if _, err := m.RunPass(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		log.Error().Err(err).Msg("❌ Sync pass failed to start")
	}
}

// RunPass runs one reconciliation pass: push orders, pull products, pull
// customers, drain the queue. Phases are independent; a failing phase is
// recorded in the result and the next one still runs.
func (m *Manager) RunPass(ctx context.Context) (*PassResult, error) {
	m.mu.Lock()
	if m.syncInProgress {
		m.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	m.syncInProgress = true
	m.mu.Unlock()

	result := &PassResult{StartedAt: m.now()}
	defer func() {
		m.mu.Lock()
		m.syncInProgress = false
		m.lastPass = result
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.config.PassDeadline())
	defer cancel()

	log.Info().Msg("🔄 Sync pass started")
	m.emit(Event{Type: EventSyncStart})

	phases := []struct {
		phase Phase
		run   func(context.Context, *PassResult) error
	}{
		{PhasePushOrders, m.pushOrders},
		{PhasePullProducts, m.pullProducts},
		{PhasePullCustomers, m.pullCustomers},
		{PhaseDrainQueue, m.drainQueue},
	}
	for _, p := range phases {
		if err := p.run(ctx, result); err != nil {
			result.fail(p.phase, err)
			log.Warn().Err(err).Str("phase", string(p.phase)).Msg("⚠️ Sync phase failed")
			m.emit(Event{Type: EventSyncError, Phase: p.phase, Error: err.Error()})
		}
	}

	result.FinishedAt = m.now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if len(result.Stuck) > 0 {
		log.Warn().Int("count", len(result.Stuck)).Msg("🚧 Sync queue has stuck items, operator action needed")
		m.emit(Event{Type: EventStuck, Stuck: result.Stuck})
	}

	log.Info().
		Int("orders", result.PushedOrders).
		Int("orders_failed", result.FailedOrders).
		Int("products", result.ProductsPulled).
		Int("customers", result.CustomersPulled).
		Int("replayed", result.Replayed).
		Int("replay_failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("✅ Sync pass completed")
	m.emit(Event{Type: EventSyncComplete, Result: result})

	return result, nil
}

// OnEvent registers a listener. Listeners run synchronously and must not block.
// The returned func unsubscribes.
func (m *Manager) OnEvent(fn func(Event)) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for _, fn := range m.listeners {
		fn(ev)
	}
}

// Status returns the current sync status
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	pending, err := m.store.ListPendingOrders(ctx)
	if err != nil {
		return nil, err
	}
	items, err := m.store.ListSyncItems(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Online:        m.online(),
		State:         StateIdle,
		PendingOrders: len(pending),
		QueuedItems:   len(items),
	}
	for _, item := range items {
		if item.Stuck(m.config.MaxRetries) {
			st.StuckItems++
		}
	}

	if st.LastProductSync, err = m.watermark(ctx, models.MetaLastProductSync); err != nil {
		return nil, err
	}
	if st.LastCustomerSync, err = m.watermark(ctx, models.MetaLastCustomerSync); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.syncInProgress {
		st.State = StateSyncing
	}
	st.LastPass = m.lastPass
	m.mu.RUnlock()

	return st, nil
}
