// Package connectivity tracks whether the backend is reachable and tells
// subscribers when that changes.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const historyLimit = 100

// Event is emitted once per actual state change
type Event string

const (
	EventOnline  Event = "online"
	EventOffline Event = "offline"
)

// Transition records one state change
type Transition struct {
	Event     Event     `json:"event"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ProbeStatus tracks the health of the backend probe
type ProbeStatus struct {
	Online       bool          `json:"online"`
	LastCheck    time.Time     `json:"last_check"`
	LastSuccess  *time.Time    `json:"last_success,omitempty"`
	LastFailure  *time.Time    `json:"last_failure,omitempty"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	AvgLatency   time.Duration `json:"avg_latency"`

	latencySum   time.Duration
	latencyCount int
}

// Prober checks reachability once
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber GETs <base>/health
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(baseURL string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    baseURL + "/health",
		client: &http.Client{Timeout: timeout},
	}
}

// Probe treats any answer below 500 as reachable; auth failures still prove the network works.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Monitor holds the current online/offline state.
// It is advisory: the interceptor also reports real request outcomes.
type Monitor struct {
	mu       sync.RWMutex
	notifyMu sync.Mutex // keeps listener calls in transition order

	prober   Prober
	interval time.Duration

	online    bool
	status    ProbeStatus
	history   []Transition
	listeners map[int]func(Event)
	nextID    int

	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		prober:    prober,
		interval:  interval,
		history:   make([]Transition, 0),
		listeners: make(map[int]func(Event)),
	}
}

// Start probes once to set the initial state (no event), then probes every interval.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	err := m.probe(ctx)
	m.mu.Lock()
	m.online = err == nil
	m.status.Online = m.online
	m.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Backend unreachable at startup, running offline")
	} else {
		log.Info().Msg("✅ Backend reachable at startup")
	}

	go m.healthCheckLoop(ctx)
}

// Stop ends the health check loop and waits for it.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}

func (m *Monitor) healthCheckLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check probes now and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe(ctx)
	if err != nil {
		m.setOnline(false, "health_check_failed: "+err.Error())
		return false
	}
	m.setOnline(true, "health_check_ok")
	return true
}

func (m *Monitor) probe(ctx context.Context) error {
	start := time.Now()
	err := m.prober.Probe(ctx)
	latency := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.status.LastCheck = now
	if err != nil {
		m.status.FailureCount++
		m.status.LastFailure = &now
		return err
	}
	m.status.SuccessCount++
	m.status.LastSuccess = &now
	m.status.FailureCount = 0
	m.status.latencySum += latency
	m.status.latencyCount++
	m.status.AvgLatency = m.status.latencySum / time.Duration(m.status.latencyCount)
	return nil
}

// Report feeds an observed request outcome into the state.
func (m *Monitor) Report(online bool, reason string) {
	m.setOnline(online, reason)
}

// setOnline flips the state and notifies listeners only on an actual change.
// Listeners run synchronously and must not call Report.
func (m *Monitor) setOnline(online bool, reason string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.status.Online = online

	event := EventOffline
	if online {
		event = EventOnline
	}
	m.history = append(m.history, Transition{Event: event, Reason: reason, Timestamp: time.Now().UTC()})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}

	listeners := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if online {
		log.Info().Str("reason", reason).Msg("🌐 Connection restored")
	} else {
		log.Warn().Str("reason", reason).Msg("📴 Connection lost, switching to offline mode")
	}

	for _, fn := range listeners {
		fn(event)
	}
}

// Subscribe registers fn for transition events. The returned func unsubscribes.
func (m *Monitor) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// IsOnline returns the current state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Status returns a copy of the probe statistics
func (m *Monitor) Status() ProbeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// History returns the last transitions, oldest first
func (m *Monitor) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.history...)
}
