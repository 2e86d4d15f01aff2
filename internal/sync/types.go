package sync

import (
	"time"
)

// State of the sync manager
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Phase names one step of a reconciliation pass
type Phase string

const (
	PhasePushOrders    Phase = "push_orders"
	PhasePullProducts  Phase = "pull_products"
	PhasePullCustomers Phase = "pull_customers"
	PhaseDrainQueue    Phase = "drain_queue"
)

// EventType identifies what happened
type EventType string

const (
	EventOnline       EventType = "online"
	EventOffline      EventType = "offline"
	EventSyncStart    EventType = "syncStart"
	EventSyncComplete EventType = "syncComplete"
	EventSyncError    EventType = "syncError"
	EventStuck        EventType = "stuck"
)

// Event is delivered to OnEvent listeners
type Event struct {
	Type      EventType   `json:"type"`
	Phase     Phase       `json:"phase,omitempty"`
	Error     string      `json:"error,omitempty"`
	Result    *PassResult `json:"result,omitempty"`
	Stuck     []StuckItem `json:"stuck,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StuckItem is a queued write that used up its automatic retries.
// It stays queued until an operator requeues or discards it.
type StuckItem struct {
	ID         uint      `json:"id"`
	Type       string    `json:"type"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PassResult summarizes one reconciliation pass
type PassResult struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// ========== PUSH ==========
	PushedOrders int `json:"pushed_orders"`
	FailedOrders int `json:"failed_orders"`

	// ========== PULL ==========
	ProductsPulled  int `json:"products_pulled"`
	CustomersPulled int `json:"customers_pulled"`

	// ========== DRAIN ==========
	Replayed int         `json:"replayed"`
	Failed   int         `json:"failed"`
	Stuck    []StuckItem `json:"stuck,omitempty"`

	// Errors holds the phases that could not finish
	Errors map[Phase]string `json:"errors,omitempty"`
}

// Success reports whether every phase finished and nothing failed.
func (r *PassResult) Success() bool {
	return len(r.Errors) == 0 && r.FailedOrders == 0 && r.Failed == 0
}

func (r *PassResult) fail(phase Phase, err error) {
	if r.Errors == nil {
		r.Errors = make(map[Phase]string)
	}
	r.Errors[phase] = err.Error()
}

// Status is the passive indicator shown to the cashier
type Status struct {
	Online           bool        `json:"online"`
	State            State       `json:"state"`
	PendingOrders    int         `json:"pending_orders"`
	QueuedItems      int         `json:"queued_items"`
	StuckItems       int         `json:"stuck_items"`
	LastProductSync  *time.Time  `json:"last_product_sync,omitempty"`
	LastCustomerSync *time.Time  `json:"last_customer_sync,omitempty"`
	LastPass         *PassResult `json:"last_pass,omitempty"`
}
