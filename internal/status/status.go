package status

import "sync"

// Status is the state of one collaborator call.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) String() string {
	return string(s)
}

// Call sites tracked by the storefront client.
const (
	CallCatalog = "catalog"
	CallCart    = "cart"
	CallSubmit  = "submit"
	CallHistory = "history"
)

// Tracker keeps one status per call site, so a failure of one call never
// shows up as the state of another. A failed call stays failed until Reset.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]Status
	errs   map[string]error
}

func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]Status),
		errs:   make(map[string]error),
	}
}

// Start marks call as pending. It returns false, leaving the state alone,
// when the call already failed.
func (t *Tracker) Start(call string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[call] == StatusFailed {
		return false
	}
	t.states[call] = StatusPending
	return true
}

// Finish records the outcome of call.
func (t *Tracker) Finish(call string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.states[call] = StatusFailed
		t.errs[call] = err
		return
	}
	t.states[call] = StatusSuccess
	delete(t.errs, call)
}

func (t *Tracker) Get(call string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[call]; ok {
		return s
	}
	return StatusIdle
}

// Err returns the error that failed call, if any.
func (t *Tracker) Err(call string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errs[call]
}

// Loading reports whether any tracked call is still pending.
func (t *Tracker) Loading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.states {
		if s == StatusPending {
			return true
		}
	}
	return false
}

// Degraded reports whether any tracked call failed.
func (t *Tracker) Degraded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.errs) > 0
}

// Reset forgets every call, as a full reload would.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]Status)
	t.errs = make(map[string]error)
}
