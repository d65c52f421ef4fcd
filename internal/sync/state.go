package sync

import (
	"time"

	"github.com/google/uuid"
)

// State is a step of a sync pass.
type State int

const (
	StateIdle State = iota
	StateUploadingAudit
	StateFetchingStores
	StateFetchingProducts
	StateApplyingCatalog
	StateDone
	StateFailed
	StateCanceled
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateUploadingAudit:   "uploading_audit",
	StateFetchingStores:   "fetching_stores",
	StateFetchingProducts: "fetching_products",
	StateApplyingCatalog:  "applying_catalog",
	StateDone:             "done",
	StateFailed:           "failed",
	StateCanceled:         "canceled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// Event is one state change of a pass. Index and Total are set while
// uploading: Index is zero-based.
type Event struct {
	State   State
	Index   int
	Total   int
	AuditID uuid.UUID
	Message string
	At      time.Time
}

// Observer receives the events of a pass on the goroutine running it.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Result is the outcome of a pass.
type Result struct {
	State    State
	Message  string
	Uploaded int
	Pending  int
	Stores   int
	Products int
	Err      error
	Started  time.Time
	Finished time.Time

	// FailedAudit is the audit the pass stopped on, or uuid.Nil.
	FailedAudit uuid.UUID
}

// OK reports whether the pass finished every step.
func (r Result) OK() bool { return r.State == StateDone }
