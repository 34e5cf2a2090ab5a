// Package power tracks the current power source and how it was detected.
// A single Tracker instance is shared by the control loop and the event
// bridge.
package power

import "sync"

// Source is the active power source.
type Source int

const (
	AC Source = iota
	Battery
)

func (s Source) String() string {
	if s == Battery {
		return "BATTERY"
	}
	return "AC"
}

// Method is how the source is being kept up to date. Polling reads sysfs
// every control-loop tick; Event means bus notifications drive updates.
// Method never reverts from Event back to Polling.
type Method int

const (
	Polling Method = iota
	Event
)

func (m Method) String() string {
	if m == Event {
		return "event"
	}
	return "polling"
}

// Tracker holds the (source, method) pair under one mutex so concurrent
// readers always observe a consistent pair.
type Tracker struct {
	mu     sync.Mutex
	source Source
	method Method
}

// NewTracker starts in polling mode with the given source.
func NewTracker(initial Source) *Tracker {
	return &Tracker{source: initial}
}

// Get returns the current pair.
func (t *Tracker) Get() (Source, Method) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source, t.method
}

// SetFromEvent records a source reported by a bus notification and forces
// the method to Event.
func (t *Tracker) SetFromEvent(s Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = s
	t.method = Event
}

// SetPolled records a freshly polled source, but only while the method is
// still Polling. Reports whether the value was applied.
func (t *Tracker) SetPolled(s Source) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.method != Polling {
		return false
	}
	t.source = s
	return true
}
