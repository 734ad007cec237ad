package tasks

import (
	"sync"
	"time"
)

// activityCap bounds the in-memory event ring.
const activityCap = 50

// ActivityLevel classifies an activity event for display.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "INFO"
	ActivitySuccess ActivityLevel = "SUCCESS"
	ActivityWarning ActivityLevel = "WARNING"
	ActivityError   ActivityLevel = "ERROR"
)

// ActivityEvent is one row in the recent-activity feed.
type ActivityEvent struct {
	Time    time.Time     `json:"time"`
	Level   ActivityLevel `json:"level"`
	Message string        `json:"message"`
}

// Activity is a fixed-capacity ring of recent events. Oldest entries fall
// off; nothing is persisted. Safe for concurrent use.
type Activity struct {
	mu     sync.Mutex
	events []ActivityEvent
}

// NewActivity creates an empty activity feed.
func NewActivity() *Activity {
	return &Activity{events: make([]ActivityEvent, 0, activityCap)}
}

// Add appends an event, evicting the oldest once the ring is full.
func (a *Activity) Add(level ActivityLevel, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events = append(a.events, ActivityEvent{Time: time.Now(), Level: level, Message: message})
	if len(a.events) > activityCap {
		a.events = a.events[len(a.events)-activityCap:]
	}
}

// Recent returns the events newest first.
func (a *Activity) Recent() []ActivityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ActivityEvent, len(a.events))
	for i, e := range a.events {
		out[len(a.events)-1-i] = e
	}
	return out
}
