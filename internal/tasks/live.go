package tasks

import (
	"sync"

	"github.com/Daxiongmao87/youspotter/internal/models"
)

// completedCap bounds how many finished transfers the live view remembers
// between cycles.
const completedCap = 25

// TransferState is one in-flight or finished transfer in the live view.
type TransferState struct {
	Identity string `json:"identity"`
	Artist   string `json:"artist"`
	Title    string `json:"title"`
	Percent  int    `json:"percent"`
	Done     bool   `json:"done"`
	Failed   bool   `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// LiveSnapshot is a point-in-time copy of the live queue for rendering.
type LiveSnapshot struct {
	Pending   int             `json:"pending"`
	Active    []TransferState `json:"active"`
	Completed []TransferState `json:"completed"`
}

// QueueView mirrors the dispatcher's in-memory state so status consumers
// see per-transfer progress without polling the database. Rebuilt every
// cycle; never persisted.
type QueueView struct {
	mu        sync.Mutex
	pending   int
	active    map[string]*TransferState
	completed []TransferState
}

// NewQueueView creates an empty live view.
func NewQueueView() *QueueView {
	return &QueueView{active: make(map[string]*TransferState)}
}

// BeginCycle resets the view for a new cycle with the given queue depth.
func (v *QueueView) BeginCycle(queued int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = queued
	v.active = make(map[string]*TransferState)
	v.completed = v.completed[:0]
}

// Start moves one work item from pending to active.
func (v *QueueView) Start(item models.WorkItem) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending > 0 {
		v.pending--
	}
	v.active[item.Identity] = &TransferState{
		Identity: item.Identity,
		Artist:   item.Descriptor.Artist,
		Title:    item.Descriptor.Title,
	}
}

// Progress updates the transfer percentage for an active item.
func (v *QueueView) Progress(identity string, percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if st, ok := v.active[identity]; ok {
		st.Percent = percent
	}
}

// Finish moves an active item to the completed list.
func (v *QueueView) Finish(identity string, failed bool, errMsg string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	st, ok := v.active[identity]
	if !ok {
		return
	}
	delete(v.active, identity)

	st.Done = true
	st.Failed = failed
	st.Error = errMsg
	if !failed {
		st.Percent = 100
	}
	v.completed = append(v.completed, *st)
	if len(v.completed) > completedCap {
		v.completed = v.completed[len(v.completed)-completedCap:]
	}
}

// Snapshot copies the current view.
func (v *QueueView) Snapshot() LiveSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := LiveSnapshot{
		Pending:   v.pending,
		Active:    make([]TransferState, 0, len(v.active)),
		Completed: append([]TransferState(nil), v.completed...),
	}
	for _, st := range v.active {
		snap.Active = append(snap.Active, *st)
	}
	return snap
}
