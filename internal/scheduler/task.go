package scheduler

import (
	"time"

	"github.com/backmassage/dashmaster/internal/planner"
)

// State is a task's lifecycle state.
type State int

const (
	StatePending     State = iota // queued for parallel dispatch
	StateRunning                  // a process is alive for this task
	StateFailed                   // last attempt failed; policy decides next
	StateRedoPending              // queued on the serial redo queue
	StateSucceeded                // output finalized under its permanent name
	StateExhausted                // retry budget spent; aborted the run
	StateCancelled                // stopped or discarded by an abort
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateRedoPending:
		return "redo-pending"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateCancelled
}

// Task is a rendition bound to its runtime state. Only the scheduler loop
// reads or writes it.
type Task struct {
	Rendition *planner.Rendition
	Name      string
	State     State
	Attempts  int
	Percent   float64 // highest percent seen in the latest attempt
	LastErr   error

	proc         Process
	fromRedo     bool
	stalled      bool
	lastActivity time.Time
}

// Transition is one observed state change.
type Transition struct {
	Task    string
	From    State
	To      State
	Attempt int
	Percent float64
	Running int // tasks in StateRunning after the change
}

// TaskReport is the final outcome of one task.
type TaskReport struct {
	Name     string
	State    State
	Attempts int
	Err      error
}

// Report summarizes a Run. It is returned on failure too.
type Report struct {
	Tasks         []TaskReport
	TotalAttempts int
	Spawned       int // processes actually started
}

// Succeeded reports whether every task ended in StateSucceeded.
func (r *Report) Succeeded() bool {
	for _, t := range r.Tasks {
		if t.State != StateSucceeded {
			return false
		}
	}
	return true
}

// Task returns the named task's report.
func (r *Report) Task(name string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskReport{}, false
}
