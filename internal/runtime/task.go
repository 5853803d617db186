// Package runtime implements the dependency engine, scheduling-policy
// contract, and worker dispatch loop: a runtime that
// executes a dynamic task graph across a heterogeneous pool of workers.
package runtime

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AccessMode is the access a task declares on a data handle.
type AccessMode int

const (
	AccessR AccessMode = iota
	AccessW
	AccessRW
	AccessScratch
)

func (m AccessMode) String() string {
	switch m {
	case AccessR:
		return "R"
	case AccessW:
		return "W"
	case AccessRW:
		return "RW"
	case AccessScratch:
		return "SCRATCH"
	default:
		return "UNKNOWN"
	}
}

// TaskStatus is a task's position in its lifecycle.
type TaskStatus int

const (
	StatusInit TaskStatus = iota
	StatusReady
	StatusBlocked
	StatusRunning
	StatusDone
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusInit:
		return "Init"
	case StatusReady:
		return "Ready"
	case StatusBlocked:
		return "Blocked"
	case StatusRunning:
		return "Running"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// HandleBinding pairs a data handle with the access mode a task declares on it.
type HandleBinding struct {
	Handle *DataHandle
	Mode   AccessMode
}

// Task is immutable after submission except for its status and profiling
// fields.
//
// Control tasks carry a nil Codelet: completing one only runs its callback
// and resolves its successors, it never reaches a Worker.
type Task struct {
	ID       uuid.UUID
	Codelet  *Codelet
	Handles  []HandleBinding
	Priority int

	// WorkerID pins the task to a specific worker (or combined worker id);
	// -1 means the task is unpinned and goes through the scheduling policy.
	WorkerID int

	Callback    func(*Task)
	CallbackArg any

	ExplicitDeps []*Task

	status atomic.Int32

	PushStart, PushEnd time.Time
	PopStart, PopEnd   time.Time

	// combined-worker bookkeeping; zero value means "not a combined-worker task".
	taskSize          int
	combinedWorkerID  int
	entryBarrier      *barrier
	exitBarrier       *barrier
	activeAliasCount  atomic.Int32 // set on the original task only
	aliasOf           *Task        // nil except on alias copies
	aliasWorkerID     int
}

// finishAlias decrements the original task's active-alias count and reports
// whether this was the last alias to finish, i.e. whether dependency release
// and the post-exec hook should now run exactly once.
func (t *Task) finishAlias() bool {
	return t.activeAliasCount.Add(-1) == 0
}

// NewTask constructs a Task with a fresh identity and default (unpinned) placement.
func NewTask(codelet *Codelet) *Task {
	t := &Task{
		ID:       uuid.New(),
		Codelet:  codelet,
		WorkerID: -1,
	}
	t.status.Store(int32(StatusInit))
	return t
}

// Status returns the task's current lifecycle status.
func (t *Task) Status() TaskStatus { return TaskStatus(t.status.Load()) }

// setStatus is unconditional; callers are responsible for respecting the
// lifecycle ordering.
func (t *Task) setStatus(s TaskStatus) { t.status.Store(int32(s)) }

// IsControlTask reports whether the task has no codelet.
func (t *Task) IsControlTask() bool { return t.Codelet == nil }

// Pinned reports whether the task was submitted with an explicit worker id.
func (t *Task) Pinned() bool { return t.WorkerID >= 0 }

// IsAlias reports whether this Task value is a combined-worker alias sharing
// state with the originally submitted task.
func (t *Task) IsAlias() bool { return t.aliasOf != nil }
