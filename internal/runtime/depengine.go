package runtime

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"

	"github.com/starpugo/runtime/internal/trace"
)

// taskEntry tracks one submitted task from Submit through Complete. It
// stays in DependencyEngine.entries for the task's whole lifetime in the
// engine, not just while blocked, because Complete needs the same handle
// elements Submit recorded.
type taskEntry struct {
	task          *Task
	handleElems   map[*DataHandle]*list.Element
	remainingDeps int
	promoted      bool
}

// AppAccess is the token returned by AcquireFromApp; pass it to
// ReleaseFromApp to release the handle.
type AppAccess struct {
	handle *DataHandle
	el     *list.Element
}

// DependencyEngine enforces read/write ordering per handle and wakes tasks
// whose data prerequisites and explicit task-deps are satisfied.
type DependencyEngine struct {
	log   zerolog.Logger
	trace trace.Sink

	// dispatch hands a now-Ready task to the Dispatcher. Set by Runtime wiring.
	dispatch func(*Task)

	mu         sync.Mutex
	entries    map[*Task]*taskEntry
	successors map[*Task][]*Task // predecessor -> dependents still waiting on it
}

// NewDependencyEngine creates an engine that calls dispatch for every task
// that becomes Ready. sink may be nil, in which case tracing is a no-op.
func NewDependencyEngine(log zerolog.Logger, sink trace.Sink, dispatch func(*Task)) *DependencyEngine {
	return &DependencyEngine{
		log:        log,
		trace:      sink,
		dispatch:   dispatch,
		entries:    make(map[*Task]*taskEntry),
		successors: make(map[*Task][]*Task),
	}
}

// wakeup is what a locked section hands back to its caller to run once the
// lock is released: a task newly promoted to Ready, or an app-acquire
// callback newly granted. Control tasks dispatch synchronously and run
// their callback inline, which can itself call back into the engine (e.g.
// Complete); running these outside the lock is what keeps that legal
// instead of deadlocking on a non-reentrant mutex.
type wakeup struct {
	task     *Task
	callback func(any)
	arg      any
}

func (e *DependencyEngine) fire(wakeups []wakeup) {
	for _, w := range wakeups {
		if w.task != nil {
			e.dispatch(w.task)
		} else {
			w.callback(w.arg)
		}
	}
}

// Submit enqueues a task's handle accesses and registers its explicit
// dependencies, promoting it to Ready immediately if nothing blocks it.
//
// A task bound W on a nil handle is a programming error: it is logged at
// debug level and skipped rather than executed.
func (e *DependencyEngine) Submit(t *Task) {
	for _, b := range t.Handles {
		if b.Handle == nil && (b.Mode == AccessW || b.Mode == AccessRW) {
			e.log.Debug().Str("task", t.ID.String()).Msg("skipping task: W-bound nil handle")
			t.setStatus(StatusFailed)
			trace.SafeRecord(e.trace, trace.TraceEvent{
				Kind:   trace.EventTaskSkipped,
				TaskID: t.ID.String(),
				Reason: "NullHandleOnWrite",
			})
			return
		}
	}

	e.mu.Lock()

	entry := &taskEntry{task: t, handleElems: make(map[*DataHandle]*list.Element)}

	for _, b := range t.Handles {
		if b.Mode == AccessScratch || b.Handle == nil {
			continue // scratch never participates in FIFO ordering
		}
		if !b.Handle.SequentialConsistency {
			continue // bypass: ordering rests solely on explicit deps
		}
		el := b.Handle.enqueue(&accessRequest{task: t, mode: b.Mode})
		entry.handleElems[b.Handle] = el
	}

	for _, dep := range t.ExplicitDeps {
		if dep.Status() == StatusDone {
			continue
		}
		entry.remainingDeps++
		e.successors[dep] = append(e.successors[dep], t)
	}

	t.setStatus(StatusBlocked)
	e.entries[t] = entry

	var wakeups []wakeup
	e.tryPromoteLocked(entry, &wakeups)
	e.mu.Unlock()

	if !entry.promoted {
		trace.SafeRecord(e.trace, trace.TraceEvent{Kind: trace.EventTaskBlocked, TaskID: t.ID.String()})
	}
	e.fire(wakeups)
}

// tryPromoteLocked promotes entry to Ready and appends it to *wakeups if
// every explicit predecessor is Done and every handle binding is granted.
// Idempotent under duplicate wake: a task already promoted is a no-op.
func (e *DependencyEngine) tryPromoteLocked(entry *taskEntry, wakeups *[]wakeup) {
	if entry.promoted {
		return
	}
	if entry.remainingDeps > 0 {
		return
	}
	for h, el := range entry.handleElems {
		if !h.granted(el) {
			return
		}
	}
	entry.promoted = true
	entry.task.setStatus(StatusReady)

	preds := make([]string, 0, len(entry.task.ExplicitDeps))
	for _, p := range entry.task.ExplicitDeps {
		preds = append(preds, p.ID.String())
	}
	trace.SafeRecord(e.trace, trace.TraceEvent{
		Kind:           trace.EventTaskReady,
		TaskID:         entry.task.ID.String(),
		PredecessorIDs: preds,
	})

	*wakeups = append(*wakeups, wakeup{task: entry.task})
}

// Complete is called after a task's kernel returns (or, for control tasks,
// immediately): it pops the task's request from each handle FIFO, promotes
// any task newly unblocked as a result, and releases dependents waiting on
// this task's explicit-dep edge. Idempotent under duplicate wake.
func (e *DependencyEngine) Complete(t *Task) {
	e.mu.Lock()

	entry, ok := e.entries[t]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.entries, t)

	var wakeups []wakeup
	for h, el := range entry.handleElems {
		e.releaseLocked(h, el, &wakeups)
	}

	for _, dependent := range e.successors[t] {
		if depEntry, ok := e.entries[dependent]; ok {
			depEntry.remainingDeps--
			e.tryPromoteLocked(depEntry, &wakeups)
		}
	}
	delete(e.successors, t)

	e.mu.Unlock()
	e.fire(wakeups)
}

// releaseLocked removes el from h's FIFO and appends a wakeup for every
// request that became newly grantable as a result.
func (e *DependencyEngine) releaseLocked(h *DataHandle, el *list.Element, wakeups *[]wakeup) {
	newlyGranted := h.remove(el)
	for _, req := range newlyGranted {
		if req.task != nil {
			if depEntry, ok := e.entries[req.task]; ok {
				e.tryPromoteLocked(depEntry, wakeups)
			}
			continue
		}
		if req.callback != nil {
			cb, arg := req.callback, req.arg
			req.callback = nil
			*wakeups = append(*wakeups, wakeup{callback: cb, arg: arg})
		}
	}
}

// AcquireFromApp is attempt_to_submit_data_request_from_apps: the sole
// mechanism by which non-task code temporarily holds a handle. cb is invoked on the thread that resolves the request once it
// reaches the FIFO head; that may be this call itself (if granted
// immediately) or a later call to Complete/ReleaseFromApp, but never while
// the engine's internal lock is held.
func (e *DependencyEngine) AcquireFromApp(h *DataHandle, mode AccessMode, cb func(arg any), arg any) *AppAccess {
	req := &accessRequest{mode: mode, callback: cb, arg: arg}
	el := h.enqueue(req)
	access := &AppAccess{handle: h, el: el}
	if h.granted(el) {
		req.callback = nil
		cb(arg)
	}
	return access
}

// ReleaseFromApp releases a handle previously acquired via AcquireFromApp,
// the Go analogue of data_release.
func (e *DependencyEngine) ReleaseFromApp(access *AppAccess) {
	e.mu.Lock()
	var wakeups []wakeup
	e.releaseLocked(access.handle, access.el, &wakeups)
	e.mu.Unlock()
	e.fire(wakeups)
}
