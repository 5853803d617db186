package runtime

import (
	"time"

	"github.com/starpugo/runtime/internal/trace"
)

// Dispatcher is the generic façade used to enqueue a task: it decides
// between policy-driven placement and pinned placement on a specific
// worker, performs optional input prefetch, and records push timestamps.
type Dispatcher struct {
	rt *Runtime
}

func newDispatcher(rt *Runtime) *Dispatcher { return &Dispatcher{rt: rt} }

// Push marks the task Ready, then either runs a control task's termination
// path inline or routes it to the pinned worker or the scheduling policy.
func (d *Dispatcher) Push(t *Task) error {
	t.setStatus(StatusReady)
	if d.rt.Profiling {
		t.PushStart = time.Now()
	}

	var err error
	switch {
	case t.IsControlTask():
		d.runControlTask(t)
	case t.Pinned():
		err = d.PushOnSpecificWorker(t, t.WorkerID)
	default:
		err = d.rt.Policy.PushTask(t)
	}

	if d.rt.Profiling {
		t.PushEnd = time.Now()
	}
	return err
}

// runControlTask is the termination path for a codelet-less task: run its
// callback, mark it Done, and let the dependency engine release its
// successors.
func (d *Dispatcher) runControlTask(t *Task) {
	if t.Callback != nil {
		t.Callback(t)
	}
	t.setStatus(StatusDone)
	trace.SafeRecord(d.rt.Trace, trace.TraceEvent{Kind: trace.EventTaskDone, TaskID: t.ID.String()})
	d.rt.DepEngine.Complete(t)
}

// PushOnSpecificWorker places a task directly on the named worker,
// bypassing the scheduling policy.
func (d *Dispatcher) PushOnSpecificWorker(t *Task, workerID int) error {
	w, combined, memoryNodeID, ok := d.rt.resolveWorker(workerID)
	if !ok {
		return ErrNoDevice
	}

	if d.rt.Prefetch {
		for _, b := range t.Handles {
			if b.Handle == nil {
				continue
			}
			if b.Mode == AccessR || b.Mode == AccessRW {
				d.rt.prefetchHandle(b.Handle, memoryNodeID)
			}
		}
	}

	if combined != nil {
		return d.pushCombined(t, combined)
	}
	w.PushLocal(t, true)
	return nil
}

// pushCombined creates worker_size task aliases synchronized by an entry and
// an exit barrier, and enqueues one alias per member worker.
func (d *Dispatcher) pushCombined(t *Task, cw *CombinedWorker) error {
	size := cw.WorkerSize()
	t.taskSize = size
	t.combinedWorkerID = cw.ID
	t.activeAliasCount.Store(int32(size))
	t.entryBarrier = newBarrier(size)
	t.exitBarrier = newBarrier(size)

	for _, memberID := range cw.MemberIDs {
		member := d.rt.workerByID(memberID)
		if member == nil {
			return invariantViolated("combined worker %d member %d not registered", cw.ID, memberID)
		}
		alias := &Task{
			ID:           t.ID,
			Codelet:      t.Codelet,
			Handles:      t.Handles,
			Priority:     t.Priority,
			WorkerID:     member.ID,
			entryBarrier: t.entryBarrier,
			exitBarrier:  t.exitBarrier,
			aliasOf:      t,
		}
		alias.setStatus(StatusReady)
		member.PushLocal(alias, true)
	}
	return nil
}

// Pop is called from a worker thread): it first
// consults the worker's local queue, falling back to the scheduling policy.
func (d *Dispatcher) Pop(w *Worker) (*Task, error) {
	var popStart time.Time
	if d.rt.Profiling {
		popStart = time.Now()
	}

	t := w.popLocal()
	if t == nil {
		t = d.rt.Policy.PopTask(w)
	}
	if t != nil && d.rt.Profiling {
		t.PopStart = popStart
		t.PopEnd = time.Now()
	}
	return t, nil
}

// PostExecHook is invoked only for tasks the policy placed, never for
// pinned tasks.
func (d *Dispatcher) PostExecHook(t *Task) {
	if t.Pinned() {
		return
	}
	if hook, ok := d.rt.Policy.(PostExecHooker); ok {
		hook.PostExecHook(t)
	}
}
