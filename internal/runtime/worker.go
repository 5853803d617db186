package runtime

import (
	"container/list"
	"context"
	"sync"

	"github.com/starpugo/runtime/internal/trace"
)

// Worker is a thread bound to one compute device and one memory node. In Go
// it is one goroutine running Loop, with a mutex+cond guarding its local
// queue.
type Worker struct {
	ID           int
	DeviceKind   DeviceKind
	MemoryNodeID int

	rt *Runtime

	mu    sync.Mutex
	cond  *sync.Cond
	queue *list.List // of *Task

	// Blocking drivers wait on cond when idle; non-blocking ones poll.
	BlockingDriver bool
}

// NewWorker creates a worker bound to the given device and memory node.
func NewWorker(id int, kind DeviceKind, memoryNodeID int, rt *Runtime) *Worker {
	w := &Worker{
		ID:             id,
		DeviceKind:     kind,
		MemoryNodeID:   memoryNodeID,
		rt:             rt,
		queue:          list.New(),
		BlockingDriver: true,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// PushLocal enqueues t on w's local queue. back != 0 (true) inserts at the
// tail, back == 0 (false) at the head: every producer using back=true gives
// FIFO order, every producer using back=false gives LIFO.
func (w *Worker) PushLocal(t *Task, back bool) {
	w.mu.Lock()
	if back {
		w.queue.PushBack(t)
	} else {
		w.queue.PushFront(t)
	}
	w.mu.Unlock()
	w.cond.Signal()
}

// popLocal removes and returns the task at the local queue's head, or nil.
func (w *Worker) popLocal() *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	el := w.queue.Front()
	if el == nil {
		return nil
	}
	w.queue.Remove(el)
	return el.Value.(*Task)
}

// QueueLen reports the number of locally queued tasks (diagnostics/tests).
func (w *Worker) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// Loop is the worker dispatch loop: acquire the local-queue
// lock, service pending node-data requests, wait on cond if idle and the
// machine is still running, then attempt to pop and run a task.
func (w *Worker) Loop(ctx context.Context) {
	for {
		w.mu.Lock()
		w.rt.serviceNodeDataRequests(w.MemoryNodeID)
		for w.queue.Len() == 0 && w.rt.isRunning() && w.BlockingDriver {
			w.cond.Wait()
		}
		running := w.rt.isRunning()
		w.mu.Unlock()
		if !running {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.rt.Dispatcher.Pop(w)
		if err != nil {
			w.rt.Log.Debug().Err(err).Int("worker", w.ID).Msg("pop failed")
			continue
		}
		if task == nil {
			continue
		}
		w.run(ctx, task)
	}
}

// run executes task's kernel (delegated to the device driver), then runs
// the post-exec hook (unless pinned) and releases the task's dependencies.
func (w *Worker) run(ctx context.Context, task *Task) {
	task.setStatus(StatusRunning)
	trace.SafeRecord(w.rt.Trace, trace.TraceEvent{
		Kind:     trace.EventTaskRunning,
		TaskID:   task.ID.String(),
		WorkerID: w.ID,
	})

	if task.entryBarrier != nil {
		task.entryBarrier.arrive()
	}

	var runErr error
	if kernel, ok := task.Codelet.Kernels[w.DeviceKind]; ok {
		runErr = kernel(ctx, task, w)
	} else {
		runErr = ErrNoDevice
	}

	if task.exitBarrier != nil {
		task.exitBarrier.arrive()
	}

	if runErr != nil {
		task.setStatus(StatusFailed)
		w.rt.Log.Debug().Err(runErr).Str("task", task.ID.String()).Msg("task kernel failed")
		trace.SafeRecord(w.rt.Trace, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: task.ID.String(), Reason: "KernelFailed"})
	} else {
		task.setStatus(StatusDone)
		trace.SafeRecord(w.rt.Trace, trace.TraceEvent{Kind: trace.EventTaskDone, TaskID: task.ID.String()})
	}

	// Combined-worker aliases only release dependencies/profiling once, on
	// whichever alias is last to finish.
	if task.IsAlias() {
		if task.aliasOf.finishAlias() {
			real := task.aliasOf
			if real.Callback != nil {
				real.Callback(real)
			}
			w.rt.Dispatcher.PostExecHook(real)
			w.rt.DepEngine.Complete(real)
		}
		return
	}

	if task.Callback != nil {
		task.Callback(task)
	}
	w.rt.Dispatcher.PostExecHook(task)
	w.rt.DepEngine.Complete(task)
}

// CombinedWorker is a logical worker representing a set of basic workers
// that execute one task collectively.
type CombinedWorker struct {
	ID           int
	MemberIDs    []int
	MemoryNodeID int
}

// WorkerSize is the number of basic workers belonging to this combined worker.
func (c *CombinedWorker) WorkerSize() int { return len(c.MemberIDs) }

// barrier is a reusable rendezvous point for worker_size parties, used for
// the combined-worker entry and exit barriers. Its lifetime equals the longest-living alias; it is simply
// garbage once all parties have arrived at both barriers.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	round   int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	round := b.round
	b.arrived++
	if b.arrived >= b.n {
		b.arrived = 0
		b.round++
		b.cond.Broadcast()
		return
	}
	for b.round == round {
		b.cond.Wait()
	}
}
