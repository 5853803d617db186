package runtime

import (
	"container/list"
	"sort"
	"sync"
)

// bucket holds every queued task at one priority level. Buckets are kept in
// a slice sorted by descending priority; each bucket's list uses
// container/list for O(1) removal from the middle.
type bucket struct {
	priority int
	tasks    *list.List
}

// PriorityDeque is a per-policy multi-priority task container.
type PriorityDeque struct {
	mu      sync.Mutex
	buckets []*bucket
	ntasks  int
}

// NewPriorityDeque creates an empty deque.
func NewPriorityDeque() *PriorityDeque {
	return &PriorityDeque{}
}

// Ntasks returns the total number of queued tasks.
func (d *PriorityDeque) Ntasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ntasks
}

func (d *PriorityDeque) findBucket(priority int) (int, bool) {
	i := sort.Search(len(d.buckets), func(i int) bool {
		return d.buckets[i].priority <= priority
	})
	if i < len(d.buckets) && d.buckets[i].priority == priority {
		return i, true
	}
	return i, false
}

// Push inserts t into the bucket for t.Priority, creating the bucket if
// necessary while preserving descending priority order.
func (d *PriorityDeque) Push(t *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, exists := d.findBucket(t.Priority)
	if !exists {
		b := &bucket{priority: t.Priority, tasks: list.New()}
		d.buckets = append(d.buckets, nil)
		copy(d.buckets[idx+1:], d.buckets[idx:])
		d.buckets[idx] = b
	}
	d.buckets[idx].tasks.PushBack(t)
	d.ntasks++
}

// Pop scans buckets high to low and returns the head (first-pushed) task of
// the first bucket with a task matching pred, or nil if none match. The
// default predicate (pred == nil) accepts every task.
func (d *PriorityDeque) Pop(pred func(*Task) bool) *Task {
	return d.popFrom(pred, false)
}

// PopForWorker is Pop restricted to tasks some implementation of whose
// codelet can execute on w.
func (d *PriorityDeque) PopForWorker(w *Worker) *Task {
	return d.Pop(func(t *Task) bool { return WorkerCanExecute(t.Codelet, w) })
}

// Dequeue is the symmetric low-priority-side scan: it serves the
// lowest-priority task first, used by stealing policies.
func (d *PriorityDeque) Dequeue(pred func(*Task) bool) *Task {
	return d.popFrom(pred, true)
}

// DequeueForWorker is Dequeue restricted to tasks executable on w.
func (d *PriorityDeque) DequeueForWorker(w *Worker) *Task {
	return d.Dequeue(func(t *Task) bool { return WorkerCanExecute(t.Codelet, w) })
}

func (d *PriorityDeque) popFrom(pred func(*Task) bool, fromTail bool) *Task {
	if pred == nil {
		pred = func(*Task) bool { return true }
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.buckets)
	for i := 0; i < n; i++ {
		bi := i
		if fromTail {
			bi = n - 1 - i
		}
		b := d.buckets[bi]

		var e *list.Element
		if fromTail {
			e = b.tasks.Back()
		} else {
			e = b.tasks.Front()
		}
		for e != nil {
			next := e.Next()
			if fromTail {
				next = e.Prev()
			}
			t := e.Value.(*Task)
			if pred(t) {
				b.tasks.Remove(e)
				d.ntasks--
				if b.tasks.Len() == 0 {
					d.buckets = append(d.buckets[:bi], d.buckets[bi+1:]...)
				}
				return t
			}
			e = next
		}
	}
	return nil
}

// Destroy asserts the deque is empty; destroying a non-empty deque is a
// programming error and is reported as an
// InvariantViolationError rather than silently discarding queued tasks.
func (d *PriorityDeque) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ntasks != 0 {
		return invariantViolated("destroying priority deque with ntasks=%d", d.ntasks)
	}
	d.buckets = nil
	return nil
}
