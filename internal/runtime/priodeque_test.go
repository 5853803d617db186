package runtime

import "testing"

func TestPriorityDeque_PopServesHighestPriorityFirst(t *testing.T) {
	d := NewPriorityDeque()
	low := NewTask(nil)
	low.Priority = 0
	high := NewTask(nil)
	high.Priority = 10
	mid := NewTask(nil)
	mid.Priority = 5

	d.Push(low)
	d.Push(high)
	d.Push(mid)

	if got := d.Pop(nil); got != high {
		t.Fatalf("expected highest-priority task first, got %v", got)
	}
	if got := d.Pop(nil); got != mid {
		t.Fatalf("expected mid-priority task second, got %v", got)
	}
	if got := d.Pop(nil); got != low {
		t.Fatalf("expected low-priority task last, got %v", got)
	}
	if got := d.Pop(nil); got != nil {
		t.Fatalf("expected nil from empty deque, got %v", got)
	}
}

func TestPriorityDeque_SamePriorityIsFIFO(t *testing.T) {
	d := NewPriorityDeque()
	first := NewTask(nil)
	second := NewTask(nil)
	d.Push(first)
	d.Push(second)

	if got := d.Pop(nil); got != first {
		t.Fatalf("expected first-pushed task first, got %v", got)
	}
	if got := d.Pop(nil); got != second {
		t.Fatalf("expected second-pushed task second, got %v", got)
	}
}

func TestPriorityDeque_DequeueServesLowestPriorityFirst(t *testing.T) {
	d := NewPriorityDeque()
	low := NewTask(nil)
	low.Priority = 0
	high := NewTask(nil)
	high.Priority = 10
	d.Push(low)
	d.Push(high)

	if got := d.Dequeue(nil); got != low {
		t.Fatalf("expected lowest-priority task first from Dequeue, got %v", got)
	}
	if got := d.Dequeue(nil); got != high {
		t.Fatalf("expected remaining task from Dequeue, got %v", got)
	}
}

func TestPriorityDeque_PopSkipsNonMatching(t *testing.T) {
	d := NewPriorityDeque()
	a := NewTask(nil)
	a.Priority = 5
	b := NewTask(nil)
	b.Priority = 1
	d.Push(a)
	d.Push(b)

	got := d.Pop(func(t *Task) bool { return t == b })
	if got != b {
		t.Fatalf("expected predicate-matching low-priority task, got %v", got)
	}
	if got := d.Ntasks(); got != 1 {
		t.Fatalf("expected 1 remaining task, got %d", got)
	}
}

func TestPriorityDeque_DestroyRejectsNonEmpty(t *testing.T) {
	PanicOnInvariantViolation = false
	t.Cleanup(func() { PanicOnInvariantViolation = true })

	d := NewPriorityDeque()
	d.Push(NewTask(nil))
	if err := d.Destroy(); err == nil {
		t.Fatal("expected error destroying non-empty deque")
	}
}

func TestPriorityDeque_DestroyAcceptsEmpty(t *testing.T) {
	d := NewPriorityDeque()
	if err := d.Destroy(); err != nil {
		t.Fatalf("unexpected error destroying empty deque: %v", err)
	}
}
