package runtime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func noopCodelet() *Codelet {
	return &Codelet{
		Name: "noop",
		Kernels: map[DeviceKind]KernelFunc{
			DeviceCPU: func(ctx context.Context, t *Task, w *Worker) error { return nil },
		},
	}
}

func TestWorker_PushLocalBackIsFIFO(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)

	first := NewTask(noopCodelet())
	second := NewTask(noopCodelet())
	w.PushLocal(first, true)
	w.PushLocal(second, true)

	if got := w.popLocal(); got != first {
		t.Fatalf("expected FIFO order, got %v first", got)
	}
	if got := w.popLocal(); got != second {
		t.Fatalf("expected FIFO order, got %v second", got)
	}
}

func TestWorker_PushLocalFrontIsLIFO(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)

	first := NewTask(noopCodelet())
	second := NewTask(noopCodelet())
	w.PushLocal(first, false)
	w.PushLocal(second, false)

	if got := w.popLocal(); got != second {
		t.Fatalf("expected LIFO order, got %v first", got)
	}
}

func TestDispatcher_PopFallsBackToPolicyWhenLocalEmpty(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)
	rt.AddWorker(w)

	task := NewTask(noopCodelet())
	if err := rt.Dispatcher.Push(task); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := rt.Dispatcher.Pop(w)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got != task {
		t.Fatalf("expected the policy-queued task back, got %v", got)
	}
}

func TestDispatcher_PinnedTaskNeverReachesPolicy(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)
	rt.AddWorker(w)

	task := NewTask(noopCodelet())
	task.WorkerID = 0
	if err := rt.Dispatcher.Push(task); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if got := w.popLocal(); got != task {
		t.Fatalf("expected the pinned task on the worker's local queue, got %v", got)
	}
	if got := rt.Policy.PopTask(w); got != nil {
		t.Fatalf("expected the policy queue to stay empty for a pinned task, got %v", got)
	}
}

func TestDispatcher_PostExecHookSkipsPinnedTasks(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	pinned := NewTask(noopCodelet())
	pinned.WorkerID = 0
	// Must not panic even though eager's post-exec hook is absent; PostExecHook
	// itself returns immediately for pinned tasks before any type assertion
	// would matter.
	rt.Dispatcher.PostExecHook(pinned)
}

func TestRuntime_RunEndToEnd_ControlTaskFiresCallback(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)
	rt.AddWorker(w)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Run(ctx)
	}()

	done := make(chan struct{})
	builder := NewTaskBuilder(nil).Callback(func(*Task) { close(done) })
	rt.TaskSubmit(builder.Build())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("control task callback never fired")
	}

	cancel()
	if err := rt.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wg.Wait()
}

func TestRuntime_RunEndToEnd_DiamondGraphCompletesInOrder(t *testing.T) {
	rt, err := NewRuntime(WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := NewWorker(0, DeviceCPU, 0, rt)
	rt.AddWorker(w)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Run(ctx)
	}()
	defer func() {
		cancel()
		rt.Shutdown()
		wg.Wait()
	}()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(*Task) {
		return func(*Task) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	h := NewDataHandle(-1)
	a := NewTaskBuilder(noopCodelet()).RW(h).Callback(record("A")).Build()
	b := NewTaskBuilder(noopCodelet()).RW(h).Callback(record("B")).DependsOn(a).Build()
	c := NewTaskBuilder(noopCodelet()).RW(h).Callback(record("C")).DependsOn(a).Build()
	done := make(chan struct{})
	d := NewTaskBuilder(nil).Callback(func(*Task) { close(done) }).DependsOn(b, c).Build()

	rt.TaskSubmit(a)
	rt.TaskSubmit(b)
	rt.TaskSubmit(c)
	rt.TaskSubmit(d)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("diamond graph never converged")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "A" {
		t.Fatalf("expected A first then B,C in either order, got %v", order)
	}
}
