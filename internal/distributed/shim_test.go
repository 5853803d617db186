package distributed

import (
	"context"
	"sync"
	"testing"

	"github.com/starpugo/runtime/internal/runtime"
	_ "github.com/starpugo/runtime/internal/runtime/policy"
)

// fakeComm is an in-process Comm: it records every send (handle and
// destination) and accepts every receive without moving any data, letting
// tests exercise the protocol without real transport.
type fakeComm struct {
	rank int

	mu      sync.Mutex
	sent    []sentMsg
	failSend, failRecv bool
}

type sentMsg struct {
	handle *runtime.DataHandle
	dest   int
}

func newFakeComm(rank int) *fakeComm { return &fakeComm{rank: rank} }

func (c *fakeComm) Rank() int { return c.rank }

func (c *fakeComm) IsendDetached(ctx context.Context, h *runtime.DataHandle, dest int) error {
	if c.failSend {
		return runtime.ErrTransient
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentMsg{handle: h, dest: dest})
	c.mu.Unlock()
	return nil
}

func (c *fakeComm) IrecvDetached(ctx context.Context, h *runtime.DataHandle, src int) error {
	if c.failRecv {
		return runtime.ErrTransient
	}
	return nil
}

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.NewRuntime(runtime.WithPolicyName("eager"))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	w := runtime.NewWorker(0, runtime.DeviceCPU, 0, rt)
	rt.AddWorker(w)
	return rt
}

func noopCodelet() *runtime.Codelet {
	return &runtime.Codelet{
		Name: "noop",
		Kernels: map[runtime.DeviceKind]runtime.KernelFunc{
			runtime.DeviceCPU: func(ctx context.Context, t *runtime.Task, w *runtime.Worker) error { return nil },
		},
	}
}

func TestShim_OwnerComputes_ExecutesOnOwningRank(t *testing.T) {
	rt := newTestRuntime(t)
	comm := newFakeComm(0)
	shim := NewShim(comm, rt)

	hOut := runtime.NewDataHandle(0) // owned by this rank
	hIn := runtime.NewDataHandle(1)  // owned by the peer rank

	task := runtime.NewTaskBuilder(noopCodelet()).R(hIn).W(hOut).Build()

	if err := shim.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if task.Status() == runtime.StatusInit {
		t.Fatal("expected the owning rank to submit the task locally")
	}
}

func TestShim_OwnerComputes_RemoteRankDoesNotExecute(t *testing.T) {
	rt := newTestRuntime(t)
	comm := newFakeComm(1)
	shim := NewShim(comm, rt)

	hOut := runtime.NewDataHandle(0) // owned by rank 0, not us
	hIn := runtime.NewDataHandle(1)  // owned by us

	task := runtime.NewTaskBuilder(noopCodelet()).R(hIn).W(hOut).Build()

	if err := shim.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if task.Status() != runtime.StatusInit {
		t.Fatalf("expected rank 1 to leave the task unsubmitted, got status %v", task.Status())
	}

	comm.mu.Lock()
	defer comm.mu.Unlock()
	if len(comm.sent) != 1 || comm.sent[0].handle != hIn || comm.sent[0].dest != 0 {
		t.Fatalf("expected a send of hIn to rank 0, got %+v", comm.sent)
	}
}

func TestShim_ConflictingOwnershipIsProtocolError(t *testing.T) {
	runtime.PanicOnInvariantViolation = false
	t.Cleanup(func() { runtime.PanicOnInvariantViolation = true })

	rt := newTestRuntime(t)
	comm := newFakeComm(0)
	shim := NewShim(comm, rt)

	mine := runtime.NewDataHandle(0)
	theirs := runtime.NewDataHandle(1)

	task := runtime.NewTaskBuilder(noopCodelet()).W(mine).RW(theirs).Build()

	err := shim.Submit(context.Background(), task)
	if err == nil {
		t.Fatal("expected a protocol error for conflicting write ownership")
	}
}

func TestShim_TransferFailurePropagates(t *testing.T) {
	rt := newTestRuntime(t)
	comm := newFakeComm(1)
	comm.failSend = true
	shim := NewShim(comm, rt)

	hOut := runtime.NewDataHandle(0)
	hIn := runtime.NewDataHandle(1)
	task := runtime.NewTaskBuilder(noopCodelet()).R(hIn).W(hOut).Build()

	if err := shim.Submit(context.Background(), task); err == nil {
		t.Fatal("expected the send failure to propagate from Submit")
	}
}
