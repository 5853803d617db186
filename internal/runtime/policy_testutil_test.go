package runtime

// testEagerPolicy mirrors internal/runtime/policy's eager policy: one
// shared priority queue, any eligible idle worker may take the head task.
// This package's own tests cannot blank-import internal/runtime/policy
// (that package imports internal/runtime, so doing so here would be a
// cycle), so the default policy is registered directly against the
// registry under its real name for the test binary only.
type testEagerPolicy struct {
	deque *PriorityDeque
}

func init() {
	RegisterPolicy(DefaultPolicyName, "single shared priority queue (test double)", func() Policy {
		return &testEagerPolicy{}
	})
}

func (p *testEagerPolicy) Name() string        { return DefaultPolicyName }
func (p *testEagerPolicy) Description() string { return "single shared priority queue (test double)" }

func (p *testEagerPolicy) Init(rt *Runtime) error {
	p.deque = NewPriorityDeque()
	return nil
}

func (p *testEagerPolicy) PushTask(t *Task) error {
	p.deque.Push(t)
	return nil
}

func (p *testEagerPolicy) PopTask(w *Worker) *Task {
	return p.deque.PopForWorker(w)
}
