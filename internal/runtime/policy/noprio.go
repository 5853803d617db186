package policy

import "github.com/starpugo/runtime/internal/runtime"

// noPrio is the priority-blind counterpart of prio: every task is queued at
// priority 0 regardless of what the application requested, giving strict
// submission-order FIFO behavior.
type noPrio struct {
	deque *runtime.PriorityDeque
}

func init() {
	runtime.RegisterPolicy("no-prio", "single FIFO queue, priorities ignored", func() runtime.Policy {
		return &noPrio{}
	})
}

func (p *noPrio) Name() string        { return "no-prio" }
func (p *noPrio) Description() string { return "single FIFO queue, priorities ignored" }

func (p *noPrio) Init(rt *runtime.Runtime) error {
	p.deque = runtime.NewPriorityDeque()
	return nil
}

func (p *noPrio) PushTask(t *runtime.Task) error {
	original := t.Priority
	t.Priority = 0
	p.deque.Push(t)
	t.Priority = original
	return nil
}

func (p *noPrio) PopTask(w *runtime.Worker) *runtime.Task {
	return p.deque.PopForWorker(w)
}
