package policy

import "github.com/starpugo/runtime/internal/runtime"

// prio is a strict priority-ordered policy: a single priority deque, and it
// additionally implements runtime.PrioPusher so callers can push a task
// under a priority that overrides the one recorded on the task itself.
type prio struct {
	deque *runtime.PriorityDeque
}

func init() {
	runtime.RegisterPolicy("prio", "strict priority-ordered single queue", func() runtime.Policy {
		return &prio{}
	})
}

func (p *prio) Name() string        { return "prio" }
func (p *prio) Description() string { return "strict priority-ordered single queue" }

func (p *prio) Init(rt *runtime.Runtime) error {
	p.deque = runtime.NewPriorityDeque()
	return nil
}

func (p *prio) PushTask(t *runtime.Task) error {
	p.deque.Push(t)
	return nil
}

// PushPrioTask pushes t into the bucket for override rather than t.Priority.
// The bucket assignment only consults t.Priority at push time, so the swap
// is restored immediately and t's identity (needed by the dependency engine
// to mark it complete) is preserved.
func (p *prio) PushPrioTask(t *runtime.Task, override int) error {
	original := t.Priority
	t.Priority = override
	p.deque.Push(t)
	t.Priority = original
	return nil
}

func (p *prio) PopTask(w *runtime.Worker) *runtime.Task {
	return p.deque.PopForWorker(w)
}

func (p *prio) PopEveryTask() []*runtime.Task {
	var out []*runtime.Task
	for {
		t := p.deque.Pop(nil)
		if t == nil {
			break
		}
		out = append(out, t)
	}
	return out
}
