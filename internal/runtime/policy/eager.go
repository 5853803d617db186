// Package policy ships the scheduling-policy registry: ws, prio, no-prio,
// random, dm, dmda, dmda-ready, dmda-sorted, heft,
// eager (default), parallel-heft, pgreedy. Each type here satisfies
// runtime.Policy (push_task/pop_task) plus whichever optional capability
// (push_prio_task, pop_every_task, post_exec_hook, deinit) it needs; none of
// their internal placement heuristics are load-bearing for the core, which
// only relies on the contract in runtime.Policy.
package policy

import (
	"github.com/starpugo/runtime/internal/runtime"
)

// eager is the default policy: one shared, priority-ordered queue. Every
// idle worker capable of running a task's codelet may take it.
type eager struct {
	deque *runtime.PriorityDeque
}

func init() {
	runtime.RegisterPolicy("eager", "greedy FIFO scheduler, single shared priority queue", func() runtime.Policy {
		return &eager{}
	})
}

func (p *eager) Name() string        { return "eager" }
func (p *eager) Description() string { return "greedy FIFO scheduler, single shared priority queue" }

func (p *eager) Init(rt *runtime.Runtime) error {
	p.deque = runtime.NewPriorityDeque()
	return nil
}

func (p *eager) PushTask(t *runtime.Task) error {
	p.deque.Push(t)
	return nil
}

func (p *eager) PopTask(w *runtime.Worker) *runtime.Task {
	return p.deque.PopForWorker(w)
}

func (p *eager) PopEveryTask() []*runtime.Task {
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
