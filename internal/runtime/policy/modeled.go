package policy

import "github.com/starpugo/runtime/internal/runtime"

// modeled backs every policy whose name advertises a
// performance-model-driven placement heuristic (dm, dmda, dmda-ready,
// dmda-sorted, heft, parallel-heft, pgreedy). Calibration and per-codelet
// performance models are an explicit Non-goal, so each of these registers
// under its real name and satisfies runtime.Policy with the same
// single-queue, first-idle-eligible-worker behavior as eager; what
// distinguishes them in StarPU itself — the cost model consulted to choose
// a worker ahead of time — has nothing to attach to here.
type modeled struct {
	name string
	desc string

	deque *runtime.PriorityDeque
}

func registerModeled(name, desc string) {
	runtime.RegisterPolicy(name, desc, func() runtime.Policy {
		return &modeled{name: name, desc: desc}
	})
}

func init() {
	registerModeled("dm", "model-driven placement (no cost model wired: falls back to eager)")
	registerModeled("dmda", "model-driven placement with data-transfer cost (no cost model wired: falls back to eager)")
	registerModeled("dmda-ready", "model-driven placement favoring data-ready tasks (no cost model wired: falls back to eager)")
	registerModeled("dmda-sorted", "model-driven placement with sorted task queues (no cost model wired: falls back to eager)")
	registerModeled("heft", "heterogeneous earliest-finish-time placement (no cost model wired: falls back to eager)")
	registerModeled("parallel-heft", "HEFT variant for parallel/combined workers (no cost model wired: falls back to eager)")
	registerModeled("pgreedy", "parallel greedy placement (no cost model wired: falls back to eager)")
}

func (p *modeled) Name() string        { return p.name }
func (p *modeled) Description() string { return p.desc }

func (p *modeled) Init(rt *runtime.Runtime) error {
	p.deque = runtime.NewPriorityDeque()
	return nil
}

func (p *modeled) PushTask(t *runtime.Task) error {
	p.deque.Push(t)
	return nil
}

func (p *modeled) PopTask(w *runtime.Worker) *runtime.Task {
	return p.deque.PopForWorker(w)
}

func (p *modeled) PopEveryTask() []*runtime.Task {
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
