package policy

import (
	"math/rand"

	"github.com/starpugo/runtime/internal/runtime"
)

// random distributes each task to one worker's local queue chosen uniformly
// at random among the workers able to execute its codelet, rather than
// keeping a shared queue.
type random struct {
	rt *runtime.Runtime
}

func init() {
	runtime.RegisterPolicy("random", "uniformly random worker assignment at push time", func() runtime.Policy {
		return &random{}
	})
}

func (p *random) Name() string        { return "random" }
func (p *random) Description() string { return "uniformly random worker assignment at push time" }

func (p *random) Init(rt *runtime.Runtime) error {
	p.rt = rt
	return nil
}

func (p *random) PushTask(t *runtime.Task) error {
	candidates := p.eligibleWorkers(t)
	if len(candidates) == 0 {
		return runtime.ErrNoDevice
	}
	w := candidates[rand.Intn(len(candidates))]
	w.PushLocal(t, true)
	return nil
}

func (p *random) eligibleWorkers(t *runtime.Task) []*runtime.Worker {
	var out []*runtime.Worker
	for _, w := range p.rt.Workers() {
		if runtime.WorkerCanExecute(t.Codelet, w) {
			out = append(out, w)
		}
	}
	return out
}

// PopTask never serves a task of its own: random hands every task straight
// to a worker's local queue at push time, so the worker's own local pop
// (consulted before the policy) always satisfies it first.
func (p *random) PopTask(w *runtime.Worker) *runtime.Task { return nil }
