package policy

import (
	"sync"

	"github.com/starpugo/runtime/internal/runtime"
)

// ws is the work-stealing policy: each worker owns a priority deque served
// highest priority first (FIFO within a priority), and an idle worker with
// an empty deque steals the
// lowest-priority ready task from another worker's deque before falling
// back to returning nil.
type ws struct {
	rt *runtime.Runtime

	mu     sync.RWMutex
	queues map[int]*runtime.PriorityDeque
}

func init() {
	runtime.RegisterPolicy("ws", "per-worker queues with work stealing", func() runtime.Policy {
		return &ws{queues: make(map[int]*runtime.PriorityDeque)}
	})
}

func (p *ws) Name() string        { return "ws" }
func (p *ws) Description() string { return "per-worker queues with work stealing" }

func (p *ws) Init(rt *runtime.Runtime) error {
	p.rt = rt
	for _, w := range rt.Workers() {
		p.queues[w.ID] = runtime.NewPriorityDeque()
	}
	return nil
}

func (p *ws) queueFor(id int) *runtime.PriorityDeque {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[id]
	if !ok {
		q = runtime.NewPriorityDeque()
		p.queues[id] = q
	}
	return q
}

// PushTask queues t on the deque of the first registered worker that can
// execute it. It does not look at which worker, if any, is submitting t, so
// tasks pushed from a worker thread are not kept on that worker's deque.
func (p *ws) PushTask(t *runtime.Task) error {
	for _, w := range p.rt.Workers() {
		if runtime.WorkerCanExecute(t.Codelet, w) {
			p.queueFor(w.ID).Push(t)
			return nil
		}
	}
	return runtime.ErrNoDevice
}

// PopTask first drains w's own deque, then steals the lowest-priority
// eligible task from another worker's deque.
func (p *ws) PopTask(w *runtime.Worker) *runtime.Task {
	if t := p.queueFor(w.ID).PopForWorker(w); t != nil {
		return t
	}

	p.mu.RLock()
	victims := make([]*runtime.PriorityDeque, 0, len(p.queues))
	for id, q := range p.queues {
		if id == w.ID {
			continue
		}
		victims = append(victims, q)
	}
	p.mu.RUnlock()

	for _, v := range victims {
		if t := v.DequeueForWorker(w); t != nil {
			return t
		}
	}
	return nil
}
