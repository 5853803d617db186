package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/starpugo/runtime/internal/trace"
)

// runtimeConfig accumulates Option values before NewRuntime builds the
// process-wide runtime handle.
type runtimeConfig struct {
	policy     Policy
	policyName string
	prefetch   *bool
	helpWriter io.Writer
	profiling  bool
	memory     MemoryCoherencyEngine
	log        zerolog.Logger
	trace      trace.Sink
}

// Option configures a Runtime at construction time.
type Option func(*runtimeConfig)

// WithPolicy installs a pre-constructed policy, bypassing name resolution
// entirely.
func WithPolicy(p Policy) Option { return func(c *runtimeConfig) { c.policy = p } }

// WithPolicyName resolves a policy by name, taking priority over STARPU_SCHED.
func WithPolicyName(name string) Option { return func(c *runtimeConfig) { c.policyName = name } }

// WithPrefetch overrides STARPU_PREFETCH.
func WithPrefetch(enabled bool) Option { return func(c *runtimeConfig) { c.prefetch = &enabled } }

// WithHelpWriter sets where STARPU_SCHED=help's listing is written (default os.Stderr).
func WithHelpWriter(w io.Writer) Option { return func(c *runtimeConfig) { c.helpWriter = w } }

// WithProfiling enables push/pop timestamp recording.
func WithProfiling(enabled bool) Option { return func(c *runtimeConfig) { c.profiling = enabled } }

// WithMemoryCoherencyEngine wires the external data-coherency collaborator.
func WithMemoryCoherencyEngine(m MemoryCoherencyEngine) Option {
	return func(c *runtimeConfig) { c.memory = m }
}

// WithLogger overrides the default zerolog logger.
func WithLogger(l zerolog.Logger) Option { return func(c *runtimeConfig) { c.log = l } }

// WithTraceSink attaches a deterministic task-lifecycle recorder (the
// runtime never blocks on it: trace.SafeRecord swallows panics and a nil
// sink is always a valid no-op).
func WithTraceSink(s trace.Sink) Option { return func(c *runtimeConfig) { c.trace = s } }

// Runtime is the process-wide state: the active
// policy, the prefetch/calibration flags, set in init and cleared in deinit,
// with no re-init while workers are running.
type Runtime struct {
	Log        zerolog.Logger
	Policy     Policy
	Dispatcher *Dispatcher
	DepEngine  *DependencyEngine
	Prefetch   bool
	Profiling  bool
	Calibrate  bool
	Memory     MemoryCoherencyEngine
	Trace      trace.Sink

	mu       sync.RWMutex
	workers  []*Worker
	combined map[int]*CombinedWorker
	running  atomic.Bool
}

// NewRuntime builds a Runtime: resolves the scheduling policy, reads STARPU_PREFETCH/STARPU_CALIBRATE unless overridden, and
// wires the dependency engine to dispatch through the Dispatcher.
func NewRuntime(opts ...Option) (*Runtime, error) {
	cfg := runtimeConfig{
		helpWriter: os.Stderr,
		log:        zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	prefetch := prefetchFromEnv()
	if cfg.prefetch != nil {
		prefetch = *cfg.prefetch
	}

	rt := &Runtime{
		Log:       cfg.log,
		Prefetch:  prefetch,
		Profiling: cfg.profiling,
		Calibrate: calibrateFromEnv(),
		Memory:    cfg.memory,
		Trace:     cfg.trace,
		combined:  make(map[int]*CombinedWorker),
	}
	rt.running.Store(true)

	policy := resolvePolicy(cfg.policy, cfg.policyName, cfg.helpWriter)
	if err := policy.Init(rt); err != nil {
		return nil, fmt.Errorf("initializing scheduling policy %q: %w", policy.Name(), err)
	}
	rt.Policy = policy
	rt.Dispatcher = newDispatcher(rt)
	rt.DepEngine = NewDependencyEngine(rt.Log, rt.Trace, rt.Dispatcher.Push)
	return rt, nil
}

// AddWorker registers a basic worker. Basic workers occupy ids
// [0, N_basic); combined workers use ids >= N_basic.
func (rt *Runtime) AddWorker(w *Worker) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.workers = append(rt.workers, w)
}

// AddCombinedWorker registers a combined worker. Its id must be >= the
// number of basic workers already registered.
func (rt *Runtime) AddCombinedWorker(cw *CombinedWorker) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.combined[cw.ID] = cw
}

// Workers returns every basic worker (a defensive copy).
func (rt *Runtime) Workers() []*Worker {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Worker, len(rt.workers))
	copy(out, rt.workers)
	return out
}

func (rt *Runtime) isRunning() bool { return rt.running.Load() }

// Run launches every basic worker's dispatch loop and blocks until ctx is
// done or Shutdown is called.
func (rt *Runtime) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range rt.Workers() {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Loop(ctx)
		}(w)
	}
	wg.Wait()
}

// Shutdown stops the machine: workers blocked in cond_wait are woken so
// their loops observe isRunning() == false and return, and the policy's
// optional Deinit runs.
func (rt *Runtime) Shutdown() error {
	rt.running.Store(false)
	for _, w := range rt.Workers() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	}
	if d, ok := rt.Policy.(Deiniter); ok {
		return d.Deinit()
	}
	return nil
}

// resolveWorker resolves a worker id to either a basic Worker or a
// CombinedWorker, plus the memory node to prefetch onto.
func (rt *Runtime) resolveWorker(id int) (*Worker, *CombinedWorker, int, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if id >= 0 && id < len(rt.workers) {
		w := rt.workers[id]
		return w, nil, w.MemoryNodeID, true
	}
	if cw, ok := rt.combined[id]; ok {
		return nil, cw, cw.MemoryNodeID, true
	}
	return nil, nil, 0, false
}

func (rt *Runtime) workerByID(id int) *Worker {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if id >= 0 && id < len(rt.workers) {
		return rt.workers[id]
	}
	return nil
}

// serviceNodeDataRequests lets the memory node progress outstanding
// requests; a no-op when no MemoryCoherencyEngine is wired.
func (rt *Runtime) serviceNodeDataRequests(memoryNodeID int) {
	if rt.Memory != nil {
		rt.Memory.ServicePending(memoryNodeID)
	}
}

// prefetchHandle asks the memory node to pre-stage h onto memoryNodeID;
// errors are logged, not propagated, mirroring the fire-and-forget nature
// of asynchronous prefetch.
func (rt *Runtime) prefetchHandle(h *DataHandle, memoryNodeID int) {
	if rt.Memory == nil {
		return
	}
	if err := rt.Memory.Prefetch(h, memoryNodeID); err != nil {
		rt.Log.Debug().Err(err).Int("memory_node", memoryNodeID).Msg("prefetch failed")
	}
}

// TaskSubmit is the user-facing task_submit operation.
func (rt *Runtime) TaskSubmit(t *Task) {
	rt.DepEngine.Submit(t)
}

// DeclareDepsArray is task_declare_deps_array: it registers
// explicit predecessors; call it before TaskSubmit.
func (rt *Runtime) DeclareDepsArray(t *Task, preds ...*Task) {
	t.ExplicitDeps = append(t.ExplicitDeps, preds...)
}

// DataAcquire is data_acquire: it blocks the caller until the
// handle's FIFO grants the request.
func (rt *Runtime) DataAcquire(ctx context.Context, h *DataHandle, mode AccessMode) (*AppAccess, error) {
	ready := make(chan struct{})
	access := rt.DepEngine.AcquireFromApp(h, mode, func(any) { close(ready) }, nil)
	select {
	case <-ready:
		return access, nil
	case <-ctx.Done():
		return access, ctx.Err()
	}
}

// DataRelease is data_release.
func (rt *Runtime) DataRelease(access *AppAccess) {
	rt.DepEngine.ReleaseFromApp(access)
}

// PushLocalTask is push_local_task.
func (rt *Runtime) PushLocalTask(workerID int, t *Task, back bool) error {
	w := rt.workerByID(workerID)
	if w == nil {
		return ErrNoDevice
	}
	w.PushLocal(t, back)
	return nil
}
