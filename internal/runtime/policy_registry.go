package runtime

import (
	"fmt"
	"io"
	"sync"
)

// Policy is the abstract scheduling-policy contract. A
// concrete policy need only implement this base set; the optional
// capabilities (PushPrioTask, PopEveryTask, PostExecHook, Deinit) are
// detected with type assertions, mirroring the vtable's optional function
// pointers.
type Policy interface {
	Name() string
	Description() string
	Init(rt *Runtime) error
	PushTask(t *Task) error
	// PopTask returns the next task for w, or nil if none is eligible. It is
	// called from w's own goroutine; no thread-local lookup is needed in Go
	// since w is passed explicitly.
	PopTask(w *Worker) *Task
}

// PrioPusher is the optional push_prio_task capability.
type PrioPusher interface {
	PushPrioTask(t *Task, priority int) error
}

// Flusher is the optional pop_every_task capability, used by flush
// semantics: it returns every currently queued task.
type Flusher interface {
	PopEveryTask() []*Task
}

// PostExecHooker is the optional post_exec_hook capability, used by
// policies that update per-worker calibration/load after a non-pinned task
// finishes.
type PostExecHooker interface {
	PostExecHook(t *Task)
}

// Deiniter is the optional deinit capability.
type Deiniter interface {
	Deinit() error
}

// DefaultPolicyName is used when no policy is named.
const DefaultPolicyName = "eager"

type policyCtor func() Policy

var (
	registryMu   sync.Mutex
	registry     = map[string]policyCtor{}
	descriptions = map[string]string{}
	regOrder     []string
)

// RegisterPolicy adds a named policy constructor to the process-wide
// registry. Concrete policies call this from an init() func, the way
// database/sql drivers register themselves.
func RegisterPolicy(name, description string, ctor policyCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; !exists {
		regOrder = append(regOrder, name)
	}
	registry[name] = ctor
	descriptions[name] = description
}

// PolicyInfo is one entry of the registry listing.
type PolicyInfo struct {
	Name        string
	Description string
}

// ListPolicies returns every registered policy in registration order.
func ListPolicies() []PolicyInfo {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]PolicyInfo, 0, len(regOrder))
	for _, name := range regOrder {
		out = append(out, PolicyInfo{Name: name, Description: descriptions[name]})
	}
	return out
}

// newPolicyByName constructs a fresh policy instance, or reports ok=false if
// name is not registered.
func newPolicyByName(name string) (Policy, bool) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// PrintPolicyHelp writes "name\tdescription" for every registered policy to
// w, matching STARPU_SCHED=help.
func PrintPolicyHelp(w io.Writer) {
	for _, info := range ListPolicies() {
		fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Description)
	}
}

// resolvePolicy implements the three-step selection:
// explicit pointer, then named lookup (config or STARPU_SCHED), then the
// eager default. Unknown names fall back to the default rather than error.
func resolvePolicy(explicit Policy, configName string, helpWriter io.Writer) Policy {
	if explicit != nil {
		return explicit
	}

	name := configName
	if name == "" {
		name = schedNameFromEnv()
	}
	if schedIsHelp(name) {
		PrintPolicyHelp(helpWriter)
		name = "" // STARPU_SCHED=help continues with normal (default) selection
	}
	if name == "" {
		name = DefaultPolicyName
	}

	p, ok := newPolicyByName(name)
	if !ok {
		p, ok = newPolicyByName(DefaultPolicyName)
		if !ok {
			// The eager policy must always be registered by the policy
			// subpackage's init(); if it is missing that is a wiring bug,
			// not a name the user could cause at runtime.
			panic("starpugo: default scheduling policy \"" + DefaultPolicyName + "\" is not registered")
		}
	}
	return p
}
