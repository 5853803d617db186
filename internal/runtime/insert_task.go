package runtime

// TaskBuilder accumulates typed handle bindings and produces an immutable
// Task from a sequence of chained calls instead of an untyped tag/value
// vararg stream. Its methods are the tags: R/W/RW/Scratch, Priority, Pin,
// Callback, CallbackArg, DependsOn.
type TaskBuilder struct {
	task *Task

	callbackSet    bool
	callbackArgSet bool
}

// NewTaskBuilder starts building a task around codelet. A nil codelet
// builds a control task.
func NewTaskBuilder(codelet *Codelet) *TaskBuilder {
	return &TaskBuilder{task: NewTask(codelet)}
}

func (b *TaskBuilder) bind(h *DataHandle, mode AccessMode) *TaskBuilder {
	b.task.Handles = append(b.task.Handles, HandleBinding{Handle: h, Mode: mode})
	return b
}

// R declares a read-only access (the R tag).
func (b *TaskBuilder) R(h *DataHandle) *TaskBuilder { return b.bind(h, AccessR) }

// W declares a write-only access (the W tag).
func (b *TaskBuilder) W(h *DataHandle) *TaskBuilder { return b.bind(h, AccessW) }

// RW declares a read-write access (the RW tag).
func (b *TaskBuilder) RW(h *DataHandle) *TaskBuilder { return b.bind(h, AccessRW) }

// Scratch declares a private, per-invocation scratch access (the SCRATCH
// tag); scratch bindings never participate in handle FIFO ordering.
func (b *TaskBuilder) Scratch(h *DataHandle) *TaskBuilder { return b.bind(h, AccessScratch) }

// Priority sets the task's priority (the PRIORITY tag).
func (b *TaskBuilder) Priority(p int) *TaskBuilder {
	b.task.Priority = p
	return b
}

// Pin pins the task to a specific worker (or combined worker) id, bypassing
// the scheduling policy.
func (b *TaskBuilder) Pin(workerID int) *TaskBuilder {
	b.task.WorkerID = workerID
	return b
}

// Callback sets the completion callback (the CALLBACK tag). Only the first
// call takes effect: STARPU_CALLBACK and STARPU_CALLBACK_ARG are accepted in
// either order in the original vararg stream, so "the first of each kind
// wins" rather than "the last write wins".
func (b *TaskBuilder) Callback(cb func(*Task)) *TaskBuilder {
	if !b.callbackSet {
		b.task.Callback = cb
		b.callbackSet = true
	}
	return b
}

// CallbackArg sets the callback argument (the CALLBACK_ARG tag); same
// first-wins rule as Callback.
func (b *TaskBuilder) CallbackArg(arg any) *TaskBuilder {
	if !b.callbackArgSet {
		b.task.CallbackArg = arg
		b.callbackArgSet = true
	}
	return b
}

// DependsOn registers explicit predecessors (task_declare_deps_array).
func (b *TaskBuilder) DependsOn(preds ...*Task) *TaskBuilder {
	b.task.ExplicitDeps = append(b.task.ExplicitDeps, preds...)
	return b
}

// Build returns the immutable task. After Build, only Status and the
// profiling timestamps may change.
func (b *TaskBuilder) Build() *Task { return b.task }
