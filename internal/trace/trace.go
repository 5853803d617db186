// Package trace records the deterministic, logical history of one run: the
// sequence of task lifecycle transitions the dependency engine, dispatcher,
// and worker loop produce. It deliberately excludes
// timestamps and pointer-derived values so two runs of the same task graph
// under the same scheduling policy can be compared byte-for-byte.
package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the canonical, deterministic record of a run's task
// lifecycle transitions.
//
// Invariants:
//   - Must capture RunID and an ordered list of events.
//   - Must contain logical transitions, not runtime-dependent details
//     (no timestamps, no pointers, nothing that varies with goroutine
//     scheduling).
//
// Canonical representation:
//   - Events are sorted via Canonicalize() using a fully-specified ordering.
//   - JSON serialization uses a custom marshaler to fix field order and omit
//     absent optional fields.
//
// Once Canonicalize() has run, treat the trace as immutable; it is
// observational only and never affects execution behavior.
type ExecutionTrace struct {
	RunID  string
	Events []TraceEvent
}

// TraceEventKind is the stable, canonical discriminator for TraceEvent.
//
// These kinds mirror the task lifecycle: Blocked -> Ready ->
// Running -> Done/Failed. The string values are part of the trace's
// canonical bytes; do not rename.
type TraceEventKind string

const (
	EventTaskBlocked  TraceEventKind = "TaskBlocked"
	EventTaskReady    TraceEventKind = "TaskReady"
	EventTaskRunning  TraceEventKind = "TaskRunning"
	EventTaskDone     TraceEventKind = "TaskDone"
	EventTaskFailed   TraceEventKind = "TaskFailed"
	EventTaskSkipped  TraceEventKind = "TaskSkipped"
)

// TraceEvent is a single logical transition.
//
// Determinism constraints:
//   - No timestamps, no error strings, no pointer-derived values.
//   - Nothing derived from map iteration order.
//
// Optional fields must be set deterministically and canonicalized:
//   - Empty slices are normalized to nil (omitted in JSON).
//   - PredecessorIDs are sorted.
type TraceEvent struct {
	Kind TraceEventKind

	// TaskID identifies the task this event refers to; required.
	TaskID string

	// Reason is a stable, logical reason code (e.g. "NullHandleOnWrite",
	// "PolicyRejected"). Only set for EventTaskFailed/EventTaskSkipped.
	Reason string

	// WorkerID is set for EventTaskRunning: which worker ran the task. For a
	// combined-worker task each alias records its own member worker's id.
	WorkerID int

	// PredecessorIDs records the explicit task-dependency edges that were
	// satisfied when this task became Ready.
	PredecessorIDs []string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.RunID == "" {
		return errors.New("runID is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.TaskID == "" {
			return fmt.Errorf("events[%d].taskId is required", i)
		}
	}
	return nil
}

// Canonicalize normalizes and sorts the trace into its canonical form.
//
// Ordering guarantee: ordering is independent of execution timing or
// goroutine scheduling. This produces a total order over events, with
// TaskID as the primary key.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].PredecessorIDs) == 0 {
			t.Events[i].PredecessorIDs = nil
			continue
		}
		ids := make([]string, len(t.Events[i].PredecessorIDs))
		copy(ids, t.Events[i].PredecessorIDs)
		sort.Strings(ids)
		t.Events[i].PredecessorIDs = ids
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.WorkerID != b.WorkerID {
			return a.WorkerID < b.WorkerID
		}
		return compareStringSlices(a.PredecessorIDs, b.PredecessorIDs)
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventTaskBlocked:
		return 10
	case EventTaskReady:
		return 20
	case EventTaskRunning:
		return 30
	case EventTaskDone:
		return 40
	case EventTaskFailed:
		return 50
	case EventTaskSkipped:
		return 60
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	la := len(a)
	lb := len(b)
	min := la
	if lb < min {
		min = lb
	}
	for i := 0; i < min; i++ {
		if a[i] == b[i] {
			continue
		}
		return a[i] < b[i]
	}
	return la < lb
}

// CanonicalJSON returns the canonical JSON encoding of the trace. It
// canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ExecutionTrace{RunID: t.RunID}
	copyTrace.Events = make([]TraceEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the deterministic trace hash (sha256 hex) of the canonical
// JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// ComputeTraceHash hashes an already-canonical encoding (e.g. from
// CanonicalJSON) with sha256, hex-encoded.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}

// MarshalJSON ensures canonical field ordering and omission rules.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	if t.RunID == "" {
		return nil, errors.New("runID is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"runId":`)
	rb, _ := json.Marshal(t.RunID)
	buf.Write(rb)
	buf.WriteByte(',')

	buf.WriteString(`"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON ensures canonical field ordering and omission of empty
// optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var ids []string
	if len(e.PredecessorIDs) > 0 {
		ids = make([]string, len(e.PredecessorIDs))
		copy(ids, e.PredecessorIDs)
		sort.Strings(ids)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	buf.WriteByte(',')
	buf.WriteString(`"taskId":`)
	tb, _ := json.Marshal(e.TaskID)
	buf.Write(tb)

	if e.Reason != "" {
		buf.WriteByte(',')
		buf.WriteString(`"reason":`)
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}

	if e.Kind == EventTaskRunning {
		buf.WriteByte(',')
		buf.WriteString(`"workerId":`)
		wb, _ := json.Marshal(e.WorkerID)
		buf.Write(wb)
	}

	if len(ids) > 0 {
		buf.WriteByte(',')
		buf.WriteString(`"predecessorIds":[`)
		for i := range ids {
			if i > 0 {
				buf.WriteByte(',')
			}
			ib, _ := json.Marshal(ids[i])
			buf.Write(ib)
		}
		buf.WriteByte(']')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
