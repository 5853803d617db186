package runtime

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// accessRequest is one entry in a handle's FIFO.
//
// task is nil for application-initiated acquires (attempt_to_submit_data_request_from_apps);
// callback/arg are set only in that case.
type accessRequest struct {
	task     *Task
	mode     AccessMode
	callback func(arg any)
	arg      any
}

// DataHandle is the opaque identity tracked by the dependency engine.
//
// Coherency state across memory nodes, fetch/prefetch/acquire/release are
// delegated to an external memory-node collaborator; DataHandle here only owns the FIFO that orders accesses.
type DataHandle struct {
	ID        uuid.UUID
	ownerRank int // -1 means replicated/unknown

	// SequentialConsistency, when false, makes submissions on this handle skip
	// the FIFO entirely.
	SequentialConsistency bool

	mu    sync.Mutex
	queue *list.List // of *accessRequest, arrival order
}

// NewDataHandle creates a handle owned by ownerRank (-1 for replicated/unknown,
// local-only use). Sequential consistency defaults to true.
func NewDataHandle(ownerRank int) *DataHandle {
	return &DataHandle{
		ID:                    uuid.New(),
		ownerRank:             ownerRank,
		SequentialConsistency: true,
		queue:                 list.New(),
	}
}

// OwnerRank returns the handle's owning rank, or -1 if replicated/unknown.
func (h *DataHandle) OwnerRank() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ownerRank
}

// SetOwnerRank updates ownership (used by the distributed shim after a transfer).
func (h *DataHandle) SetOwnerRank(rank int) {
	h.mu.Lock()
	h.ownerRank = rank
	h.mu.Unlock()
}

// enqueue appends a request to the FIFO and returns its list element so the
// caller can later remove exactly this entry.
func (h *DataHandle) enqueue(req *accessRequest) *list.Element {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.PushBack(req)
}

// granted reports whether the request at el is currently part of the
// grantable prefix: read-coalescing lets a run of consecutive R requests at
// the FIFO head proceed concurrently; a W or RW request only proceeds once
// it is the sole head.
func (h *DataHandle) granted(el *list.Element) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grantedLocked(el)
}

func (h *DataHandle) grantedLocked(el *list.Element) bool {
	front := h.queue.Front()
	if front == nil {
		return false
	}
	frontReq := front.Value.(*accessRequest)
	if frontReq.mode != AccessR {
		return front == el
	}
	// Walk the leading run of R requests; el is granted iff it is in that run.
	for e := front; e != nil; e = e.Next() {
		req := e.Value.(*accessRequest)
		if req.mode != AccessR {
			return false
		}
		if e == el {
			return true
		}
	}
	return false
}

// remove pops el from the FIFO and returns the requests that became newly
// grantable as a result (the caller re-evaluates each for promotion).
func (h *DataHandle) remove(el *list.Element) []*accessRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue.Remove(el)
	return h.newlyGrantedLocked()
}

// newlyGrantedLocked returns every request currently in the grantable prefix.
// Callers filter out requests they already know were granted previously;
// promotion is idempotent so re-attempting an already-running request is safe.
func (h *DataHandle) newlyGrantedLocked() []*accessRequest {
	front := h.queue.Front()
	if front == nil {
		return nil
	}
	var out []*accessRequest
	frontReq := front.Value.(*accessRequest)
	if frontReq.mode != AccessR {
		return []*accessRequest{frontReq}
	}
	for e := front; e != nil; e = e.Next() {
		req := e.Value.(*accessRequest)
		if req.mode != AccessR {
			break
		}
		out = append(out, req)
	}
	return out
}
