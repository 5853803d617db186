package runtime

// MemoryCoherencyEngine is the external collaborator that owns a handle's
// coherency state across memory nodes: fetch/prefetch/acquire/release are
// consumed, not implemented, by this runtime.
//
// A nil MemoryCoherencyEngine is valid: prefetch and per-node servicing
// become no-ops, which is sufficient for single-node, single-memory-node
// deployments and for tests that only exercise scheduling/dependency logic.
type MemoryCoherencyEngine interface {
	// Prefetch asynchronously pre-stages h onto memoryNodeID so a task
	// placed there finds its input already resident.
	Prefetch(h *DataHandle, memoryNodeID int) error

	// ServicePending lets the memory node progress any outstanding
	// fetch/prefetch/acquire/release requests; called once per worker
	// dispatch-loop iteration.
	ServicePending(memoryNodeID int)
}
