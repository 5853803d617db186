// Package distributed implements the owner-computes dispatch shim: before
// a task is submitted locally on a rank, inspect its handles, decide
// whether this rank executes it, and emit the matching point-to-point
// sends/receives.
package distributed

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/starpugo/runtime/internal/runtime"
)

// Comm is the point-to-point transport the shim drives. A real binding
// would wrap MPI or a gRPC stream; tests use an in-process fake.
type Comm interface {
	// Rank reports this process's rank.
	Rank() int
	// IsendDetached posts a non-blocking send of h's current contents to
	// dest and returns once the send has been initiated (not completed).
	IsendDetached(ctx context.Context, h *runtime.DataHandle, dest int) error
	// IrecvDetached posts a non-blocking receive of h's contents from src.
	IrecvDetached(ctx context.Context, h *runtime.DataHandle, src int) error
}

// doExecute is the three-valued result of scanning a task's W/RW handles.
type doExecute int

const (
	doExecuteUnknown doExecute = iota
	doExecuteNo
	doExecuteYes
)

// Shim decides owner-computes placement for one rank and forwards tasks it
// owns to a runtime.Runtime's Dispatcher.
type Shim struct {
	comm Comm
	rt   *runtime.Runtime
	log  zerolog.Logger

	// holders is the optional per-handle known-remote-holders cache. Nil
	// unless explicitly enabled; see DESIGN.md for why it defaults off.
	holders *lru.Cache[uuid.UUID, []int]
}

// Option configures a Shim.
type Option func(*Shim)

// WithRemoteHolderCache enables the optional known-remote-holders cache with
// the given capacity. Disabled by default.
func WithRemoteHolderCache(capacity int) Option {
	return func(s *Shim) {
		c, err := lru.New[uuid.UUID, []int](capacity)
		if err != nil {
			panic(fmt.Sprintf("distributed: invalid remote-holder cache capacity %d: %v", capacity, err))
		}
		s.holders = c
	}
}

// WithLogger overrides the shim's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Shim) { s.log = l }
}

// NewShim builds a Shim that dispatches owned tasks into rt.
func NewShim(comm Comm, rt *runtime.Runtime, opts ...Option) *Shim {
	s := &Shim{comm: comm, rt: rt, log: rt.Log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit classifies do_execute from t's W/RW handles, posts the matching
// sends/receives for its R/RW handles, and submits t locally iff this rank
// executes it.
func (s *Shim) Submit(ctx context.Context, t *runtime.Task) error {
	exec, dest, err := s.classify(t)
	if err != nil {
		return err
	}

	if err := s.transfer(ctx, t, exec, dest); err != nil {
		return err
	}

	if exec == doExecuteYes {
		s.rt.TaskSubmit(t)
	} else {
		s.log.Debug().Str("task", t.ID.String()).Int("dest", dest).Msg("task not owned, not submitted locally")
	}
	return nil
}

// classify scans t's W/RW handles to compute do_execute. Both a locally owned and a remotely owned W/RW handle on the
// same task is a protocol error.
func (s *Shim) classify(t *runtime.Task) (doExecute, int, error) {
	me := s.comm.Rank()
	result := doExecuteUnknown
	dest := -1

	for _, b := range t.Handles {
		if b.Mode != AccessW && b.Mode != AccessRW {
			continue
		}
		owner := b.Handle.OwnerRank()
		switch {
		case owner == me:
			if result == doExecuteNo {
				return 0, 0, protocolError(t, "has both a locally owned and a remotely owned write handle")
			}
			result = doExecuteYes
		case owner >= 0:
			if result == doExecuteYes {
				return 0, 0, protocolError(t, "has both a locally owned and a remotely owned write handle")
			}
			result = doExecuteNo
			dest = owner
		}
	}
	return result, dest, nil
}

// transfer posts the sends/receives implied by exec for t's R/RW handles
// concurrently, stopping at the first error.
func (s *Shim) transfer(ctx context.Context, t *runtime.Task, exec doExecute, dest int) error {
	me := s.comm.Rank()
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range t.Handles {
		if b.Mode != AccessR && b.Mode != AccessRW {
			continue
		}
		h := b.Handle
		owner := h.OwnerRank()

		switch {
		case exec == doExecuteYes && owner >= 0 && owner != me:
			if s.alreadyHeld(h, me) {
				continue
			}
			g.Go(func() error {
				if err := s.comm.IrecvDetached(gctx, h, owner); err != nil {
					return fmt.Errorf("distributed: receiving handle %s from rank %d: %w", h.ID, owner, err)
				}
				h.SetOwnerRank(me)
				s.remember(h, me)
				return nil
			})
		case exec == doExecuteNo && owner == me:
			g.Go(func() error {
				if err := s.comm.IsendDetached(gctx, h, dest); err != nil {
					return fmt.Errorf("distributed: sending handle %s to rank %d: %w", h.ID, dest, err)
				}
				s.remember(h, dest)
				return nil
			})
		}
	}

	return g.Wait()
}

// alreadyHeld consults the optional remote-holder cache to skip a
// redundant receive; always false when the cache is disabled.
func (s *Shim) alreadyHeld(h *runtime.DataHandle, rank int) bool {
	if s.holders == nil {
		return false
	}
	holders, ok := s.holders.Get(h.ID)
	if !ok {
		return false
	}
	for _, r := range holders {
		if r == rank {
			return true
		}
	}
	return false
}

// remember records rank as a known holder of h, when the cache is enabled.
func (s *Shim) remember(h *runtime.DataHandle, rank int) {
	if s.holders == nil {
		return
	}
	holders, _ := s.holders.Get(h.ID)
	for _, r := range holders {
		if r == rank {
			return
		}
	}
	s.holders.Add(h.ID, append(holders, rank))
}

// protocolError reports a conflicting owner-computes inference through
// runtime.ReportInvariantViolation, the same hook every in-package
// InvariantViolationError routes through, so a protocol error is logged and
// aborts the process exactly like any other invariant violation, unless
// runtime.PanicOnInvariantViolation has been disabled for the test.
func protocolError(t *runtime.Task, msg string) error {
	violation := &runtime.InvariantViolationError{Msg: fmt.Sprintf("distributed: task %s %s", t.ID, msg)}
	err := fmt.Errorf("%w: %w", violation, errProtocol)
	return runtime.ReportInvariantViolation(err)
}

// errProtocol marks a conflicting owner-computes inference: a task with
// both a locally owned and a remotely owned write handle.
var errProtocol = fmt.Errorf("distributed: conflicting owner-computes inference")

const (
	// AccessR, AccessW and AccessRW alias runtime.AccessR/W/RW so this file
	// reads without a package-qualified constant on every branch.
	AccessR  = runtime.AccessR
	AccessW  = runtime.AccessW
	AccessRW = runtime.AccessRW
)
