package runtime

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Error kinds.
var (
	// ErrNoDevice means no worker can execute a codelet; surfaced to the
	// caller, not fatal, and is what test harnesses treat as a skip.
	ErrNoDevice = errors.New("starpugo: no device can execute this codelet")

	// ErrPolicyRejected means the scheduling policy's PushTask refused the
	// task; retrying is the caller's responsibility.
	ErrPolicyRejected = errors.New("starpugo: scheduling policy rejected task")

	// ErrNullHandleOnWrite means a task bound W on a nil handle; logged and
	// the task is skipped rather than executed.
	ErrNullHandleOnWrite = errors.New("starpugo: task has a W-bound nil handle")

	// ErrTransient marks a failure the caller may retry as-is: a send/recv
	// that timed out, a worker momentarily unreachable. Distinct from
	// InvariantViolationError, which marks a defect rather than a condition
	// that can clear on its own.
	ErrTransient = errors.New("starpugo: transient failure, retry may succeed")
)

// InvariantViolationError marks a defect in the caller: a conflicting
// owner-computes inference, a non-empty priority deque at destroy time, or a
// double-execute. These are logged and abort the process.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("starpugo: invariant violated: %s", e.Msg)
}

// PanicOnInvariantViolation gates whether ReportInvariantViolation aborts
// the process after logging, mirroring STARPU_ASSERT's abort-on-violation
// behavior. Default true; tests that need to observe an
// InvariantViolationError value rather than crash the test binary set this
// to false for the duration of the test.
var PanicOnInvariantViolation = true

// ReportInvariantViolation logs err and, unless PanicOnInvariantViolation
// has been disabled, aborts the process. Every producer of an
// InvariantViolationError (invariantViolated here, the distributed shim's
// protocol error) routes through this one hook.
func ReportInvariantViolation(err error) error {
	log.Error().Err(err).Msg("invariant violated")
	if PanicOnInvariantViolation {
		log.Fatal().Err(err).Msg("aborting: invariant violated")
	}
	return err
}

func invariantViolated(format string, args ...any) error {
	return ReportInvariantViolation(&InvariantViolationError{Msg: fmt.Sprintf(format, args...)})
}
