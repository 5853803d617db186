package policy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/starpugo/runtime/internal/runtime"
	_ "github.com/starpugo/runtime/internal/runtime/policy"
)

func noopCodelet() *runtime.Codelet {
	return &runtime.Codelet{
		Name: "noop",
		Kernels: map[runtime.DeviceKind]runtime.KernelFunc{
			runtime.DeviceCPU: func(ctx context.Context, t *runtime.Task, w *runtime.Worker) error { return nil },
		},
	}
}

// PolicySuite runs the same "every submitted task eventually completes"
// scenario against every registered policy, the way an integration test
// exercises several interchangeable strategies through one shared harness.
type PolicySuite struct {
	suite.Suite
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) TestEveryRegisteredPolicyDrainsASmallBatch() {
	for _, info := range runtime.ListPolicies() {
		name := info.Name
		s.Run(name, func() {
			rt, err := runtime.NewRuntime(runtime.WithPolicyName(name))
			s.Require().NoError(err)

			w := runtime.NewWorker(0, runtime.DeviceCPU, 0, rt)
			rt.AddWorker(w)

			ctx, cancel := context.WithCancel(context.Background())
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				rt.Run(ctx)
			}()

			const n = 5
			var mu sync.Mutex
			completed := 0
			done := make(chan struct{})

			for i := 0; i < n; i++ {
				task := runtime.NewTaskBuilder(noopCodelet()).Callback(func(*runtime.Task) {
					mu.Lock()
					completed++
					if completed == n {
						close(done)
					}
					mu.Unlock()
				}).Build()
				rt.TaskSubmit(task)
			}

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				s.Fail("timed out waiting for tasks to drain", "policy %q", name)
			}

			cancel()
			require.NoError(s.T(), rt.Shutdown())
			wg.Wait()
		})
	}
}

func (s *PolicySuite) TestPrioPolicyServesHighestPriorityFirst() {
	rt, err := runtime.NewRuntime(runtime.WithPolicyName("prio"))
	s.Require().NoError(err)

	w := runtime.NewWorker(0, runtime.DeviceCPU, 0, rt)
	rt.AddWorker(w)

	low := runtime.NewTaskBuilder(noopCodelet()).Priority(0).Build()
	high := runtime.NewTaskBuilder(noopCodelet()).Priority(10).Build()

	s.Require().NoError(rt.Policy.PushTask(low))
	s.Require().NoError(rt.Policy.PushTask(high))

	got := rt.Policy.PopTask(w)
	s.Equal(high, got, "expected the higher-priority task to be served first")
}

func (s *PolicySuite) TestWorkStealingPolicyServesFromAnotherWorkersQueue() {
	rt, err := runtime.NewRuntime(runtime.WithPolicyName("ws"))
	s.Require().NoError(err)

	busy := runtime.NewWorker(0, runtime.DeviceCPU, 0, rt)
	idle := runtime.NewWorker(1, runtime.DeviceCPU, 0, rt)
	rt.AddWorker(busy)
	rt.AddWorker(idle)

	task := runtime.NewTaskBuilder(noopCodelet()).Build()
	s.Require().NoError(rt.Policy.PushTask(task))

	got := rt.Policy.PopTask(idle)
	s.Equal(task, got, "expected the idle worker to steal the other worker's queued task")
}
