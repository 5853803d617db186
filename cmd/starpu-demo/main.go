// Command starpu-demo runs the diamond-graph resubmission scenario
// (taskA -> {B, C} -> D, a single RW handle, D's callback resubmitting the
// graph) against a real runtime and scheduling policy, and reports whether
// the shared counter landed on the expected total.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/starpugo/runtime/internal/runtime"
	_ "github.com/starpugo/runtime/internal/runtime/policy"
)

const (
	exitSuccess  = 0
	exitMismatch = 1
	exitTimeout  = 2
	exitInternal = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("starpu-demo", flag.ContinueOnError)
	sched := fs.String("sched", "", "scheduling policy name (defaults to STARPU_SCHED, then eager)")
	workers := fs.Int("workers", 4, "number of CPU workers")
	niter := fs.Int("niter", 64, "number of times to resubmit the diamond graph")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return exitInternal
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	rt, err := runtime.NewRuntime(runtime.WithPolicyName(*sched), runtime.WithLogger(log))
	if err != nil {
		log.Error().Err(err).Msg("constructing runtime")
		return exitInternal
	}
	for i := 0; i < *workers; i++ {
		rt.AddWorker(runtime.NewWorker(i, runtime.DeviceCPU, 0, rt))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Run(ctx)
	}()
	defer func() {
		cancel()
		if err := rt.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
		wg.Wait()
	}()

	var counter atomic.Int32
	handle := runtime.NewDataHandle(-1)
	done := make(chan struct{})

	var round func(iter int)
	round = func(iter int) {
		bump := func(*runtime.Task) { counter.Add(1) }

		a := runtime.NewTaskBuilder(incrementCodelet()).RW(handle).Callback(bump).Build()
		b := runtime.NewTaskBuilder(incrementCodelet()).RW(handle).Callback(bump).DependsOn(a).Build()
		c := runtime.NewTaskBuilder(incrementCodelet()).RW(handle).Callback(bump).DependsOn(a).Build()
		d := runtime.NewTaskBuilder(incrementCodelet()).RW(handle).DependsOn(b, c).Callback(func(*runtime.Task) {
			counter.Add(1)
			if iter+1 >= *niter {
				close(done)
				return
			}
			round(iter + 1)
		}).Build()

		rt.TaskSubmit(a)
		rt.TaskSubmit(b)
		rt.TaskSubmit(c)
		rt.TaskSubmit(d)
	}
	round(0)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Error().Msg("diamond graph resubmission loop timed out")
		return exitTimeout
	}

	want := int32(4 * *niter)
	got := counter.Load()
	fmt.Printf("counter=%d want=%d\n", got, want)
	if got != want {
		return exitMismatch
	}
	return exitSuccess
}

// incrementCodelet is a trivial CPU-only kernel: the dependency engine and
// dispatcher do all the interesting work here, not the kernel body.
func incrementCodelet() *runtime.Codelet {
	return &runtime.Codelet{
		Name: "increment",
		Kernels: map[runtime.DeviceKind]runtime.KernelFunc{
			runtime.DeviceCPU: func(ctx context.Context, t *runtime.Task, w *runtime.Worker) error { return nil },
		},
	}
}
