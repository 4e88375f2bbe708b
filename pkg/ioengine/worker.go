package ioengine

import (
	"context"
	"sync"
	"time"
)

// WorkerState is one phase of a worker's lifecycle (SPEC_FULL §5).
type WorkerState uint8

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerDraining
	WorkerStopped
)

// Worker drives one Dispatcher to completion: a single goroutine owns
// one readiness source and every endpoint registered on it (spec §5).
// Its state machine (Idle -> Running -> Draining -> Stopped) is
// grounded on network.go's launchNodeProcess, a for/switch-on-state
// goroutine driven by NODE_INIT/NODE_RUNNING/NODE_RESETING/NODE_EXIT
// with a sync.WaitGroup marking completion.
type Worker struct {
	Dispatcher  *Dispatcher
	pollTimeout time.Duration

	// OnTick, if set, runs once per loop iteration before polling for
	// readiness (spec §5: "Timeouts ... are driven by a monotonic
	// wheel checked at each loop iteration"). Typically a Bridge's
	// ExpireTimeouts, adapted to this signature by the caller wiring
	// the engine together.
	OnTick func(now time.Time)

	state WorkerState
	wg    sync.WaitGroup
}

// NewWorker returns a worker driving d, polling its readiness source
// with the given timeout between liveness checks.
func NewWorker(d *Dispatcher, pollTimeout time.Duration) *Worker {
	return &Worker{Dispatcher: d, pollTimeout: pollTimeout}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() WorkerState { return w.state }

// Run drives the worker until ctx is cancelled, then drains (one final
// RunOnce to flush any already-staged writes) and stops. Run blocks
// until the worker reaches WorkerStopped; call it in its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	w.state = WorkerIdle
	for {
		switch w.state {
		case WorkerIdle:
			w.state = WorkerRunning

		case WorkerRunning:
			if w.OnTick != nil {
				w.OnTick(time.Now())
			}
			if err := w.Dispatcher.RunOnce(w.pollTimeout); err != nil {
				w.state = WorkerDraining
				continue
			}
			select {
			case <-ctx.Done():
				w.state = WorkerDraining
			default:
			}

		case WorkerDraining:
			w.Dispatcher.RunOnce(0)
			w.state = WorkerStopped

		case WorkerStopped:
			return
		}
	}
}

// Wait blocks until Run returns.
func (w *Worker) Wait() { w.wg.Wait() }
