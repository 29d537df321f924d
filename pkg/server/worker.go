// Package server is the signal intake of the publisher: an HTTP front end
// feeding a single worker that processes opportunities one at a time.
package server

import (
	"context"
	"errors"
	"sync"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/logging"
	"github.com/erain9/arbsignal/pkg/sizing"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned when the worker backlog is at capacity.
	ErrQueueFull = errors.New("opportunity queue is full")

	// ErrStopped is returned when submitting to a stopped worker.
	ErrStopped = errors.New("worker stopped")
)

// Processor handles one opportunity. *sizing.Engine implements it.
type Processor interface {
	Opportunity(ctx context.Context, sig core.OpportunitySignal) (sizing.Report, error)
}

type job struct {
	requestID string
	sig       core.OpportunitySignal
}

// Worker funnels signals through one goroutine, so the engine and the
// broker connection behind it are never used concurrently.
type Worker struct {
	proc   Processor
	jobs   chan job
	logger zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewWorker creates a worker with a backlog of size signals.
func NewWorker(proc Processor, size int, logger zerolog.Logger) *Worker {
	if size <= 0 {
		size = 1
	}
	return &Worker{
		proc:   proc,
		jobs:   make(chan job, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Submit queues sig without blocking.
func (w *Worker) Submit(requestID string, sig core.OpportunitySignal) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.jobs <- job{requestID: requestID, sig: sig}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Backlog returns the number of queued signals.
func (w *Worker) Backlog() int {
	return len(w.jobs)
}

// Run processes signals until Stop is called and the backlog is drained.
// ctx is passed to every Opportunity call.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for j := range w.jobs {
		w.process(ctx, j)
	}
}

func (w *Worker) process(ctx context.Context, j job) {
	if j.requestID != "" {
		ctx = logging.WithRequestID(ctx, j.requestID)
	}
	logger := logging.FromContext(ctx, w.logger)

	report, err := w.proc.Opportunity(ctx, j.sig)
	if err != nil {
		logger.Error().Err(err).Str("kask", j.sig.Kask).Str("kbid", j.sig.Kbid).Msg("Opportunity failed")
		return
	}
	logger.Debug().
		Str("outcome", report.Outcome.String()).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Opportunity handled")
}

// Stop rejects new signals, lets Run drain the backlog and waits for it,
// or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
