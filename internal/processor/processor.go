package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smaq/smaq/internal/compute"
	"github.com/smaq/smaq/internal/model"
	"github.com/smaq/smaq/internal/queue"
)

// ErrClosed is returned when work is submitted after Shutdown.
var ErrClosed = errors.New("processor is shut down")

// Computer turns one item's input into one output value per record.
// *compute.Adapter is the production implementation.
type Computer interface {
	Compute(input []model.PricePoint) ([]float64, error)
}

// State is the lifecycle state of the worker.
type State int32

// Worker states.
const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	State       string `json:"state"`
	QueueDepth  int    `json:"queue_depth"`
	Activations int64  `json:"activations"`
	Subscribers int    `json:"subscribers"`
	LastID      int64  `json:"last_id"`
}

// Processor owns the work queue, the single worker that drives the
// computer, and the completion broker.
//
// The worker goroutine is started by the first Enqueue and then lives until
// Shutdown, parked on the queue's ready signal while there is nothing to do.
// It is the only caller of the computer.
type Processor struct {
	computer Computer
	queue    *queue.Queue
	broker   *Broker
	ids      model.IDSequence
	logger   *slog.Logger

	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	state       atomic.Int32
	activations atomic.Int64
}

// New creates a processor. No goroutine is started until work is enqueued.
func New(c Computer, logger *slog.Logger) *Processor {
	return &Processor{
		computer: c,
		queue:    queue.New(),
		broker:   NewBroker(),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Broker returns the completion broker for subscription.
func (p *Processor) Broker() *Broker {
	return p.broker
}

// Submit wraps input in a new work item with a fresh identifier and enqueues
// it. It returns the identifier without waiting for processing.
func (p *Processor) Submit(input []model.PricePoint) (int64, error) {
	item := model.NewWorkItem(p.ids.Next(), input)
	if err := p.Enqueue(item); err != nil {
		return 0, err
	}
	return item.ID(), nil
}

// NextID reserves an identifier for an item built by the caller.
func (p *Processor) NextID() int64 {
	return p.ids.Next()
}

// Enqueue hands a pending item to the processor. The caller must not use
// the item afterwards; its result arrives through the broker.
func (p *Processor) Enqueue(item *model.WorkItem) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	queueDepth.Inc()
	p.queue.Enqueue(item)
	// Started under mu so Shutdown cannot observe an enqueued item without a worker.
	p.startOnce.Do(func() {
		go p.run()
	})
	p.mu.Unlock()
	return nil
}

// State reports whether the worker is currently draining the queue.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Activations returns how many times the worker went from idle to running.
func (p *Processor) Activations() int64 {
	return p.activations.Load()
}

// Stats returns a snapshot of the processor state.
func (p *Processor) Stats() Stats {
	return Stats{
		State:       p.State().String(),
		QueueDepth:  p.queue.Len(),
		Activations: p.Activations(),
		Subscribers: p.broker.Subscribers(),
		LastID:      p.ids.Last(),
	}
}

// Shutdown stops accepting work, lets the worker finish everything already
// queued, then closes the broker. Every caller waits for the drain; if ctx
// expires first the worker keeps draining in the background and ctx's error
// is returned.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()

	if first {
		// No worker was ever started: nothing can start one now.
		p.startOnce.Do(func() { close(p.done) })
		close(p.stop)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for worker: %w", ctx.Err())
	}

	p.broker.Close()
	return nil
}

// run is the worker loop.
func (p *Processor) run() {
	defer close(p.done)

	for {
		p.drain()
		select {
		case <-p.stop:
			p.drain()
			return
		case <-p.queue.Ready():
		}
	}
}

// drain processes queued items in FIFO order until the queue is empty.
func (p *Processor) drain() {
	running := false
	for {
		item, ok := p.queue.TryDequeue()
		if !ok {
			if running {
				p.setState(StateIdle)
			}
			return
		}
		queueDepth.Dec()

		if !running {
			running = true
			p.activations.Add(1)
			workerActivations.Inc()
			p.setState(StateRunning)
		}
		p.process(item)
	}
}

func (p *Processor) setState(s State) {
	p.state.Store(int32(s))
	if s == StateRunning {
		workerRunning.Set(1)
	} else {
		workerRunning.Set(0)
	}
	p.logger.Debug("worker state", "state", s.String(), "queue_depth", p.queue.Len())
}

// process runs one item through the computer and publishes its completion.
func (p *Processor) process(item *model.WorkItem) {
	start := time.Now().UTC()
	item.MarkStarted(start)

	output, err := p.compute(item)
	computeDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if cerr := item.Complete(output); cerr != nil {
			err = fmt.Errorf("job %d: %w: %w", item.ID(), compute.ErrLayoutViolation, cerr)
			p.logger.Error("computer returned mismatched output",
				"job_id", item.ID(), "records", item.Len(), "values", len(output), "error", cerr)
		}
	}

	switch {
	case err == nil:
		jobsTotal.WithLabelValues(outcomeCompleted).Inc()
		p.logger.Debug("job completed",
			"job_id", item.ID(),
			"records", item.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, compute.ErrLayoutViolation):
		jobsTotal.WithLabelValues(outcomeLayoutViolation).Inc()
		_ = item.Fail(err)
	default:
		jobsTotal.WithLabelValues(outcomeFailed).Inc()
		p.logger.Warn("job failed", "job_id", item.ID(), "records", item.Len(), "error", err)
		_ = item.Fail(err)
	}

	p.broker.Publish(item.Snapshot())
}

// compute calls the computer. A *compute.LayoutError panic aborts only this
// item; any other panic propagates.
func (p *Processor) compute(item *model.WorkItem) (output []float64, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		layoutErr, ok := r.(*compute.LayoutError)
		if !ok {
			panic(r)
		}
		p.logger.Error("engine layout violation",
			"job_id", item.ID(),
			"error", layoutErr,
			"stack", string(debug.Stack()),
		)
		output, err = nil, fmt.Errorf("job %d: %w", item.ID(), layoutErr)
	}()

	return p.computer.Compute(item.Records())
}
