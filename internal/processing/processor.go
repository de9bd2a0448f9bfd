// Package processing runs inbound messaging events on a bounded pool of
// worker goroutines so the webhook can acknowledge immediately.
package processing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/metrics"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev model.InboundEvent) error
}

// Job is one queued event.
type Job struct {
	ID    string
	Event model.InboundEvent
}

// DropFunc is called, on its own goroutine, for an event refused because the
// queue was full.
type DropFunc func(ctx context.Context, ev model.InboundEvent)

// Processor consumes Jobs with a fixed number of workers.
type Processor struct {
	handler Handler
	queue   chan Job
	workers int
	timeout time.Duration
	onDrop  DropFunc
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// New builds a Processor. depth bounds the number of queued, not yet running,
// events.
func New(handler Handler, workers, depth int, jobTimeout time.Duration) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if depth < 0 {
		depth = 0
	}
	return &Processor{
		handler: handler,
		queue:   make(chan Job, depth),
		workers: workers,
		timeout: jobTimeout,
		log:     logging.Component("processing"),
	}
}

// OnDrop installs the callback for refused events.
func (p *Processor) OnDrop(fn DropFunc) {
	p.onDrop = fn
}

// Start launches worker goroutines. They exit when ctx is cancelled, after
// finishing the job they are running.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Submit queues ev. It never blocks: when the queue is full the event is
// handed to the drop callback and Submit returns false.
func (p *Processor) Submit(ev model.InboundEvent) bool {
	job := Job{ID: uuid.NewString(), Event: ev}
	select {
	case p.queue <- job:
		return true
	default:
		metrics.DroppedEvents.Inc()
		p.log.Warn().Str("jobId", job.ID).Str("sessionId", ev.SenderID).Msg("Processor queue full, refusing event")
		if p.onDrop != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
				defer cancel()
				p.onDrop(ctx, ev)
			}()
		}
		return false
	}
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	// in-flight work outlives shutdown so a user is never left without a reply
	ctx = context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log := p.log.With().Str("jobId", job.ID).Str("sessionId", job.Event.SenderID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Event handler panicked")
		}
	}()
	start := time.Now()
	if err := p.handler.Handle(ctx, job.Event); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("Event handled with errors")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("Event handled")
}
