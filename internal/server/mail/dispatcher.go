package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/flasky/internal/logging"
)

// DrainTimeout bounds how long workers keep delivering already queued
// messages after Run's context is cancelled.
const DrainTimeout = 10 * time.Second

var (
	ErrQueueFull = errors.New("mail queue is full")
	ErrClosed    = errors.New("mail dispatcher is closed")
)

// Dispatcher renders and sends queued messages on a fixed pool of workers.
// Enqueue never blocks; delivery failures are logged and dropped.
type Dispatcher struct {
	renderer *Renderer
	sender   Sender
	workers  int
	drain    time.Duration
	log      logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
}

func NewDispatcher(renderer *Renderer, sender Sender, workers, queueSize int, log logging.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		renderer: renderer,
		sender:   sender,
		workers:  workers,
		drain:    DrainTimeout,
		log:      log.With("module", "mail"),
		queue:    make(chan Message, queueSize),
	}
}

// Enqueue hands msg to the workers. It returns ErrQueueFull when the buffer
// is full and ErrClosed after Close; in both cases the message is dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.log.Warn(ctx, "mail queue full, message dropped", "to", msg.To, "template", msg.Template)
		return ErrQueueFull
	}
}

// Close stops intake. Workers deliver what is already queued and Run
// returns once the queue is drained. Close is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

// Run starts the workers and blocks until the dispatcher is closed and
// drained, or until ctx is cancelled. On cancellation the workers still try
// to deliver what is queued for up to DrainTimeout; whatever is left after
// that is dropped and counted in the log.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			d.flush(ctx, id)
			return
		}
		select {
		case <-ctx.Done():
			d.flush(ctx, id)
			return
		case msg, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, id, msg)
		}
	}
}

// flush delivers queued messages on a context detached from the cancelled
// one and bounded by the drain timeout.
func (d *Dispatcher) flush(ctx context.Context, id int) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drain)
	defer cancel()

	for {
		if fctx.Err() != nil {
			if n := len(d.queue); n > 0 {
				d.log.Warn(ctx, "mail dropped on shutdown", "worker", id, "pending", n)
			}
			return
		}
		select {
		case msg, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(fctx, id, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id int, msg Message) {
	env, err := d.renderer.Render(msg)
	if err != nil {
		d.log.Error(ctx, "mail render failed", "worker", id, "template", msg.Template, "err", err)
		return
	}
	if err := d.sender.Send(ctx, env); err != nil {
		d.log.Error(ctx, "mail send failed", "worker", id, "to", env.To, "err", err)
		return
	}
	d.log.Debug(ctx, "mail sent", "worker", id, "to", env.To, "template", msg.Template)
}
