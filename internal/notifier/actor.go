// Package notifier implements the per-backend delivery actor: a lifecycle
// state machine that owns an unbounded FIFO queue and a single worker which
// hands envelopes to the backend adapter one at a time.
package notifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/schema"
	"github.com/alertrelay/alertrelay/internal/status"
)

// State is the lifecycle state of an Actor.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Actor serializes delivery for one backend.
//
// Producers call Enqueue and never block on delivery. The worker started by
// Init marks the backend busy in the status registry for the duration of each
// Deliver call and idle again afterwards, whatever the outcome.
type Actor struct {
	deliverer schema.Deliverer
	registry  *status.Registry
	log       *zap.Logger
	backend   bus.Backend

	mu        sync.Mutex
	state     State
	queue     *queue
	runCancel context.CancelFunc
	done      chan struct{}
}

// NewActor creates an uninitialized Actor for d.
func NewActor(d schema.Deliverer, registry *status.Registry, log *zap.Logger) *Actor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Actor{
		deliverer: d,
		registry:  registry,
		backend:   d.Name(),
		log:       log.With(zap.String("backend", string(d.Name()))),
	}
}

// Backend returns the backend this actor delivers to.
func (a *Actor) Backend() bus.Backend { return a.backend }

// State returns the current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Pending returns the number of queued envelopes not yet picked up.
func (a *Actor) Pending() int {
	a.mu.Lock()
	q := a.queue
	a.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.len()
}

// Init runs the adapter handshake, registers the backend as healthy and starts
// the worker. On failure the actor stays uninitialized and no registry entry
// is created.
func (a *Actor) Init(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateUninitialized:
	case StateStopped:
		a.mu.Unlock()
		return ErrStopped
	default:
		a.mu.Unlock()
		return ErrAlreadyInitialized
	}
	a.state = StateInitializing
	a.mu.Unlock()

	if err := a.deliverer.Init(ctx); err != nil {
		a.mu.Lock()
		a.state = StateUninitialized
		a.mu.Unlock()
		a.log.Error("notifier init failed", zap.Error(err))
		return &InitError{Backend: a.backend, Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q := newQueue()
	done := make(chan struct{})

	a.mu.Lock()
	if a.state != StateInitializing {
		// Stop won the race with the handshake.
		a.mu.Unlock()
		cancel()
		return ErrStopped
	}
	a.registry.Set(a.backend, true)
	a.queue = q
	a.runCancel = cancel
	a.done = done
	a.state = StateReady
	a.mu.Unlock()

	go a.work(runCtx, q, done)
	a.log.Info("notifier initialized")
	return nil
}

// Enqueue appends env to the tail of the queue. It never blocks.
func (a *Actor) Enqueue(env bus.Envelope) error {
	if err := a.checkBackend(env); err != nil {
		return err
	}
	q, err := a.readyQueue()
	if err != nil {
		return err
	}
	if !q.push(env) {
		return ErrStopped
	}
	depth := q.len()
	queueDepth.WithLabelValues(string(a.backend)).Set(float64(depth))
	a.log.Debug("envelope enqueued",
		zap.String("envelope", env.ID()),
		zap.Int("targets", len(env.Targets())),
		zap.Int("queue_len", depth),
	)
	return nil
}

// Deliver sends env immediately, bypassing the queue. It is meant for callers
// that must observe the outcome synchronously, such as the confirm protocol.
func (a *Actor) Deliver(ctx context.Context, env bus.Envelope) error {
	if err := a.checkBackend(env); err != nil {
		return err
	}
	if _, err := a.readyQueue(); err != nil {
		return err
	}
	return a.deliverer.Deliver(ctx, env)
}

// Stop stops intake and waits for the worker to drain the queue. If ctx ends
// first, the in-flight delivery is cancelled and the remaining envelopes are
// discarded.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateReady {
		a.state = StateStopped
		a.mu.Unlock()
		return nil
	}
	a.state = StateStopped
	q, cancel, done := a.queue, a.runCancel, a.done
	a.mu.Unlock()

	q.close()
	a.log.Info("notifier stopping", zap.Int("pending", q.len()))

	select {
	case <-done:
		cancel()
		a.log.Info("notifier stopped")
		return nil
	case <-ctx.Done():
	}

	cancel()
	<-done
	if dropped := len(q.drain()); dropped > 0 {
		discardedTotal.WithLabelValues(string(a.backend)).Add(float64(dropped))
		a.log.Warn("notifier stopped before queue drained", zap.Int("discarded", dropped))
	}
	queueDepth.WithLabelValues(string(a.backend)).Set(0)
	return ctx.Err()
}

func (a *Actor) readyQueue() (*queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateReady:
		return a.queue, nil
	case StateStopped:
		return nil, ErrStopped
	default:
		return nil, ErrNotReady
	}
}

func (a *Actor) checkBackend(env bus.Envelope) error {
	if env.Backend() != a.backend {
		return fmt.Errorf("%w: %s envelope handed to %s notifier", ErrBackendMismatch, env.Backend(), a.backend)
	}
	return nil
}

func (a *Actor) work(ctx context.Context, q *queue, done chan<- struct{}) {
	defer close(done)
	for {
		env, ok := q.pop(ctx)
		if !ok {
			return
		}
		queueDepth.WithLabelValues(string(a.backend)).Set(float64(q.len()))
		a.process(ctx, env)
	}
}

func (a *Actor) process(ctx context.Context, env bus.Envelope) {
	start := time.Now()
	a.registry.Set(a.backend, false)
	err := a.safeDeliver(ctx, env)
	a.registry.Set(a.backend, true)

	dur := time.Since(start)
	deliveryDuration.WithLabelValues(string(a.backend)).Observe(dur.Seconds())
	if err != nil {
		deliveriesTotal.WithLabelValues(string(a.backend), "failed").Inc()
		a.log.Error("delivery failed",
			zap.String("envelope", env.ID()),
			zap.String("preview", env.Preview()),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
		return
	}
	deliveriesTotal.WithLabelValues(string(a.backend), "delivered").Inc()
	a.log.Debug("envelope delivered", zap.String("envelope", env.ID()), zap.Duration("dur", dur))
}

func (a *Actor) safeDeliver(ctx context.Context, env bus.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic in deliver", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in deliver: %v", r)
		}
	}()
	return a.deliverer.Deliver(ctx, env)
}
