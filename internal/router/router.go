package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/metrics"
	"github.com/rickgao/quotefeed/internal/model"
)

// Publisher delivers events to one output.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev model.Event) error
}

// Config holds router configuration.
type Config struct {
	InitialCapacity int           // Initial queue capacity (default: 1024)
	PublishTimeout  time.Duration // Per-publish deadline (default: 2s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapacity: 1024,
		PublishTimeout:  2 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Queue         QueueStats
	Published     int64
	PublishErrors int64
}

// Router queues emitted events and fans them out, in order, to every
// publisher. A failing publisher is logged and counted but never retried
// and never holds back the others.
type Router struct {
	cfg        Config
	publishers []Publisher
	logger     *slog.Logger

	queue *Queue[model.Event]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	published int64
	errors    int64
}

// New creates a router.
func New(cfg Config, publishers []Publisher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Router{
		cfg:        cfg,
		publishers: publishers,
		logger:     logger.With("component", "router"),
		queue:      NewQueue[model.Event](cfg.InitialCapacity),
	}
}

// Emit queues an event. It implements marketdata.Sink.
func (r *Router) Emit(ev model.Event) {
	if !r.queue.Send(ev) {
		r.logger.Debug("router closed, dropping event", "ticker", ev.Ticker, "kind", ev.Kind)
		return
	}
	metrics.RouterBufferLen.Set(float64(r.queue.Len()))
}

// Start begins the fan-out loop.
func (r *Router) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r.wg.Add(1)
	go r.run()

	names := make([]string, 0, len(r.publishers))
	for _, p := range r.publishers {
		names = append(names, p.Name())
	}
	r.logger.Info("event router started", "publishers", names)
}

// Stop closes the queue and waits until queued events are published or ctx
// expires.
func (r *Router) Stop(ctx context.Context) error {
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped", "published", r.Stats().Published)
		r.stopPublishing()
		return nil
	case <-ctx.Done():
		r.stopPublishing()
		r.logger.Warn("event router stop timed out", "pending", r.queue.Len())
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Queue:         r.queue.Stats(),
		Published:     r.published,
		PublishErrors: r.errors,
	}
}

func (r *Router) stopPublishing() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Router) run() {
	defer r.wg.Done()

	for {
		ev, ok := r.queue.Receive()
		if !ok {
			return
		}
		metrics.RouterBufferLen.Set(float64(r.queue.Len()))
		r.publish(ev)
	}
}

func (r *Router) publish(ev model.Event) {
	for _, p := range r.publishers {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.PublishTimeout)
		err := p.Publish(ctx, ev)
		cancel()

		r.mu.Lock()
		if err != nil {
			r.errors++
		} else {
			r.published++
		}
		r.mu.Unlock()

		if err != nil {
			metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			r.logger.Warn("publish failed", "publisher", p.Name(), "ticker", ev.Ticker, "error", err)
		}
	}
}
