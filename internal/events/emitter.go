package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/straja-ai/ulap/internal/redact"
)

// Sink consumes decision events (file, webhook, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Stats are the emitter's delivery counters.
type Stats struct {
	Enqueued    uint64            `json:"enqueued"`
	Dropped     uint64            `json:"dropped"`
	SinkSuccess map[string]uint64 `json:"sink_success"`
	SinkFailure map[string]uint64 `json:"sink_failure"`
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// Emitter buffers events and delivers them to sinks from worker goroutines.
// Emit never blocks; a full queue drops the event.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewEmitter starts the delivery workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	e := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		shutdownTimeout: cfg.ShutdownTimeout,
		stats: Stats{
			SinkSuccess: make(map[string]uint64, len(sinks)),
			SinkFailure: make(map[string]uint64, len(sinks)),
		},
	}
	for _, s := range sinks {
		e.stats.SinkSuccess[s.Name()] = 0
		e.stats.SinkFailure[s.Name()] = 0
	}

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues ev without blocking the caller.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.count(func(s *Stats) { s.Dropped++ })
		return
	}

	select {
	case e.queue <- ev:
		e.count(func(s *Stats) { s.Enqueued++ })
	default:
		e.count(func(s *Stats) { s.Dropped++ })
	}
}

// Close stops accepting events and waits up to the shutdown timeout for the
// queue to drain, then closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		slog.Warn("events: shutdown timed out with events pending")
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			slog.Error("events: sink close failed", "sink", s.Name(), "error", err)
		}
	}
}

// Stats copies the current counters.
func (e *Emitter) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	out := Stats{
		Enqueued:    e.stats.Enqueued,
		Dropped:     e.stats.Dropped,
		SinkSuccess: make(map[string]uint64, len(e.stats.SinkSuccess)),
		SinkFailure: make(map[string]uint64, len(e.stats.SinkFailure)),
	}
	for k, v := range e.stats.SinkSuccess {
		out.SinkSuccess[k] = v
	}
	for k, v := range e.stats.SinkFailure {
		out.SinkFailure[k] = v
	}
	return out
}

func (e *Emitter) count(fn func(*Stats)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.statsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		name := s.Name()
		if err := s.Deliver(context.Background(), ev); err != nil {
			slog.Warn("events: delivery failed", "sink", name, "event", ev.ID, "error", redact.String(err.Error()))
			e.count(func(st *Stats) { st.SinkFailure[name]++ })
			continue
		}
		e.count(func(st *Stats) { st.SinkSuccess[name]++ })
	}
}
