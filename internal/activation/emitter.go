package activation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/redact"
)

// Sink consumes activation events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics is a copy of the emitter's delivery counters.
type Metrics struct {
	Enqueued  uint64            `json:"enqueued"`
	Dropped   uint64            `json:"dropped"`
	Delivered map[string]uint64 `json:"delivered"`
	Failed    map[string]uint64 `json:"failed"`
}

// Emitter queues events and delivers them to every sink from a worker pool.
// Emit never blocks; a full queue drops the event.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration
	onDeliver       func(sink string, err error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	// OnDeliver, if set, observes every sink delivery.
	OnDeliver func(sink string, err error)
}

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

	em := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		shutdownTimeout: cfg.ShutdownTimeout,
		onDeliver:       cfg.OnDeliver,
		metrics: Metrics{
			Delivered: make(map[string]uint64, len(sinks)),
			Failed:    make(map[string]uint64, len(sinks)),
		},
	}
	for _, s := range sinks {
		em.metrics.Delivered[s.Name()] = 0
		em.metrics.Failed[s.Name()] = 0
	}

	for i := 0; i < cfg.Workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// FromConfig builds the sinks named in cfg and starts an emitter. It returns
// nil when activation is disabled or no sink is configured.
func FromConfig(cfg config.ActivationConfig, onDeliver func(string, error)) (*Emitter, error) {
	if !cfg.Enabled || len(cfg.Sinks) == 0 {
		return nil, nil
	}
	sinks := make([]Sink, 0, len(cfg.Sinks))
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
	}
	for i, sc := range cfg.Sinks {
		var (
			s   Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "stdout":
			s = NewStdoutSink(nil)
		case "file_jsonl":
			s, err = NewFileSink(sc.Path)
		case "webhook":
			s, err = NewWebhookSink(sc.URL, sc.Headers, sc.Timeout)
		default:
			err = fmt.Errorf("unknown sink type %q", sc.Type)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("activation sink %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return NewEmitter(EmitterConfig{
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
		OnDeliver: onDeliver,
	}, sinks), nil
}

// Emit enqueues ev without blocking.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	accepted := false
	if !e.closed {
		select {
		case e.queue <- ev:
			accepted = true
		default:
		}
	}

	e.metricsMu.Lock()
	if accepted {
		e.metrics.Enqueued++
	} else {
		e.metrics.Dropped++
	}
	e.metricsMu.Unlock()
}

// Close stops accepting events, drains the queue until ctx or the shutdown
// timeout expires, then closes the sinks.
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

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		redact.Logf("activation: shutdown timed out with %d events queued", len(e.queue))
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			redact.Logf("activation: sink %s close error: %v", s.Name(), err)
		}
	}
}

// Metrics returns a copy of the counters.
func (e *Emitter) Metrics() Metrics {
	if e == nil {
		return Metrics{}
	}
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	out := Metrics{
		Enqueued:  e.metrics.Enqueued,
		Dropped:   e.metrics.Dropped,
		Delivered: make(map[string]uint64, len(e.metrics.Delivered)),
		Failed:    make(map[string]uint64, len(e.metrics.Failed)),
	}
	for k, v := range e.metrics.Delivered {
		out.Delivered[k] = v
	}
	for k, v := range e.metrics.Failed {
		out.Failed[k] = v
	}
	return out
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		err := s.Deliver(context.Background(), ev)
		e.metricsMu.Lock()
		if err != nil {
			e.metrics.Failed[s.Name()]++
		} else {
			e.metrics.Delivered[s.Name()]++
		}
		e.metricsMu.Unlock()

		if err != nil {
			redact.Logf("activation: sink %s failed: %v", s.Name(), err)
		}
		if e.onDeliver != nil {
			e.onDeliver(s.Name(), err)
		}
	}
}
