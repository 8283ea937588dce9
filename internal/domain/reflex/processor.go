// Package reflex — Task 4: Debounced batch processor.
// Absorbs the high-frequency file:changed stream into coarse, well-timed
// tasks: per key, the first event opens a pending batch and each further
// event replaces the payload and re-arms the quiet-period timer; when the
// quiet period elapses the batch is scored by the classifier chain and
// pushed onto the bounded priority queue. A separate drain tick pops exactly
// one highest-priority task and hands it to the executor — at most one
// dispatch is in flight at a time, bounding concurrent side effects such as
// simultaneous repository commits.
package reflex

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/clock"
	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/pkg/uuid"
)

const source = "reflex"

// Executor performs the external side effect for one task (e.g. a scoped
// git commit). Implementations must be safe to call from the drain tick.
type Executor interface {
	Execute(ctx context.Context, t *Task) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t *Task) error

func (f ExecutorFunc) Execute(ctx context.Context, t *Task) error { return f(ctx, t) }

// Config holds the processor knobs.
type Config struct {
	DebounceInterval time.Duration // quiet period per key
	DrainInterval    time.Duration // one dispatch attempt per tick
	MaxQueueSize     int
	DecayFactor      float64 // applied to the score on dispatch failure
	MinScore         int     // decay floor; keeps retried work schedulable
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 500 * time.Millisecond,
		DrainInterval:    time.Second,
		MaxQueueSize:     100,
		DecayFactor:      0.5,
		MinScore:         1,
	}
}

// Status is a snapshot of processor state for the status endpoint.
type Status struct {
	PendingBatches int    `json:"pendingBatches"`
	QueueDepth     int    `json:"queueDepth"`
	InFlight       bool   `json:"inFlight"`
	Flushes        uint64 `json:"flushes"`
	Dispatches     uint64 `json:"dispatches"`
	Failures       uint64 `json:"failures"`
	Dropped        uint64 `json:"dropped"`
}

type pendingBatch struct {
	latest eventbus.Payload
	timer  clock.Timer
}

// Processor is the debounced batch processor.
type Processor struct {
	bus         *eventbus.Bus
	clk         clock.Clock
	log         zerolog.Logger
	cfg         Config
	classifiers []Classifier
	exec        Executor

	mu       sync.Mutex
	pending  map[string]*pendingBatch
	queue    *taskQueue
	inFlight bool

	ctx    context.Context
	cancel context.CancelFunc
	subID  eventbus.SubscriptionID
	drain  clock.Ticker

	flushes    atomic.Uint64
	dispatches atomic.Uint64
	failures   atomic.Uint64
}

// New creates a Processor. Classifiers defaults to DefaultClassifiers when
// empty; cfg fields at zero take the DefaultConfig values.
func New(bus *eventbus.Bus, clk clock.Clock, log zerolog.Logger, exec Executor, cfg Config, classifiers ...Classifier) *Processor {
	def := DefaultConfig()
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = def.DebounceInterval
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = def.DecayFactor
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if len(classifiers) == 0 {
		classifiers = DefaultClassifiers()
	}

	return &Processor{
		bus:         bus,
		clk:         clk,
		log:         log.With().Str("component", "reflex").Logger(),
		cfg:         cfg,
		classifiers: classifiers,
		exec:        exec,
		pending:     make(map[string]*pendingBatch),
		queue:       newTaskQueue(cfg.MaxQueueSize),
	}
}

// Start subscribes the processor to file:changed events and arms the drain
// ticker. ctx bounds executor invocations.
func (p *Processor) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.subID = p.bus.On(eventbus.KindFileChanged, p.onFileChanged)
	p.drain = p.clk.TickFunc(p.cfg.DrainInterval, p.drainOne)
}

// Stop unsubscribes, stops the drain ticker, and cancels all pending
// debounce timers. Queued tasks are abandoned.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.bus.Off(p.subID)
	if p.drain != nil {
		p.drain.Stop()
	}

	p.mu.Lock()
	for key, b := range p.pending {
		b.timer.Stop()
		delete(p.pending, key)
	}
	p.mu.Unlock()
}

// Observe records one change for key. The latest payload wins; each call
// within the quiet period re-arms the key's timer, so a burst flushes once,
// carrying the final payload.
func (p *Processor) Observe(key string, payload eventbus.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.pending[key]; ok {
		b.timer.Stop()
		b.latest = payload
		b.timer = p.clk.AfterFunc(p.cfg.DebounceInterval, func() { p.flush(key) })
		return
	}
	p.pending[key] = &pendingBatch{
		latest: payload,
		timer:  p.clk.AfterFunc(p.cfg.DebounceInterval, func() { p.flush(key) }),
	}
}

// Status returns a snapshot of processor state.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		PendingBatches: len(p.pending),
		QueueDepth:     p.queue.Len(),
		InFlight:       p.inFlight,
		Flushes:        p.flushes.Load(),
		Dispatches:     p.dispatches.Load(),
		Failures:       p.failures.Load(),
		Dropped:        p.queue.dropped,
	}
}

func (p *Processor) onFileChanged(evt eventbus.Event) {
	fc, ok := evt.Payload.(eventbus.FileChangedPayload)
	if !ok {
		return
	}
	p.Observe(fc.Path, fc)
}

// flush moves a quieted batch from the pending set into the priority queue.
func (p *Processor) flush(key string) {
	p.mu.Lock()
	b, ok := p.pending[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.pending, key)

	task := &Task{
		ID:         uuid.NewV7().String(),
		Key:        key,
		Payload:    b.latest,
		Score:      p.score(key, b.latest),
		EnqueuedAt: p.clk.Now(),
	}
	p.queue.Push(task)
	depth := p.queue.Len()
	p.mu.Unlock()

	p.flushes.Add(1)
	_ = p.bus.Publish(source, eventbus.KindTaskFlushed, eventbus.TaskFlushedPayload{
		Key:        key,
		Score:      task.Score,
		QueueDepth: depth,
	})
}

// score runs the classifier chain. A classifier error is logged and its
// tags skipped; an empty overall result falls back to the neutral score.
func (p *Processor) score(key string, payload eventbus.Payload) int {
	var tags []Severity
	for _, classify := range p.classifiers {
		got, err := classify(key, payload)
		if err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("classifier failed; tags skipped")
			continue
		}
		tags = append(tags, got...)
	}
	if s := scoreOf(tags); s > 0 {
		return s
	}
	return NeutralScore
}

// drainOne pops the single highest-priority task and invokes the executor.
// Failure requeues the task with a decayed score so retried work eventually
// sorts below fresh work instead of starving the queue.
func (p *Processor) drainOne() {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	task := p.queue.PopMax()
	if task == nil {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	task.Attempts++
	err := p.exec.Execute(p.ctx, task)

	p.mu.Lock()
	p.inFlight = false
	if err != nil {
		task.Score = p.decayed(task.Score)
		p.queue.Push(task)
	}
	p.mu.Unlock()

	out := eventbus.TaskDispatchedPayload{
		Key:      task.Key,
		Score:    task.Score,
		Attempts: task.Attempts,
		OK:       err == nil,
	}
	if err != nil {
		p.failures.Add(1)
		out.Error = err.Error()
		p.log.Warn().Err(err).Str("key", task.Key).Int("attempts", task.Attempts).
			Msg("dispatch failed; task requeued with decayed priority")
	} else {
		p.dispatches.Add(1)
	}
	_ = p.bus.Publish(source, eventbus.KindTaskDispatched, out)
}

func (p *Processor) decayed(score int) int {
	next := int(float64(score) * p.cfg.DecayFactor)
	if next < p.cfg.MinScore {
		return p.cfg.MinScore
	}
	return next
}
