// Package gateway — Task 2.4: Correlation gateway.
// Bridges a synchronous caller to the bus's asynchronous fan-out: publish a
// correlated request, wait for the matching event on the canonical response
// kind, and settle exactly once — with the first response, a timeout, or
// context cancellation, whichever comes first. Late or duplicate responses
// for a settled id are dropped with no residual state.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/clock"
	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/pkg/uuid"
)

// TimeoutMessage is the wire-level error string for a correlation timeout.
// The HTTP layer returns it verbatim with status 504.
const TimeoutMessage = "Request timed out"

// DefaultTimeout applies when a request does not override it.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is the CorrelationTimeout failure: no response arrived within
// the request's window. It is a transport-level failure, never conflated
// with a DownstreamError carried inside a response.
var ErrTimeout = errors.New("request timed out")

// ErrDuplicateRequest is returned when a request id is already in flight.
var ErrDuplicateRequest = errors.New("request id already in flight")

// DownstreamError is an explicit error carried by a response event,
// surfaced verbatim to the caller.
type DownstreamError struct {
	Message string
	Status  int
}

func (e *DownstreamError) Error() string { return e.Message }

// Response is the settled outcome of one correlated request. Exactly one of
// Data or Err is set.
type Response struct {
	RequestID string
	Data      map[string]any
	Err       *DownstreamError
}

// Sink receives the settled outcome exactly once. resp is non-nil for a bus
// response (success or downstream error); err is non-nil for ErrTimeout.
type Sink func(resp *Response, err error)

type pendingRequest struct {
	id        string
	createdAt time.Time
	timer     clock.Timer
	sink      Sink
}

// Gateway turns one-shot asynchronous bus traffic into request/response
// calls with timeout semantics. One Gateway subscribes once to the canonical
// response kind and demultiplexes by request id.
type Gateway struct {
	bus     *eventbus.Bus
	clk     clock.Clock
	log     zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest
	subID   eventbus.SubscriptionID
}

// Option adjusts one request.
type Option func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the gateway default for one request. A zero or
// negative timeout fails the request immediately with ErrTimeout, without
// consuming any response.
func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) { o.timeout = d }
}

// New creates a Gateway on bus with the given default timeout and
// subscribes it to the canonical response kind. A non-positive default has
// the same meaning as WithTimeout(0): every request settles ErrTimeout
// immediately unless a per-request option overrides it. Callers wanting the
// stock window pass DefaultTimeout.
func New(bus *eventbus.Bus, clk clock.Clock, log zerolog.Logger, defaultTimeout time.Duration) *Gateway {
	g := &Gateway{
		bus:     bus,
		clk:     clk,
		log:     log.With().Str("component", "gateway").Logger(),
		timeout: defaultTimeout,
		pending: make(map[string]*pendingRequest),
	}
	g.subID = bus.On(eventbus.KindResponse, g.onResponse)
	return g
}

// RequestAsync publishes a correlated request and registers sink to be
// invoked exactly once with the outcome. If the payload carries no request
// id, a generated one is assigned; the id in use is returned either way.
func (g *Gateway) RequestAsync(kind eventbus.Kind, p eventbus.Correlatable, sink Sink, opts ...Option) (string, error) {
	o := requestOptions{timeout: g.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	rid := p.CorrelationID()
	if rid == "" {
		rid = uuid.NewV7().String()
		p = p.WithCorrelationID(rid)
	}

	pr := &pendingRequest{id: rid, createdAt: g.clk.Now(), sink: sink}

	g.mu.Lock()
	if _, exists := g.pending[rid]; exists {
		g.mu.Unlock()
		return rid, fmt.Errorf("gateway: %w: %s", ErrDuplicateRequest, rid)
	}
	g.pending[rid] = pr
	g.mu.Unlock()

	// A non-positive window times out before any response can be observed.
	// The domain event is still published so the responder side acts; its
	// eventual response becomes a silent drop.
	if o.timeout <= 0 {
		g.settle(rid, nil, ErrTimeout)
		if err := g.bus.Publish("gateway", kind, p); err != nil {
			return rid, err
		}
		return rid, nil
	}

	if err := g.bus.Publish("gateway", kind, p); err != nil {
		g.remove(rid)
		return rid, err
	}

	// A synchronous responder may have settled the request during Publish;
	// only arm the timer while the entry is still pending.
	g.mu.Lock()
	if _, live := g.pending[rid]; live {
		pr.timer = g.clk.AfterFunc(o.timeout, func() {
			g.settle(rid, nil, ErrTimeout)
		})
	}
	g.mu.Unlock()

	return rid, nil
}

// Request is the blocking form of RequestAsync. It returns the response
// (success or downstream error) or ErrTimeout / the context error.
func (g *Gateway) Request(ctx context.Context, kind eventbus.Kind, p eventbus.Correlatable, opts ...Option) (*Response, error) {
	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)

	rid, err := g.RequestAsync(kind, p, func(resp *Response, err error) {
		done <- outcome{resp: resp, err: err}
	}, opts...)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		g.cancel(rid)
		return nil, ctx.Err()
	}
}

// PendingCount reports the number of in-flight requests.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close deregisters the gateway from the bus. In-flight requests keep their
// timers and settle by timeout.
func (g *Gateway) Close() {
	g.bus.Off(g.subID)
}

// onResponse is the bus handler on the canonical response kind. A response
// whose id is unknown (never requested, already settled, or timed out) is
// dropped silently — settlement removed the entry first, so a second
// delivery can never double-fire the sink.
func (g *Gateway) onResponse(evt eventbus.Event) {
	rp, ok := evt.Payload.(eventbus.ResponsePayload)
	if !ok {
		return
	}

	resp := &Response{RequestID: rp.RequestID, Data: rp.Data}
	if rp.Error != "" {
		resp.Err = &DownstreamError{Message: rp.Error, Status: rp.Status}
	}
	g.settle(rp.RequestID, resp, nil)
}

// settle resolves the pending request exactly once: the first caller for an
// id removes the entry and fires the sink; later callers find nothing.
func (g *Gateway) settle(rid string, resp *Response, err error) {
	g.mu.Lock()
	pr, ok := g.pending[rid]
	if !ok {
		g.mu.Unlock()
		if resp != nil {
			g.log.Debug().Str("request_id", rid).Msg("response for unknown or settled request dropped")
		}
		return
	}
	delete(g.pending, rid)
	g.mu.Unlock()

	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.sink(resp, err)
}

// cancel removes a pending request without firing the sink. Used by the
// blocking form when the caller's context ends first.
func (g *Gateway) cancel(rid string) {
	g.mu.Lock()
	pr, ok := g.pending[rid]
	if ok {
		delete(g.pending, rid)
	}
	g.mu.Unlock()
	if ok && pr.timer != nil {
		pr.timer.Stop()
	}
}

// remove drops a pending entry after a failed publish.
func (g *Gateway) remove(rid string) {
	g.mu.Lock()
	delete(g.pending, rid)
	g.mu.Unlock()
}
