// Task 3.2: Connection router.
// Routes each correlated backend response to exactly the originating
// connection among many concurrently connected clients, and separately fans
// allow-listed ambient events to every client. A response with no live
// binding is a RoutingMiss: logged, counted, dropped — never raised.
package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/pkg/uuid"
)

// ErrUnknownConnection is returned when a request names a connection id that
// is not registered.
var ErrUnknownConnection = fmt.Errorf("realtime: unknown connection")

// ErrDuplicateBinding is returned when a request id is already bound to a
// live connection.
var ErrDuplicateBinding = fmt.Errorf("realtime: request id already bound")

// Stats is a snapshot of router activity.
type Stats struct {
	Connections   int
	Bindings      int
	RoutingMisses uint64
	Broadcasts    uint64
}

// Router owns the connection registry and the requestId→connection binding
// table. An event kind is either point-to-point (the canonical response
// kind) or ambient (allow-listed); never both — NewRouter rejects an
// allow-list containing the response kind.
type Router struct {
	bus *eventbus.Bus
	log zerolog.Logger

	mu       sync.Mutex
	conns    map[string]*Conn
	bindings map[string]string // requestID → connID
	allow    map[eventbus.Kind]struct{}

	misses     atomic.Uint64
	broadcasts atomic.Uint64
}

// NewRouter creates a Router subscribed to the canonical response kind and,
// as an observe-all subscriber, to the ambient allow-list.
func NewRouter(bus *eventbus.Bus, log zerolog.Logger, ambient []eventbus.Kind) (*Router, error) {
	allow := make(map[eventbus.Kind]struct{}, len(ambient))
	for _, k := range ambient {
		if k == eventbus.KindResponse {
			return nil, fmt.Errorf("realtime: %s is point-to-point and cannot be ambient", k)
		}
		allow[k] = struct{}{}
	}

	r := &Router{
		bus:      bus,
		log:      log.With().Str("component", "realtime").Logger(),
		conns:    make(map[string]*Conn),
		bindings: make(map[string]string),
		allow:    allow,
	}
	bus.On(eventbus.KindResponse, r.onBusResponse)
	bus.ObserveAll(r.onBusEvent)
	return r, nil
}

// Register creates a new connection and returns it. The transport handler
// owns draining Frames until Disconnect.
func (r *Router) Register() *Conn {
	c := newConn(uuid.NewV7().String())
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()

	r.log.Debug().Str("conn_id", c.id).Msg("connection registered")
	return c
}

// Disconnect tears down the connection: every binding pointing at it is
// erased, so a late response for one of its request ids becomes a
// RoutingMiss instead of a delivery attempt.
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		for rid, cid := range r.bindings {
			if cid == connID {
				delete(r.bindings, rid)
			}
		}
		c.close()
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug().Str("conn_id", connID).Msg("connection closed")
	}
}

// HandleClientRequest binds the payload's request id to the connection,
// acknowledges with an immediate "processing" frame, and publishes the
// domain event. The id in use is returned (generated when the client sent
// none).
func (r *Router) HandleClientRequest(connID string, p eventbus.Correlatable) (string, error) {
	rid := p.CorrelationID()
	if rid == "" {
		rid = uuid.NewV7().String()
		p = p.WithCorrelationID(rid)
	}

	// The bus rejects malformed payloads at the publish boundary; check
	// here first so a rejected request never receives a processing ack.
	if err := p.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if _, dup := r.bindings[rid]; dup {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateBinding, rid)
	}
	r.bindings[rid] = connID
	c.push(Frame{Type: FrameProcessing, RequestID: rid})
	r.mu.Unlock()

	if err := r.bus.Publish("realtime", p.EventKind(), p); err != nil {
		r.mu.Lock()
		delete(r.bindings, rid)
		r.mu.Unlock()
		return "", err
	}
	return rid, nil
}

// Stats returns a snapshot of the router counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	conns, bindings := len(r.conns), len(r.bindings)
	r.mu.Unlock()
	return Stats{
		Connections:   conns,
		Bindings:      bindings,
		RoutingMisses: r.misses.Load(),
		Broadcasts:    r.broadcasts.Load(),
	}
}

// onBusResponse delivers a correlated response to exactly the originating
// connection; the binding is erased on first delivery.
func (r *Router) onBusResponse(evt eventbus.Event) {
	rp, ok := evt.Payload.(eventbus.ResponsePayload)
	if !ok {
		return
	}

	r.mu.Lock()
	connID, bound := r.bindings[rp.RequestID]
	if bound {
		delete(r.bindings, rp.RequestID)
	}
	c := r.conns[connID]
	if bound && c != nil {
		c.push(Frame{Type: FrameResponse, RequestID: rp.RequestID, Payload: rp})
	}
	r.mu.Unlock()

	if !bound || c == nil {
		r.misses.Add(1)
		r.log.Debug().
			Str("request_id", rp.RequestID).
			Msg("routing miss: response without a live binding dropped")
	}
}

// onBusEvent fans allow-listed ambient events to every connected client,
// independent of any binding.
func (r *Router) onBusEvent(evt eventbus.Event) {
	if _, ambient := r.allow[evt.Kind]; !ambient {
		return
	}

	r.mu.Lock()
	for _, c := range r.conns {
		c.push(Frame{Type: FrameBroadcast, Payload: evt})
	}
	r.mu.Unlock()
	r.broadcasts.Add(1)
}
