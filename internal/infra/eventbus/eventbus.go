// Task 2.2: In-memory publish/subscribe event bus — the system's nervous
// system. Producers never see consumers: chat routing, the reflex processor,
// telemetry, and the realtime router all meet only through this bus.
//
// Delivery contract:
//   - Publish invokes, synchronously and in registration order, every handler
//     subscribed to the exact kind, then every observe-all handler.
//   - A handler panic is recovered and logged; it never reaches the publisher
//     and never blocks delivery to remaining handlers (fault isolation).
//   - Ordering is guaranteed only among the handlers of a single Publish
//     call. Nothing is guaranteed across publishes from different producers.
//   - No buffering, no persistence, no delivery retries: the correlation
//     gateway (Task 2.4) is the only retry/guarantee mechanism in the system.
//
// Instances are explicit and dependency-injected — there is no package-level
// default bus, so every test owns an isolated instance.
package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives one event. Handlers run on the publisher's goroutine;
// long work inside a handler delays every later handler of the same publish.
type Handler func(Event)

// SubscriptionID identifies one registered handler for removal.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Handler
}

// Stats is a snapshot of bus activity counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerPanics uint64
	Rejected      uint64
}

// Bus is the in-memory typed event dispatcher.
type Bus struct {
	mu     sync.Mutex
	nextID SubscriptionID
	exact  map[Kind][]subscription
	all    []subscription
	log    zerolog.Logger

	published     atomic.Uint64
	delivered     atomic.Uint64
	handlerPanics atomic.Uint64
	rejected      atomic.Uint64
}

// New returns an empty Bus logging handler faults through log.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		exact: make(map[Kind][]subscription),
		log:   log.With().Str("component", "eventbus").Logger(),
	}
}

// On registers a handler for one exact kind and returns its subscription id.
func (b *Bus) On(kind Kind, fn Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.exact[kind] = append(b.exact[kind], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// ObserveAll registers a handler that receives every published event,
// regardless of kind. This is the explicit wildcard channel; there is no
// string pattern matching on the bus.
func (b *Bus) ObserveAll(fn Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.all = append(b.all, subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// Off removes the subscription with the given id. Returns false if no such
// subscription exists (already removed, or never registered).
func (b *Bus) Off(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.exact {
		if pruned, ok := removeByID(subs, id); ok {
			b.exact[kind] = pruned
			return true
		}
	}
	if pruned, ok := removeByID(b.all, id); ok {
		b.all = pruned
		return true
	}
	return false
}

// OffHandler removes the first subscription on kind whose handler is the
// same function value as fn (compared by function identity). Returns false
// if no subscription on kind uses fn.
func (b *Bus) OffHandler(kind Kind, fn Handler) bool {
	target := reflect.ValueOf(fn).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.exact[kind]
	for i, s := range subs {
		if reflect.ValueOf(s.fn).Pointer() == target {
			b.exact[kind] = append(append([]subscription{}, subs[:i]...), subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish validates the payload and synchronously delivers the event to
// every matching handler. Returns a validation error only; handler faults
// never propagate to the publisher.
func (b *Bus) Publish(source string, kind Kind, p Payload) error {
	if err := b.validate(kind, p); err != nil {
		b.rejected.Add(1)
		return err
	}

	evt := Event{
		Source:    source,
		Kind:      kind,
		Payload:   p,
		Timestamp: time.Now().UnixMilli(),
	}

	// Snapshot under lock so handlers registered or removed mid-publish do
	// not affect this delivery round.
	b.mu.Lock()
	targets := make([]subscription, 0, len(b.exact[kind])+len(b.all))
	targets = append(targets, b.exact[kind]...)
	targets = append(targets, b.all...)
	b.mu.Unlock()

	b.published.Add(1)
	for _, s := range targets {
		b.deliver(s, evt)
	}
	return nil
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerPanics: b.handlerPanics.Load(),
		Rejected:      b.rejected.Load(),
	}
}

// validate enforces the publish-boundary schema: known kind, non-nil payload,
// kind/payload agreement, and the payload's own Validate.
func (b *Bus) validate(kind Kind, p Payload) error {
	if _, ok := knownKinds[kind]; !ok {
		return ErrUnknownKind
	}
	if p == nil {
		return ErrNilPayload
	}
	if p.EventKind() != kind {
		return ErrPayloadKindMismatch
	}
	return p.Validate()
}

// deliver invokes one handler, converting a panic into a logged HandlerError.
func (b *Bus) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			b.log.Error().
				Str("source", evt.Source).
				Str("kind", string(evt.Kind)).
				Uint64("subscription", uint64(s.id)).
				Interface("panic", r).
				Msg("handler panicked; delivery continues")
		}
	}()
	s.fn(evt)
	b.delivered.Add(1)
}

func removeByID(subs []subscription, id SubscriptionID) ([]subscription, bool) {
	for i, s := range subs {
		if s.id == id {
			return append(append([]subscription{}, subs[:i]...), subs[i+1:]...), true
		}
	}
	return subs, false
}
