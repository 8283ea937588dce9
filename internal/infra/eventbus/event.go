// Package eventbus — Task 2.1: Typed event envelope and kind registry.
// The bus carries a closed set of event kinds, each with its own payload
// struct. Publish validates the payload against its kind at the boundary so
// malformed events are rejected early instead of failing deep inside an
// unrelated handler.
package eventbus

import (
	"errors"
	"fmt"
)

// Kind identifies an event family on the bus. The set of kinds is closed:
// Publish rejects kinds that are not registered below.
type Kind string

const (
	// KindChatRequest is a correlated chat routing request. Consumed by the
	// chat motor; the response arrives on KindResponse.
	KindChatRequest Kind = "chat:request"

	// KindResponse is the canonical response channel. Every correlated
	// request is answered by exactly one event of this kind echoing the
	// originating request id.
	KindResponse Kind = "core:response"

	// KindFileChanged is a raw filesystem change notice keyed by path.
	// Consumed by the reflex processor's debounce stage.
	KindFileChanged Kind = "file:changed"

	// KindTaskFlushed is emitted when a debounced batch leaves the pending
	// set and enters the priority queue.
	KindTaskFlushed Kind = "task:flushed"

	// KindTaskDispatched is emitted after each executor invocation, both
	// successes and failures.
	KindTaskDispatched Kind = "task:dispatched"

	// KindProviderStatus is an ambient health notice from the LLM layer.
	KindProviderStatus Kind = "provider:status"
)

// knownKinds is the closed registry checked by Publish.
var knownKinds = map[Kind]struct{}{
	KindChatRequest:    {},
	KindResponse:       {},
	KindFileChanged:    {},
	KindTaskFlushed:    {},
	KindTaskDispatched: {},
	KindProviderStatus: {},
}

// Validation errors returned by Publish (boundary rejection, not handler faults).
var (
	ErrUnknownKind         = errors.New("eventbus: unknown event kind")
	ErrNilPayload          = errors.New("eventbus: nil payload")
	ErrPayloadKindMismatch = errors.New("eventbus: payload does not match event kind")
)

// Payload is implemented by every event payload struct. EventKind ties the
// struct to its kind; Validate is the per-kind schema check run at the
// publish boundary.
type Payload interface {
	EventKind() Kind
	Validate() error
}

// Correlatable is a payload that carries a request id matching an eventual
// KindResponse event. WithCorrelationID returns a copy with the id set, so
// the gateway can assign generated ids without mutating the caller's value.
type Correlatable interface {
	Payload
	CorrelationID() string
	WithCorrelationID(id string) Correlatable
}

// Event is a single published message. Immutable once published: handlers
// receive the same envelope by value and must not retain mutable references
// into the payload.
type Event struct {
	Source    string
	Kind      Kind
	Payload   Payload
	Timestamp int64 // unix milliseconds at publish time
}

// ─── Payload structs, one per kind ───────────────────────────────────────────

// ChatRequestPayload asks the chat motor to answer a user message.
type ChatRequestPayload struct {
	RequestID string            `json:"requestId"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

func (p ChatRequestPayload) EventKind() Kind { return KindChatRequest }

func (p ChatRequestPayload) Validate() error {
	if p.Message == "" {
		return fmt.Errorf("chat request: message is required")
	}
	return nil
}

func (p ChatRequestPayload) CorrelationID() string { return p.RequestID }

func (p ChatRequestPayload) WithCorrelationID(id string) Correlatable {
	p.RequestID = id
	return p
}

// ResponsePayload answers a correlated request. Exactly one of Data or
// Error is set; Status qualifies Error with an HTTP-shaped status code.
type ResponsePayload struct {
	RequestID string         `json:"requestId"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Status    int            `json:"status,omitempty"`
}

func (p ResponsePayload) EventKind() Kind { return KindResponse }

func (p ResponsePayload) Validate() error {
	if p.RequestID == "" {
		return fmt.Errorf("response: requestId is required")
	}
	if p.Error != "" && p.Data != nil {
		return fmt.Errorf("response: data and error are mutually exclusive")
	}
	return nil
}

func (p ResponsePayload) CorrelationID() string { return p.RequestID }

func (p ResponsePayload) WithCorrelationID(id string) Correlatable {
	p.RequestID = id
	return p
}

// FileChangedPayload is one raw filesystem change, keyed by path.
type FileChangedPayload struct {
	Path string `json:"path"`
	Op   string `json:"op"` // "create" | "write" | "remove" | "rename"
}

func (p FileChangedPayload) EventKind() Kind { return KindFileChanged }

func (p FileChangedPayload) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("file changed: path is required")
	}
	return nil
}

// TaskFlushedPayload records a debounced batch entering the priority queue.
type TaskFlushedPayload struct {
	Key        string `json:"key"`
	Score      int    `json:"score"`
	QueueDepth int    `json:"queueDepth"`
}

func (p TaskFlushedPayload) EventKind() Kind { return KindTaskFlushed }

func (p TaskFlushedPayload) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("task flushed: key is required")
	}
	return nil
}

// TaskDispatchedPayload records one executor invocation outcome.
type TaskDispatchedPayload struct {
	Key      string `json:"key"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

func (p TaskDispatchedPayload) EventKind() Kind { return KindTaskDispatched }

func (p TaskDispatchedPayload) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("task dispatched: key is required")
	}
	return nil
}

// ProviderStatusPayload is an ambient LLM provider health notice.
type ProviderStatusPayload struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latencyMs"`
}

func (p ProviderStatusPayload) EventKind() Kind { return KindProviderStatus }

func (p ProviderStatusPayload) Validate() error {
	if p.Provider == "" {
		return fmt.Errorf("provider status: provider is required")
	}
	return nil
}
