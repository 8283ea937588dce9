// Package chat — Task 5.2: Chat motor.
// The responder side of chat routing: subscribes to chat:request events,
// invokes the LLM provider (an opaque, slow, fallible collaborator), and
// answers on the canonical response kind echoing the request id. The
// provider call runs off the publisher's goroutine so a slow generation
// never stalls bus delivery; a provider failure becomes a downstream error
// in the response, never a handler fault.
package chat

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
	"github.com/synapselabs/synapse/internal/infra/llm"
)

const source = "motor"

// systemPrompt frames every conversation the motor answers.
const systemPrompt = "You are Synapse, a concise assistant embedded in a developer workspace."

// Motor answers chat requests on the bus.
type Motor struct {
	bus    *eventbus.Bus
	router *llm.Router
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subID  eventbus.SubscriptionID

	// health is the last observed provider state: 0 unknown, 1 up, 2 down.
	// A provider:status event is published only on transitions.
	health atomic.Int32
}

const (
	healthUnknown int32 = iota
	healthUp
	healthDown
)

// NewMotor creates a Motor using router to pick the provider per request.
func NewMotor(bus *eventbus.Bus, router *llm.Router, log zerolog.Logger) *Motor {
	return &Motor{
		bus:    bus,
		router: router,
		log:    log.With().Str("component", "motor").Logger(),
	}
}

// Start subscribes the motor to chat:request.
func (m *Motor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.subID = m.bus.On(eventbus.KindChatRequest, m.onRequest)
}

// Stop unsubscribes. In-flight generations finish against a cancelled
// context and answer with a downstream error.
func (m *Motor) Stop() {
	m.bus.Off(m.subID)
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Motor) onRequest(evt eventbus.Event) {
	req, ok := evt.Payload.(eventbus.ChatRequestPayload)
	if !ok {
		return
	}
	// The generation call is the system's asynchronous boundary: it leaves
	// the publisher's goroutine here.
	go m.handle(req)
}

func (m *Motor) handle(req eventbus.ChatRequestPayload) {
	provider, err := m.router.Route(m.ctx)
	if err != nil {
		m.respondError(req.RequestID, err.Error(), http.StatusBadGateway)
		return
	}

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	for k, v := range req.Context {
		messages = append(messages, llm.Message{Role: "system", Content: k + ": " + v})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	started := time.Now()
	resp, err := provider.ChatCompletion(m.ctx, llm.ChatRequest{Messages: messages})
	elapsed := time.Since(started)
	meta := provider.ModelInfo()
	if err != nil {
		m.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("generation failed")
		m.noteHealth(meta, false, elapsed)
		m.respondError(req.RequestID, err.Error(), http.StatusBadGateway)
		return
	}
	m.noteHealth(meta, true, elapsed)
	m.respond(eventbus.ResponsePayload{
		RequestID: req.RequestID,
		Data: map[string]any{
			"reply":      resp.Content,
			"model":      meta.ID,
			"provider":   meta.Provider,
			"stopReason": resp.StopReason,
		},
	})
}

// noteHealth publishes provider:status when the observed provider state
// flips. Steady-state calls stay silent so the bus is not flooded.
func (m *Motor) noteHealth(meta llm.ModelMeta, up bool, elapsed time.Duration) {
	state := healthDown
	if up {
		state = healthUp
	}
	if m.health.Swap(state) == state {
		return
	}
	err := m.bus.Publish(source, eventbus.KindProviderStatus, eventbus.ProviderStatusPayload{
		Provider:  meta.Provider,
		Model:     meta.ID,
		Healthy:   up,
		LatencyMS: elapsed.Milliseconds(),
	})
	if err != nil {
		m.log.Error().Err(err).Msg("provider status rejected at publish boundary")
	}
}

func (m *Motor) respondError(requestID, msg string, status int) {
	m.respond(eventbus.ResponsePayload{
		RequestID: requestID,
		Error:     msg,
		Status:    status,
	})
}

func (m *Motor) respond(p eventbus.ResponsePayload) {
	if err := m.bus.Publish(source, eventbus.KindResponse, p); err != nil {
		m.log.Error().Err(err).Str("request_id", p.RequestID).Msg("response rejected at publish boundary")
	}
}
