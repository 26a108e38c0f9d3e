// Package hooks dispatches request lifecycle events to registered handlers.
package hooks

import (
	"context"
	"sort"
	"sync"

	"github.com/soyeahso/maestro/internal/logging"
)

// Event names.
const (
	EventRequestReceived = "request_received"
	EventBeforeDispatch  = "before_dispatch"
	EventAfterDispatch   = "after_dispatch"
	EventResponderFailed = "responder_failed"
	EventQueryRejected   = "query_rejected"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventRequestReceived,
	EventBeforeDispatch,
	EventAfterDispatch,
	EventResponderFailed,
	EventQueryRejected,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and never stops
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager holds handler registrations. A nil *Manager is valid and drops
// every event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	wg       sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for event under name.
func (m *Manager) On(event, name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: h})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered under name for event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// Emit runs the handlers for event in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, p)
	}
}

// EmitAsync runs the handlers for event concurrently and returns at once.
// Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.call(ctx, h, p)
		}()
	}
}

// Wait blocks until handlers started by EmitAsync return.
func (m *Manager) Wait() {
	if m != nil {
		m.wg.Wait()
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("event", p.Event).Str("handler", h.name).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook handler error")
	}
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the sorted events that have at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, hs := range m.handlers {
		if len(hs) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
