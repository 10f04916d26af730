// Package events dispatches named runtime events to in-process observers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names emitted by the runtime.
const (
	ToolExecuted = "tool:executed"
	CacheHit     = "cache:hit"
	CacheMiss    = "cache:miss"
	ErrorRaised  = "error"
)

// Event is one emitted occurrence.
type Event struct {
	Name   string                 `json:"name"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	At     time.Time              `json:"at"`
}

// HandlerFunc observes events. Handlers run synchronously on the emitting
// goroutine and must not block; panics are recovered and logged.
type HandlerFunc func(Event)

// Bus fans events out to subscribers by name. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]HandlerFunc
	logger zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]HandlerFunc),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers fn for events named name.
func (b *Bus) Subscribe(name string, fn HandlerFunc) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], fn)
	b.mu.Unlock()
}

// Emit delivers an event to every subscriber of name. A panicking observer
// is logged and skipped; it never fails the emitting invocation.
func (b *Bus) Emit(name string, fields map[string]interface{}) {
	b.mu.RLock()
	handlers := append([]HandlerFunc(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	evt := Event{Name: name, Fields: fields, At: time.Now()}
	for _, fn := range handlers {
		b.dispatch(evt, fn)
	}
}

func (b *Bus) dispatch(evt Event, fn HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", evt.Name).
				Interface("panic", r).
				Msg("Event observer panicked")
		}
	}()
	fn(evt)
}
