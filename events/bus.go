package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler consumes one published event. Handlers may block on I/O; a
// returned error is logged and does not stop the chain.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous publish/subscribe dispatcher. Within one event,
// handlers run in registration order; chains for distinct event types
// are independent of each other.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// defaultBus is the process-wide bus. Subscribers are resolved at
// startup; publication never mutates registration.
var defaultBus = NewBus()

// Default returns the process-wide Bus.
func Default() *Bus { return defaultBus }

// Subscribe appends handler to the chain for the named event type.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish invokes the handler chain for event's type, in registration
// order, on the caller's goroutine. A handler error or panic is logged
// and the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	var chain = b.handlers[event.Name()]
	b.mu.RUnlock()

	for i, handler := range chain {
		b.invoke(ctx, event, i, handler)
	}
}

func (b *Bus) invoke(ctx context.Context, event Event, index int, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"event":   event.Name(),
				"eventId": event.EventID(),
				"handler": index,
				"panic":   r,
			}).Error("event handler panicked")
		}
	}()

	if err := handler(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"event":   event.Name(),
			"eventId": event.EventID(),
			"handler": index,
			"error":   err,
		}).Error("event handler failed")
	}
}
