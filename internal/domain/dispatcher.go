package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/pkg/logger"
)

// EventHandler processes a catalog change event.
type EventHandler func(ctx context.Context, event *ChangeEvent) error

// EventDispatcher routes change events to registered handlers.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for a specific event type, or EventAny.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch dispatches an event to all registered handlers.
// Handlers run sequentially; a failing handler is logged and the rest still run.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *ChangeEvent) error {
	d.mu.RLock()
	handlers := make([]EventHandler, 0, len(d.handlers[event.EventType])+len(d.handlers[EventAny]))
	handlers = append(handlers, d.handlers[event.EventType]...)
	handlers = append(handlers, d.handlers[EventAny]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers registered for event type",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}
