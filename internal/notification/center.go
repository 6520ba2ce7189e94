// Package notification implements the transient notification center.
//
// Notifications are additive: each lives until it expires (5s by default) or
// is dismissed. The center is a pure projection; components only ever call
// Notify and never read it back. Sinks render entries (terminal, log,
// websocket) and are told when an entry goes away.
package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/pkg/logger"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 5 * time.Second

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one visible entry.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RemovalReason says why an entry left the center.
type RemovalReason string

const (
	RemovedExpired   RemovalReason = "expired"
	RemovedDismissed RemovalReason = "dismissed"
	RemovedClosed    RemovalReason = "closed"
)

// Notifier is the only surface other components depend on.
type Notifier interface {
	Notify(message string, severity Severity) string
}

// Sink renders notifications.
type Sink interface {
	Show(n Notification)
	Remove(id string, reason RemovalReason)
}

type entry struct {
	n     Notification
	timer *time.Timer
}

// Center holds the active notifications and fans them out to sinks.
type Center struct {
	ttl time.Duration

	mu     sync.Mutex
	order  []string
	active map[string]*entry
	sinks  []Sink
	closed bool
}

// NewCenter creates a center. A non-positive ttl uses DefaultTTL.
func NewCenter(ttl time.Duration, sinks ...Sink) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:    ttl,
		active: make(map[string]*entry),
		sinks:  sinks,
	}
}

// AddSink attaches a sink. Already active entries are replayed to it.
func (c *Center) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	replay := c.snapshotLocked()
	c.mu.Unlock()

	for _, n := range replay {
		s.Show(n)
	}
}

// Notify adds an entry and returns its id. After Close it only logs.
func (c *Center) Notify(message string, severity Severity) string {
	now := time.Now()
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Debug("Notification after close", zap.String("message", message))
		return n.ID
	}
	e := &entry{n: n}
	e.timer = time.AfterFunc(c.ttl, func() { c.remove(n.ID, RemovedExpired) })
	c.active[n.ID] = e
	c.order = append(c.order, n.ID)
	sinks := append([]Sink(nil), c.sinks...)
	c.mu.Unlock()

	for _, s := range sinks {
		s.Show(n)
	}
	return n.ID
}

// Info, Success, Warning and Error are shorthands for Notify.
func (c *Center) Info(message string) string    { return c.Notify(message, SeverityInfo) }
func (c *Center) Success(message string) string { return c.Notify(message, SeveritySuccess) }
func (c *Center) Warning(message string) string { return c.Notify(message, SeverityWarning) }
func (c *Center) Error(message string) string   { return c.Notify(message, SeverityError) }

// Dismiss removes an entry immediately, as a click would.
func (c *Center) Dismiss(id string) bool {
	return c.remove(id, RemovedDismissed)
}

func (c *Center) remove(id string, reason RemovalReason) bool {
	c.mu.Lock()
	e, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e.timer.Stop()
	delete(c.active, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	sinks := append([]Sink(nil), c.sinks...)
	c.mu.Unlock()

	for _, s := range sinks {
		s.Remove(id, reason)
	}
	return true
}

// Active returns the visible entries, oldest first. It exists for renderers
// and tests.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Center) snapshotLocked() []Notification {
	out := make([]Notification, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.active[id].n)
	}
	return out
}

// Close stops all timers and removes every entry.
func (c *Center) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ids := append([]string(nil), c.order...)
	for _, id := range ids {
		c.active[id].timer.Stop()
	}
	c.active = make(map[string]*entry)
	c.order = nil
	sinks := append([]Sink(nil), c.sinks...)
	c.mu.Unlock()

	for _, id := range ids {
		for _, s := range sinks {
			s.Remove(id, RemovedClosed)
		}
	}
}
