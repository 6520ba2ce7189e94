package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of catalog change event.
type EventType string

const (
	EventProvidersReloaded EventType = "PROVIDERS_RELOADED"
	EventVMsReloaded       EventType = "VMS_RELOADED"
	EventTemplatesReloaded EventType = "TEMPLATES_RELOADED"
	EventClustersReloaded  EventType = "CLUSTERS_RELOADED"
	EventNetworksReloaded  EventType = "NETWORKS_RELOADED"
	EventReloadFailed      EventType = "RELOAD_FAILED"
	EventSessionEnded      EventType = "SESSION_ENDED"

	// EventAny registers a handler for every event type.
	EventAny EventType = "*"
)

// Resource names a catalog collection.
type Resource string

const (
	ResourceProviders Resource = "providers"
	ResourceVMs       Resource = "vms"
	ResourceTemplates Resource = "templates"
	ResourceClusters  Resource = "clusters"
	ResourceNetworks  Resource = "networks"
)

// ReloadedEvent maps a resource to its success event type.
func (r Resource) ReloadedEvent() EventType {
	switch r {
	case ResourceProviders:
		return EventProvidersReloaded
	case ResourceVMs:
		return EventVMsReloaded
	case ResourceTemplates:
		return EventTemplatesReloaded
	case ResourceClusters:
		return EventClustersReloaded
	case ResourceNetworks:
		return EventNetworksReloaded
	default:
		return EventReloadFailed
	}
}

// ChangeEvent describes one applied (or failed) catalog reload. Handlers receive
// it explicitly rather than reading ambient state.
type ChangeEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Resource  Resource  `json:"resource"`
	Sequence  uint64    `json:"sequence"`
	Count     int       `json:"count"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChangeEvent stamps an event with a UUIDv7 id.
func NewChangeEvent(eventType EventType, resource Resource, seq uint64, count int) *ChangeEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &ChangeEvent{
		EventID:   id.String(),
		EventType: eventType,
		Resource:  resource,
		Sequence:  seq,
		Count:     count,
		CreatedAt: time.Now(),
	}
}
