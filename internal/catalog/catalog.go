// Package catalog caches the backend's providers, VMs, templates, clusters
// and networks.
//
// Each resource has its own reload. A reload replaces its collection as a
// whole and never merges. Reloads carry a per-resource sequence number: a
// completion older than the latest applied one is discarded, so a slow stale
// response cannot overwrite a newer one. Failures leave the cache untouched
// and are reported through the notifier, except AuthExpired which goes to
// the session guard.
package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/pkg/worker"
	"vmdash.io/vmdash/internal/view"
)

// Backend is the part of the API the catalog reads.
type Backend interface {
	ProviderStatus(ctx context.Context) ([]domain.Provider, error)
	Providers(ctx context.Context) ([]domain.ProviderID, error)
	VMs(ctx context.Context, provider domain.ProviderID) ([]domain.VirtualMachine, error)
	Templates(ctx context.Context) ([]string, error)
	Clusters(ctx context.Context) (domain.ResourceSets, error)
	Networks(ctx context.Context) (domain.ResourceSets, error)
}

// AuthHandler receives AuthExpired errors; it reports whether it took one.
type AuthHandler interface {
	HandleAuthExpired(ctx context.Context, err error) bool
}

// Outcome of a reload, as reported to an Observer.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeFailed  Outcome = "failed"
)

// Observer is told about every finished reload.
type Observer interface {
	ReloadFinished(resource domain.Resource, elapsed time.Duration, outcome Outcome)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLoading sets the busy indicator used by VM and dashboard loads.
func WithLoading(l view.Loading) Option {
	return func(c *Catalog) { c.loading = l }
}

// WithObserver reports reload outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Catalog) { c.observer = o }
}

// Catalog is the in-memory resource cache.
type Catalog struct {
	backend  Backend
	notifier notification.Notifier
	auth     AuthHandler
	pool     *worker.Pool
	loading  view.Loading
	events   *domain.EventDispatcher
	observer Observer
	log      *zap.Logger

	mu            sync.RWMutex
	providers     []domain.Provider
	vms           []domain.VirtualMachine
	templateNames []string
	templates     []domain.Template
	clusters      domain.ResourceSets
	networks      domain.ResourceSets
	issued        map[domain.Resource]uint64
	applied       map[domain.Resource]uint64
	loadedAt      map[domain.Resource]time.Time
}

// New creates an empty catalog. pool runs LoadAll's concurrent reloads.
func New(backend Backend, notifier notification.Notifier, auth AuthHandler, pool *worker.Pool, opts ...Option) *Catalog {
	c := &Catalog{
		backend:  backend,
		notifier: notifier,
		auth:     auth,
		pool:     pool,
		loading:  view.NopLoading{},
		events:   domain.NewEventDispatcher(),
		log:      logger.Named("catalog"),
		clusters: domain.ResourceSets{},
		networks: domain.ResourceSets{},
		issued:   make(map[domain.Resource]uint64),
		applied:  make(map[domain.Resource]uint64),
		loadedAt: make(map[domain.Resource]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a handler for every change event.
func (c *Catalog) Subscribe(handler domain.EventHandler) {
	c.events.Register(domain.EventAny, handler)
}

// begin issues the next sequence number for resource.
func (c *Catalog) begin(resource domain.Resource) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[resource]++
	return c.issued[resource]
}

// commit applies fn if seq is newer than the latest applied sequence for
// resource. fn runs under the write lock.
func (c *Catalog) commit(resource domain.Resource, seq uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.applied[resource] {
		return false
	}
	fn()
	c.applied[resource] = seq
	c.loadedAt[resource] = time.Now()
	return true
}

// finish records a successful fetch: applied or discarded as stale.
func (c *Catalog) finish(ctx context.Context, resource domain.Resource, seq uint64, count int, start time.Time, fn func()) {
	if !c.commit(resource, seq, fn) {
		c.log.Debug("Discarding stale reload",
			zap.String("resource", string(resource)),
			zap.Uint64("sequence", seq),
		)
		c.observe(resource, start, OutcomeStale)
		return
	}
	c.observe(resource, start, OutcomeApplied)
	_ = c.events.Dispatch(ctx, domain.NewChangeEvent(resource.ReloadedEvent(), resource, seq, count))
}

// fail reports a reload error at the catalog boundary.
func (c *Catalog) fail(ctx context.Context, resource domain.Resource, seq uint64, start time.Time, err error, message string) error {
	c.observe(resource, start, OutcomeFailed)
	if c.auth != nil && c.auth.HandleAuthExpired(ctx, err) {
		return err
	}
	c.log.Warn("Reload failed", zap.String("resource", string(resource)), zap.Error(err))
	if message != "" {
		c.notifier.Notify(message, notification.SeverityError)
	}
	event := domain.NewChangeEvent(domain.EventReloadFailed, resource, seq, 0)
	event.Error = err.Error()
	_ = c.events.Dispatch(ctx, event)
	return err
}

func (c *Catalog) observe(resource domain.Resource, start time.Time, outcome Outcome) {
	if c.observer != nil {
		c.observer.ReloadFinished(resource, time.Since(start), outcome)
	}
}
