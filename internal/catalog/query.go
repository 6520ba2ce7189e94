package catalog

import (
	"context"
	"time"

	"vmdash.io/vmdash/internal/domain"
)

// Providers returns the cached providers.
func (c *Catalog) Providers() []domain.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Provider(nil), c.providers...)
}

// Provider looks up one cached provider.
func (c *Catalog) Provider(id domain.ProviderID) (domain.Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.providers {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Provider{}, false
}

// VMs returns the cached VM list.
func (c *Catalog) VMs() []domain.VirtualMachine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.VirtualMachine(nil), c.vms...)
}

// FilterVMs returns the cached VMs on provider; empty means all.
func (c *Catalog) FilterVMs(provider domain.ProviderID) []domain.VirtualMachine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.FilterByProvider(c.vms, provider)
}

// FindVM looks up a cached VM by name, optionally scoped to a provider.
func (c *Catalog) FindVM(name string, provider domain.ProviderID) (domain.VirtualMachine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, vm := range c.vms {
		if vm.Name == name && (provider == "" || vm.Hypervisor == provider) {
			return vm, true
		}
	}
	return domain.VirtualMachine{}, false
}

// Stats summarizes the cached VM list.
func (c *Catalog) Stats() domain.VMStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ComputeStats(c.vms)
}

// CombinedTemplates returns every template name annotated with each provider.
func (c *Catalog) CombinedTemplates() []domain.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Template(nil), c.templates...)
}

// TemplateNames returns the raw template names.
func (c *Catalog) TemplateNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.templateNames...)
}

// Clusters returns the cluster names for provider.
func (c *Catalog) Clusters(provider domain.ProviderID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clusters.For(provider)
}

// Networks returns the network names for provider.
func (c *Catalog) Networks(provider domain.ProviderID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networks.For(provider)
}

// Snapshot is a consistent copy of the whole cache.
type Snapshot struct {
	Providers []domain.Provider             `json:"providers"`
	VMs       []domain.VirtualMachine       `json:"vms"`
	Stats     domain.VMStats                `json:"stats"`
	Templates []domain.Template             `json:"templates"`
	Clusters  domain.ResourceSets           `json:"clusters"`
	Networks  domain.ResourceSets           `json:"networks"`
	Sequences map[domain.Resource]uint64    `json:"sequences"`
	LoadedAt  map[domain.Resource]time.Time `json:"loaded_at"`
}

// Snapshot copies the cache under one read lock.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seqs := make(map[domain.Resource]uint64, len(c.applied))
	for k, v := range c.applied {
		seqs[k] = v
	}
	loaded := make(map[domain.Resource]time.Time, len(c.loadedAt))
	for k, v := range c.loadedAt {
		loaded[k] = v
	}
	return Snapshot{
		Providers: append([]domain.Provider(nil), c.providers...),
		VMs:       append([]domain.VirtualMachine(nil), c.vms...),
		Stats:     domain.ComputeStats(c.vms),
		Templates: append([]domain.Template(nil), c.templates...),
		Clusters:  c.clusters.Clone(),
		Networks:  c.networks.Clone(),
		Sequences: seqs,
		LoadedAt:  loaded,
	}
}

// Reset empties the cache, for session teardown, and publishes
// EventSessionEnded so dependents drop what they derived from it. Sequence
// numbers keep counting so completions issued before the reset are still
// discarded.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.providers = nil
	c.vms = nil
	c.templateNames = nil
	c.templates = nil
	c.clusters = domain.ResourceSets{}
	c.networks = domain.ResourceSets{}
	for r, seq := range c.issued {
		c.applied[r] = seq
	}
	c.loadedAt = make(map[domain.Resource]time.Time)
	c.mu.Unlock()

	_ = c.events.Dispatch(context.Background(), domain.NewChangeEvent(domain.EventSessionEnded, "", 0, 0))
}
