package catalog

import (
	"context"
	"errors"
	"time"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/view"
)

// User-facing failure messages.
const (
	msgProvidersFailed = "Error loading providers"
	msgVMsFailed       = "Error loading VM list"
	msgTemplatesFailed = "Failed to load source VMs"
	msgClustersFailed  = "Error loading clusters"
	msgNetworksFailed  = "Error loading networks"
	msgDashboardFailed = "Error loading dashboard data"
)

// ReloadProviders fetches the provider list and status and replaces the
// provider cache. Providers listed without a status entry are disabled.
func (c *Catalog) ReloadProviders(ctx context.Context) error {
	start := time.Now()
	seq := c.begin(domain.ResourceProviders)

	names, err := c.backend.Providers(ctx)
	if err != nil {
		return c.fail(ctx, domain.ResourceProviders, seq, start, err, msgProvidersFailed)
	}
	status, err := c.backend.ProviderStatus(ctx)
	if err != nil {
		return c.fail(ctx, domain.ResourceProviders, seq, start, err, msgProvidersFailed)
	}

	providers := mergeProviders(names, status)
	c.finish(ctx, domain.ResourceProviders, seq, len(providers), start, func() {
		c.providers = providers
	})
	return nil
}

func mergeProviders(names []domain.ProviderID, status []domain.Provider) []domain.Provider {
	byID := make(map[domain.ProviderID]domain.Provider, len(status))
	for _, p := range status {
		byID[p.ID] = p
	}
	out := make([]domain.Provider, 0, len(names)+len(status))
	seen := make(map[domain.ProviderID]bool, len(names))
	for _, id := range names {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := byID[id]
		if !ok {
			p = domain.Provider{ID: id}
		}
		out = append(out, p)
	}
	for _, p := range status {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	domain.SortProviders(out)
	return out
}

// ReloadVMs fetches the full VM list and replaces the VM cache. It runs
// after every lifecycle action.
func (c *Catalog) ReloadVMs(ctx context.Context) error {
	done := view.Begin(c.loading)
	defer done()

	start := time.Now()
	seq := c.begin(domain.ResourceVMs)
	vms, err := c.backend.VMs(ctx, "")
	if err != nil {
		return c.fail(ctx, domain.ResourceVMs, seq, start, err, msgVMsFailed)
	}
	c.finish(ctx, domain.ResourceVMs, seq, len(vms), start, func() {
		c.vms = vms
	})
	return nil
}

// ReloadTemplates fetches template names and rebuilds the combined view.
func (c *Catalog) ReloadTemplates(ctx context.Context) error {
	start := time.Now()
	seq := c.begin(domain.ResourceTemplates)
	names, err := c.backend.Templates(ctx)
	if err != nil {
		return c.fail(ctx, domain.ResourceTemplates, seq, start, err, msgTemplatesFailed)
	}
	combined := domain.CombineTemplates(names)
	c.finish(ctx, domain.ResourceTemplates, seq, len(combined), start, func() {
		c.templateNames = names
		c.templates = combined
	})
	return nil
}

// ReloadClusters replaces the cluster sets.
func (c *Catalog) ReloadClusters(ctx context.Context) error {
	start := time.Now()
	seq := c.begin(domain.ResourceClusters)
	sets, err := c.backend.Clusters(ctx)
	if err != nil {
		return c.fail(ctx, domain.ResourceClusters, seq, start, err, msgClustersFailed)
	}
	c.finish(ctx, domain.ResourceClusters, seq, countSets(sets), start, func() {
		c.clusters = sets
	})
	return nil
}

// ReloadNetworks replaces the network sets.
func (c *Catalog) ReloadNetworks(ctx context.Context) error {
	start := time.Now()
	seq := c.begin(domain.ResourceNetworks)
	sets, err := c.backend.Networks(ctx)
	if err != nil {
		return c.fail(ctx, domain.ResourceNetworks, seq, start, err, msgNetworksFailed)
	}
	c.finish(ctx, domain.ResourceNetworks, seq, countSets(sets), start, func() {
		c.networks = sets
	})
	return nil
}

func countSets(sets domain.ResourceSets) int {
	n := 0
	for _, names := range sets {
		n += len(names)
	}
	return n
}

// LoadAll populates everything the create/clone forms need. Providers then
// VMs run in order on one task; templates, clusters and networks run
// concurrently with that chain. Each reload is independent: a failure in one
// does not stop the others. The joined errors are informational; every one
// has already been reported.
func (c *Catalog) LoadAll(ctx context.Context) error {
	var (
		errProviders, errVMs, errTemplates, errClusters, errNetworks error
	)
	c.pool.Run(ctx,
		func(ctx context.Context) {
			errProviders = c.ReloadProviders(ctx)
			errVMs = c.ReloadVMs(ctx)
		},
		func(ctx context.Context) { errTemplates = c.ReloadTemplates(ctx) },
		func(ctx context.Context) { errClusters = c.ReloadClusters(ctx) },
		func(ctx context.Context) { errNetworks = c.ReloadNetworks(ctx) },
	)
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errProviders, errVMs, errTemplates, errClusters, errNetworks)
}

// LoadDashboard refreshes provider status and the VM list under a single
// loading indicator. Whatever succeeds is applied; one notification covers
// any failure.
func (c *Catalog) LoadDashboard(ctx context.Context) error {
	done := view.Begin(c.loading)
	defer done()

	start := time.Now()
	var errs []error

	seq := c.begin(domain.ResourceProviders)
	status, err := c.backend.ProviderStatus(ctx)
	if err != nil {
		errs = append(errs, c.fail(ctx, domain.ResourceProviders, seq, start, err, ""))
	} else {
		c.finish(ctx, domain.ResourceProviders, seq, len(status), start, func() {
			c.providers = status
		})
	}

	seq = c.begin(domain.ResourceVMs)
	vms, err := c.backend.VMs(ctx, "")
	if err != nil {
		errs = append(errs, c.fail(ctx, domain.ResourceVMs, seq, start, err, ""))
	} else {
		c.finish(ctx, domain.ResourceVMs, seq, len(vms), start, func() {
			c.vms = vms
		})
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if !c.sessionEnded(ctx, joined) {
		c.notifier.Notify(msgDashboardFailed, notification.SeverityError)
	}
	return joined
}

// sessionEnded reports whether err carries an AuthExpired already routed to
// the guard.
func (c *Catalog) sessionEnded(ctx context.Context, err error) bool {
	return c.auth != nil && c.auth.HandleAuthExpired(ctx, err)
}
