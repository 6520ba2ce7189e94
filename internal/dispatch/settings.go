package dispatch

import (
	"context"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/view"
)

// DefaultNutanixPort is used when a Nutanix configuration carries no port.
const DefaultNutanixPort = 9440

// LoadSettings reads the provider configuration. The enabled flags come from
// the live provider status, which is authoritative over the stored document.
func (d *Dispatcher) LoadSettings(ctx context.Context) (*domain.AppSettings, error) {
	fl := failure{action: "settings_load", prefix: "Error: ", generic: "Error loading settings"}

	settings, err := d.backend.Settings(ctx)
	if err != nil {
		return nil, d.fail(ctx, fl, err)
	}
	status, err := d.backend.ProviderStatus(ctx)
	if err != nil {
		return nil, d.fail(ctx, fl, err)
	}

	settings.VMware.Enabled = false
	settings.Nutanix.Enabled = false
	for _, p := range status {
		switch p.ID {
		case domain.ProviderVMware:
			settings.VMware.Enabled = p.Enabled
		case domain.ProviderNutanix:
			settings.Nutanix.Enabled = p.Enabled
		}
	}
	if settings.DefaultProvider == "" {
		settings.DefaultProvider = domain.ProviderVMware
	}
	if settings.Nutanix.Port == 0 {
		settings.Nutanix.Port = DefaultNutanixPort
	}
	d.observe("settings_load", OutcomeSucceeded)
	return settings, nil
}

// UpdateVMwareConfig replaces the VMware configuration.
func (d *Dispatcher) UpdateVMwareConfig(ctx context.Context, cfg domain.VMwareSettings) error {
	return d.updateProviderConfig(ctx, domain.ProviderVMware, cfg)
}

// UpdateNutanixConfig replaces the Nutanix configuration.
func (d *Dispatcher) UpdateNutanixConfig(ctx context.Context, cfg domain.NutanixSettings) error {
	if cfg.Port <= 0 {
		cfg.Port = DefaultNutanixPort
	}
	return d.updateProviderConfig(ctx, domain.ProviderNutanix, cfg)
}

func (d *Dispatcher) updateProviderConfig(ctx context.Context, provider domain.ProviderID, cfg any) error {
	done := view.Begin(d.loading)
	defer done()

	msg, err := d.backend.UpdateProviderConfig(ctx, provider, cfg)
	if err != nil {
		return d.fail(ctx, failure{action: "settings_update", prefix: "Error: ", generic: "Error updating configuration"}, err)
	}
	d.succeed("settings_update", orDefault(msg, "Configuration updated"))
	_, _ = d.LoadSettings(ctx)
	return nil
}

// SetDefaultProvider changes the default provider.
func (d *Dispatcher) SetDefaultProvider(ctx context.Context, provider domain.ProviderID) error {
	fl := failure{action: "default_provider", prefix: "Error: ", generic: "Error updating settings"}
	if _, ok := domain.ParseProviderID(string(provider)); !ok {
		return d.fail(ctx, fl, apperrors.ErrInvalidProviderf(string(provider)))
	}
	if _, err := d.backend.SetDefaultProvider(ctx, provider); err != nil {
		return d.fail(ctx, fl, err)
	}
	d.succeed("default_provider", "Default provider updated successfully")
	return nil
}
