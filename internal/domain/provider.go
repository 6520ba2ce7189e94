package domain

import (
	"sort"
	"strings"
)

// ProviderID identifies a hypervisor integration.
type ProviderID string

const (
	ProviderVMware  ProviderID = "vmware"
	ProviderNutanix ProviderID = "nutanix"
)

// KnownProviders lists the providers in display order.
var KnownProviders = []ProviderID{ProviderVMware, ProviderNutanix}

// ParseProviderID normalizes s and reports whether it names a known provider.
func ParseProviderID(s string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownProviders {
		if id == known {
			return id, true
		}
	}
	return "", false
}

func (p ProviderID) String() string { return string(p) }

// DisplayName is the product name shown in provider selectors.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderVMware:
		return "VMware Workstation"
	case ProviderNutanix:
		return "Nutanix AHV"
	default:
		return string(p)
	}
}

// HasPlacementOptions reports whether clone/create forms for this provider
// expose cluster and network pickers.
func (p ProviderID) HasPlacementOptions() bool {
	return p == ProviderNutanix
}

// ProviderStatus is the derived availability of a provider.
type ProviderStatus string

const (
	ProviderReady        ProviderStatus = "Ready"
	ProviderNotConnected ProviderStatus = "Not Connected"
	ProviderDisabled     ProviderStatus = "Disabled"
)

// Provider is a hypervisor backend as reported by the status endpoint.
// Connected is only meaningful when Enabled: disabled providers are never dialed.
type Provider struct {
	ID        ProviderID `json:"id"`
	Enabled   bool       `json:"enabled"`
	Connected bool       `json:"connected"`
}

// Status derives the provider availability.
func (p Provider) Status() ProviderStatus {
	switch {
	case !p.Enabled:
		return ProviderDisabled
	case !p.Connected:
		return ProviderNotConnected
	default:
		return ProviderReady
	}
}

// Online is the short label used on the dashboard: Online, Offline or Disabled.
func (p Provider) Online() string {
	switch p.Status() {
	case ProviderReady:
		return "Online"
	case ProviderNotConnected:
		return "Offline"
	default:
		return "Disabled"
	}
}

// SortProviders orders providers by KnownProviders, unknown ids last by name.
func SortProviders(providers []Provider) {
	rank := func(id ProviderID) int {
		for i, known := range KnownProviders {
			if id == known {
				return i
			}
		}
		return len(KnownProviders)
	}
	sort.SliceStable(providers, func(i, j int) bool {
		ri, rj := rank(providers[i].ID), rank(providers[j].ID)
		if ri != rj {
			return ri < rj
		}
		return providers[i].ID < providers[j].ID
	})
}
