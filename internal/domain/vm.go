package domain

import (
	"fmt"
	"strings"
)

// VMState is the power state reported by the backend.
type VMState string

const (
	VMStateRunning   VMState = "running"
	VMStateStopped   VMState = "stopped"
	VMStateSuspended VMState = "suspended"
	VMStateUnknown   VMState = "unknown"
)

// VirtualMachine is a VM as listed by the backend. It is never mutated locally;
// the catalog replaces the whole list after every lifecycle action.
type VirtualMachine struct {
	Name       string     `json:"name"`
	UUID       string     `json:"uuid,omitempty"`
	Hypervisor ProviderID `json:"hypervisor"`
	State      VMState    `json:"state"`
	CPU        int        `json:"cpu"`
	RAM        int        `json:"ram"`
	Disk       int        `json:"disk,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Cluster    string     `json:"cluster,omitempty"`
}

// IsRunning compares the state case-insensitively.
func (vm VirtualMachine) IsRunning() bool {
	return strings.EqualFold(string(vm.State), string(VMStateRunning))
}

// Key identifies a VM; names are only unique per provider.
func (vm VirtualMachine) Key() string {
	return string(vm.Hypervisor) + "/" + vm.Name
}

// Template is a clone source. Identity is (Name, Provider).
type Template struct {
	Name     string     `json:"name"`
	Provider ProviderID `json:"provider"`
}

// Label is the display text, "name (provider)".
func (t Template) Label() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Provider)
}

// CombineTemplates annotates every name with every known provider, name-major,
// since the templates endpoint does not say which provider owns a name.
func CombineTemplates(names []string) []Template {
	out := make([]Template, 0, len(names)*len(KnownProviders))
	for _, name := range names {
		for _, p := range KnownProviders {
			out = append(out, Template{Name: name, Provider: p})
		}
	}
	return out
}

// ResourceSets maps a provider to a flat list of names (clusters or networks).
type ResourceSets map[ProviderID][]string

// For returns a copy of the names for provider.
func (r ResourceSets) For(provider ProviderID) []string {
	names := r[provider]
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Clone deep-copies the sets.
func (r ResourceSets) Clone() ResourceSets {
	if r == nil {
		return nil
	}
	out := make(ResourceSets, len(r))
	for k, v := range r {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// VMStats is the dashboard summary.
type VMStats struct {
	Total      int                `json:"total"`
	Running    int                `json:"running"`
	Stopped    int                `json:"stopped"`
	ByProvider map[ProviderID]int `json:"by_provider"`
}

// ComputeStats counts VMs. Suspended and unknown states count toward Total only.
func ComputeStats(vms []VirtualMachine) VMStats {
	stats := VMStats{ByProvider: make(map[ProviderID]int, len(KnownProviders))}
	for _, p := range KnownProviders {
		stats.ByProvider[p] = 0
	}
	for _, vm := range vms {
		stats.Total++
		switch {
		case vm.IsRunning():
			stats.Running++
		case strings.EqualFold(string(vm.State), string(VMStateStopped)):
			stats.Stopped++
		}
		stats.ByProvider[vm.Hypervisor]++
	}
	return stats
}

// FilterByProvider returns the VMs on provider; an empty provider returns all.
func FilterByProvider(vms []VirtualMachine, provider ProviderID) []VirtualMachine {
	if provider == "" {
		return append([]VirtualMachine(nil), vms...)
	}
	out := make([]VirtualMachine, 0, len(vms))
	for _, vm := range vms {
		if vm.Hypervisor == provider {
			out = append(out, vm)
		}
	}
	return out
}

// Action is a VM lifecycle command.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionDelete  Action = "delete"
	ActionConsole Action = "console"
)

// ParseAction validates a lifecycle action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionStart, ActionStop, ActionRestart, ActionDelete, ActionConsole:
		return a, true
	default:
		return "", false
	}
}

// IsPower reports whether the action is start, stop or restart.
func (a Action) IsPower() bool {
	return a == ActionStart || a == ActionStop || a == ActionRestart
}

// Default clone and create sizing, matching the backend defaults.
const (
	DefaultCPU    = 2
	DefaultRAMMB  = 2048
	DefaultDiskGB = 20
)

// CloneRequest is the body of POST /api/vms/clone.
type CloneRequest struct {
	Name     string     `json:"vm_name"`
	SourceVM string     `json:"source_vm"`
	Provider ProviderID `json:"provider"`
	CPU      int        `json:"cpu"`
	RAM      int        `json:"ram"`
	Disk     int        `json:"disk"`
	Cluster  string     `json:"cluster,omitempty"`
	Network  string     `json:"network,omitempty"`
}

// CreateRequest is the body of POST /api/vms.
type CreateRequest struct {
	Name     string     `json:"vm_name"`
	Provider ProviderID `json:"provider"`
	CPU      int        `json:"cpu"`
	RAM      int        `json:"ram"`
	Disk     int        `json:"disk"`
	OSType   string     `json:"os_type,omitempty"`
	Template string     `json:"template,omitempty"`
	Cluster  string     `json:"cluster,omitempty"`
	Network  string     `json:"network,omitempty"`
}

// ConsoleType distinguishes browser consoles from server-launched viewers.
type ConsoleType string

const (
	ConsoleWeb    ConsoleType = "web"
	ConsoleNative ConsoleType = "native"
)

// ConsoleResult is the console endpoint payload.
type ConsoleResult struct {
	Type         ConsoleType `json:"console_type"`
	URL          string      `json:"console_url,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
	Message      string      `json:"message,omitempty"`
}
