package view

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"vmdash.io/vmdash/internal/domain"
)

// VMRow is one line of the VM table with the actions offered for it.
type VMRow struct {
	Name     string          `json:"name"`
	Provider string          `json:"provider"`
	State    domain.VMState  `json:"state"`
	CPU      int             `json:"cpu"`
	RAM      int             `json:"ram"`
	IP       string          `json:"ip_address"`
	Actions  []domain.Action `json:"actions"`
}

// Rows builds exactly one row per VM. A running VM offers Stop, any other
// state offers Start; Restart, Console and Delete are always offered.
func Rows(vms []domain.VirtualMachine) []VMRow {
	rows := make([]VMRow, 0, len(vms))
	for _, vm := range vms {
		power := domain.ActionStart
		if vm.IsRunning() {
			power = domain.ActionStop
		}
		ip := vm.IPAddress
		if ip == "" {
			ip = "N/A"
		}
		rows = append(rows, VMRow{
			Name:     vm.Name,
			Provider: strings.ToUpper(string(vm.Hypervisor)),
			State:    vm.State,
			CPU:      vm.CPU,
			RAM:      vm.RAM,
			IP:       ip,
			Actions:  []domain.Action{power, domain.ActionRestart, domain.ActionConsole, domain.ActionDelete},
		})
	}
	return rows
}

// Has reports whether the row offers action.
func (r VMRow) Has(action domain.Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// WriteVMTable renders rows as an aligned table.
func WriteVMTable(w io.Writer, rows []VMRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROVIDER\tSTATE\tCPU\tRAM\tIP\tACTIONS")
	for _, r := range rows {
		actions := make([]string, len(r.Actions))
		for i, a := range r.Actions {
			actions[i] = string(a)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Name, r.Provider, r.State, r.CPU, r.RAM, r.IP, strings.Join(actions, ","))
	}
	return tw.Flush()
}

// WriteVMDetails renders one VM as aligned key/value lines. Unknown values
// are shown as N/A.
func WriteVMDetails(w io.Writer, vm domain.VirtualMachine) error {
	orNA := func(v string) string {
		if v == "" {
			return "N/A"
		}
		return v
	}
	disk := "N/A"
	if vm.Disk > 0 {
		disk = fmt.Sprintf("%d GB", vm.Disk)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", vm.Name)
	fmt.Fprintf(tw, "Provider:\t%s\n", strings.ToUpper(string(vm.Hypervisor)))
	fmt.Fprintf(tw, "State:\t%s\n", vm.State)
	fmt.Fprintf(tw, "CPU:\t%d\n", vm.CPU)
	fmt.Fprintf(tw, "RAM:\t%d MB\n", vm.RAM)
	fmt.Fprintf(tw, "Disk:\t%s\n", disk)
	fmt.Fprintf(tw, "IP:\t%s\n", orNA(vm.IPAddress))
	fmt.Fprintf(tw, "Cluster:\t%s\n", orNA(vm.Cluster))
	return tw.Flush()
}

// WriteStats renders the dashboard counters.
func WriteStats(w io.Writer, s domain.VMStats) error {
	_, err := fmt.Fprintf(w,
		"Total VMs: %d\nRunning: %d\nStopped: %d\nVMware: %d\nNutanix: %d\n",
		s.Total, s.Running, s.Stopped,
		s.ByProvider[domain.ProviderVMware], s.ByProvider[domain.ProviderNutanix])
	return err
}

// ProviderStatusLines renders "VMWARE: Online" style lines.
func ProviderStatusLines(providers []domain.Provider) []string {
	lines := make([]string, 0, len(providers))
	for _, p := range providers {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(p.ID)), p.Online()))
	}
	return lines
}

// WriteProviderStatus renders ProviderStatusLines, one per line.
func WriteProviderStatus(w io.Writer, providers []domain.Provider) error {
	for _, line := range ProviderStatusLines(providers) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON renders v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
