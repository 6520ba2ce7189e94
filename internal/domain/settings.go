package domain

// VMwareSettings is the VMware Workstation provider configuration.
type VMwareSettings struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	VmrunPath          string `json:"vmrun_path,omitempty" yaml:"vmrun_path,omitempty"`
	TemplatesDirectory string `json:"templates_directory,omitempty" yaml:"templates_directory,omitempty"`
}

// NutanixSettings is the Nutanix AHV provider configuration. The password is
// write-only: the backend never returns it.
type NutanixSettings struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	PrismCentralIP string `json:"prism_central_ip,omitempty" yaml:"prism_central_ip,omitempty"`
	PrismElementIP string `json:"prism_element_ip,omitempty" yaml:"prism_element_ip,omitempty"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string `json:"password,omitempty" yaml:"-"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// AppSettings is the configuration document behind GET /api/config.
type AppSettings struct {
	DefaultProvider ProviderID      `json:"default_provider" yaml:"default_provider"`
	VMware          VMwareSettings  `json:"vmware" yaml:"vmware"`
	Nutanix         NutanixSettings `json:"nutanix" yaml:"nutanix"`
}

// SnapshotRequest is the body of POST /api/vms/{name}/snapshots.
type SnapshotRequest struct {
	Name     string     `json:"snapshot_name"`
	Provider ProviderID `json:"provider"`
}
