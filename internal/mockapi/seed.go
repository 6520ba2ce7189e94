package mockapi

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vmdash.io/vmdash/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the YAML document the store starts from.
type Seed struct {
	Settings  domain.AppSettings  `yaml:"settings"`
	Offline   []domain.ProviderID `yaml:"offline"`
	Templates []string            `yaml:"templates"`
	Clusters  domain.ResourceSets `yaml:"clusters"`
	Networks  domain.ResourceSets `yaml:"networks"`
	VMs       []SeedVM            `yaml:"vms"`
}

// SeedVM is one VM in a seed file.
type SeedVM struct {
	Name       string            `yaml:"name"`
	UUID       string            `yaml:"uuid"`
	Hypervisor domain.ProviderID `yaml:"hypervisor"`
	State      domain.VMState    `yaml:"state"`
	CPU        int               `yaml:"cpu"`
	RAM        int               `yaml:"ram"`
	Disk       int               `yaml:"disk"`
	IPAddress  string            `yaml:"ip_address"`
	Cluster    string            `yaml:"cluster"`
	Snapshots  []string          `yaml:"snapshots"`
}

func (v SeedVM) toDomain() domain.VirtualMachine {
	state := v.State
	if state == "" {
		state = domain.VMStateStopped
	}
	return domain.VirtualMachine{
		Name:       v.Name,
		UUID:       v.UUID,
		Hypervisor: v.Hypervisor,
		State:      state,
		CPU:        orDefault(v.CPU, defaultCPU),
		RAM:        orDefault(v.RAM, defaultRAM),
		Disk:       orDefault(v.Disk, defaultDisk),
		IPAddress:  v.IPAddress,
		Cluster:    v.Cluster,
	}
}

// ParseSeed decodes a seed document and checks that every VM names a known
// provider.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, vm := range seed.VMs {
		if vm.Name == "" {
			return nil, fmt.Errorf("seed vm %d: name is required", i)
		}
		if _, ok := domain.ParseProviderID(string(vm.Hypervisor)); !ok {
			return nil, fmt.Errorf("seed vm %q: unknown hypervisor %q", vm.Name, vm.Hypervisor)
		}
	}
	return &seed, nil
}

// LoadSeed reads a seed file. An empty path returns the built-in seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// DefaultSeed returns the built-in seed: two providers with a handful of VMs.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(defaultSeed)
}
