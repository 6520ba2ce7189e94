package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
)

// DefaultPasswordCost is the bcrypt cost used unless WithPasswordCost says otherwise.
const DefaultPasswordCost = 12

// Defaults applied to create and clone requests that leave sizing out.
const (
	defaultCPU  = 2
	defaultRAM  = 2048
	defaultDisk = 20
)

// ProviderState is one entry of GET /api/providers/status.
type ProviderState struct {
	Enabled      bool   `json:"enabled"`
	Connected    bool   `json:"connected"`
	ProviderType string `json:"provider_type"`
}

type vmRecord struct {
	vm        domain.VirtualMachine
	snapshots []string
}

type account struct {
	user         domain.User
	passwordHash []byte
}

// Store is the fake backend's in-memory state. It flips VM fields and never
// talks to a hypervisor.
type Store struct {
	mu        sync.RWMutex
	settings  domain.AppSettings
	offline   map[domain.ProviderID]bool
	templates []string
	clusters  domain.ResourceSets
	networks  domain.ResourceSets
	vms       map[string]*vmRecord // key: provider/name
	users     map[string]*account
	nextIP    int
	hashCost  int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPasswordCost sets the bcrypt cost for passwords hashed by AddUser.
// Zero keeps DefaultPasswordCost.
func WithPasswordCost(cost int) StoreOption {
	return func(s *Store) {
		if cost != 0 {
			s.hashCost = cost
		}
	}
}

// NewStore creates an empty store with both providers disabled.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		offline:  make(map[domain.ProviderID]bool),
		clusters: domain.ResourceSets{},
		networks: domain.ResourceSets{},
		vms:      make(map[string]*vmRecord),
		users:    make(map[string]*account),
		nextIP:   10,
		hashCost: DefaultPasswordCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func vmKey(provider domain.ProviderID, name string) string {
	return string(provider) + "/" + name
}

// Seed replaces the store contents with seed. Users are kept.
func (s *Store) Seed(seed *Seed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = seed.Settings
	s.offline = make(map[domain.ProviderID]bool, len(seed.Offline))
	for _, p := range seed.Offline {
		s.offline[p] = true
	}
	s.templates = append([]string(nil), seed.Templates...)
	s.clusters = seed.Clusters.Clone()
	if s.clusters == nil {
		s.clusters = domain.ResourceSets{}
	}
	s.networks = seed.Networks.Clone()
	if s.networks == nil {
		s.networks = domain.ResourceSets{}
	}
	s.vms = make(map[string]*vmRecord, len(seed.VMs))
	for _, v := range seed.VMs {
		vm := v.toDomain()
		if vm.UUID == "" {
			vm.UUID = uuid.NewString()
		}
		s.vms[vmKey(vm.Hypervisor, vm.Name)] = &vmRecord{vm: vm, snapshots: append([]string(nil), v.Snapshots...)}
	}
}

// Reset clears all VMs and resources. Users are kept.
func (s *Store) Reset() {
	s.Seed(&Seed{})
}

// AddUser registers an account. password may already be a bcrypt hash.
func (s *Store) AddUser(user domain.User, password string) error {
	hash := []byte(password)
	if _, err := bcrypt.Cost(hash); err != nil {
		hash, err = bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return apperrors.New("USERNAME_TAKEN", "Username already exists", http.StatusConflict)
	}
	s.users[user.Username] = &account{user: user, passwordHash: hash}
	return nil
}

// Authenticate checks a username and password.
func (s *Store) Authenticate(username, password string) bool {
	s.mu.RLock()
	acct, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) == nil
}

// User looks up an account by username.
func (s *Store) User(username string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.users[username]
	if !ok {
		return domain.User{}, false
	}
	return acct.user, true
}

func (s *Store) enabledLocked(p domain.ProviderID) bool {
	switch p {
	case domain.ProviderVMware:
		return s.settings.VMware.Enabled
	case domain.ProviderNutanix:
		return s.settings.Nutanix.Enabled
	default:
		return false
	}
}

// ProviderStatus reports every known provider.
func (s *Store) ProviderStatus() map[domain.ProviderID]ProviderState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.ProviderID]ProviderState, len(domain.KnownProviders))
	for _, p := range domain.KnownProviders {
		enabled := s.enabledLocked(p)
		out[p] = ProviderState{
			Enabled:      enabled,
			Connected:    enabled && !s.offline[p],
			ProviderType: p.DisplayName(),
		}
	}
	return out
}

// Providers lists the enabled providers.
func (s *Store) Providers() []domain.ProviderID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProviderID, 0, len(domain.KnownProviders))
	for _, p := range domain.KnownProviders {
		if s.enabledLocked(p) {
			out = append(out, p)
		}
	}
	return out
}

// Templates lists template names.
func (s *Store) Templates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.templates...)
}

// Clusters lists cluster names per provider.
func (s *Store) Clusters() domain.ResourceSets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clusters.Clone()
}

// Networks lists network names per provider.
func (s *Store) Networks() domain.ResourceSets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networks.Clone()
}

// checkProviderLocked rejects an unknown or disabled provider.
func (s *Store) checkProviderLocked(p domain.ProviderID) error {
	if _, ok := domain.ParseProviderID(string(p)); !ok || p == "" {
		return apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("Provider %s not found", p))
	}
	if !s.enabledLocked(p) {
		return apperrors.Structured(http.StatusBadRequest,
			fmt.Sprintf("Provider %s is not enabled. Please enable it in settings.", p))
	}
	return nil
}

// ListVMs lists the VMs of provider, or of every enabled provider when it is
// empty. Results are in provider display order, then by name.
func (s *Store) ListVMs(provider domain.ProviderID) ([]domain.VirtualMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if provider != "" {
		if err := s.checkProviderLocked(provider); err != nil {
			return nil, err
		}
	}
	out := make([]domain.VirtualMachine, 0, len(s.vms))
	for _, rec := range s.vms {
		if provider != "" && rec.vm.Hypervisor != provider {
			continue
		}
		if provider == "" && !s.enabledLocked(rec.vm.Hypervisor) {
			continue
		}
		out = append(out, rec.vm)
	}
	sortVMs(out)
	return out, nil
}

func sortVMs(vms []domain.VirtualMachine) {
	rank := make(map[domain.ProviderID]int, len(domain.KnownProviders))
	for i, p := range domain.KnownProviders {
		rank[p] = i
	}
	sort.Slice(vms, func(i, j int) bool {
		if vms[i].Hypervisor != vms[j].Hypervisor {
			return rank[vms[i].Hypervisor] < rank[vms[j].Hypervisor]
		}
		return vms[i].Name < vms[j].Name
	})
}

// findLocked resolves name on provider, or on the first enabled provider
// that has it when provider is empty.
func (s *Store) findLocked(name string, provider domain.ProviderID) (*vmRecord, bool) {
	if provider != "" {
		rec, ok := s.vms[vmKey(provider, name)]
		return rec, ok
	}
	for _, p := range domain.KnownProviders {
		if !s.enabledLocked(p) {
			continue
		}
		if rec, ok := s.vms[vmKey(p, name)]; ok {
			return rec, true
		}
	}
	return nil, false
}

// GetVM returns one VM.
func (s *Store) GetVM(name string, provider domain.ProviderID) (domain.VirtualMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.findLocked(name, provider)
	if !ok {
		return domain.VirtualMachine{}, apperrors.Structured(http.StatusNotFound, "VM not found")
	}
	return rec.vm, nil
}

func (s *Store) allocateIPLocked() string {
	ip := fmt.Sprintf("192.168.100.%d", s.nextIP)
	s.nextIP++
	if s.nextIP > 250 {
		s.nextIP = 10
	}
	return ip
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// CreateVM adds a stopped VM and returns the backend message.
func (s *Store) CreateVM(req domain.CreateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkProviderLocked(req.Provider); err != nil {
		return "", err
	}
	if req.Name == "" {
		return "", apperrors.Structured(http.StatusBadRequest, "Missing required fields: vm_name")
	}
	key := vmKey(req.Provider, req.Name)
	if _, exists := s.vms[key]; exists {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("VM '%s' already exists", req.Name))
	}
	s.vms[key] = &vmRecord{vm: domain.VirtualMachine{
		Name:       req.Name,
		UUID:       uuid.NewString(),
		Hypervisor: req.Provider,
		State:      domain.VMStateStopped,
		CPU:        orDefault(req.CPU, defaultCPU),
		RAM:        orDefault(req.RAM, defaultRAM),
		Disk:       orDefault(req.Disk, defaultDisk),
		IPAddress:  s.allocateIPLocked(),
		Cluster:    req.Cluster,
	}}
	return fmt.Sprintf("VM '%s' created successfully", req.Name), nil
}

// CloneVM copies a VM or a template and returns the backend message.
func (s *Store) CloneVM(req domain.CloneRequest) (string, error) {
	var missing []string
	if req.Name == "" {
		missing = append(missing, "vm_name")
	}
	if req.Provider == "" {
		missing = append(missing, "provider")
	}
	if req.SourceVM == "" {
		missing = append(missing, "source_vm")
	}
	if len(missing) > 0 {
		return "", apperrors.Structured(http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkProviderLocked(req.Provider); err != nil {
		return "", err
	}
	key := vmKey(req.Provider, req.Name)
	if _, exists := s.vms[key]; exists {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("VM '%s' already exists", req.Name))
	}

	base := domain.VirtualMachine{CPU: defaultCPU, RAM: defaultRAM, Disk: defaultDisk}
	if src, ok := s.vms[vmKey(req.Provider, req.SourceVM)]; ok {
		base = src.vm
	} else if !s.isTemplateLocked(req.SourceVM) {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("Source VM '%s' not found", req.SourceVM))
	}

	cluster := req.Cluster
	if cluster == "" {
		cluster = base.Cluster
	}
	s.vms[key] = &vmRecord{vm: domain.VirtualMachine{
		Name:       req.Name,
		UUID:       uuid.NewString(),
		Hypervisor: req.Provider,
		State:      domain.VMStateStopped,
		CPU:        orDefault(req.CPU, base.CPU),
		RAM:        orDefault(req.RAM, base.RAM),
		Disk:       orDefault(req.Disk, base.Disk),
		IPAddress:  s.allocateIPLocked(),
		Cluster:    cluster,
	}}
	return fmt.Sprintf("VM '%s' cloned successfully", req.Name), nil
}

func (s *Store) isTemplateLocked(name string) bool {
	for _, t := range s.templates {
		if t == name {
			return true
		}
	}
	return false
}

var powerVerbs = map[domain.Action]struct {
	past  string
	state domain.VMState
}{
	domain.ActionStart:   {"started", domain.VMStateRunning},
	domain.ActionStop:    {"stopped", domain.VMStateStopped},
	domain.ActionRestart: {"restarted", domain.VMStateRunning},
}

// Power applies start, stop or restart and returns the backend message.
func (s *Store) Power(name string, action domain.Action, provider domain.ProviderID) (string, error) {
	verb, ok := powerVerbs[action]
	if !ok {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("Unsupported action '%s'", action))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.findLocked(name, provider)
	if !found {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("Failed to %s VM '%s'", action, name))
	}
	rec.vm.State = verb.state
	return fmt.Sprintf("VM '%s' %s successfully", name, verb.past), nil
}

// DeleteVM removes a VM and returns the backend message.
func (s *Store) DeleteVM(name string, provider domain.ProviderID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.findLocked(name, provider)
	if !found {
		return "", apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("Failed to delete VM '%s'", name))
	}
	delete(s.vms, vmKey(rec.vm.Hypervisor, rec.vm.Name))
	return fmt.Sprintf("VM '%s' deleted successfully", name), nil
}

// Console returns a web console URL for Nutanix and a native viewer result
// for VMware.
func (s *Store) Console(name string, provider domain.ProviderID) (domain.ConsoleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, found := s.findLocked(name, provider)
	if !found {
		return domain.ConsoleResult{}, apperrors.Structured(http.StatusBadRequest, fmt.Sprintf("VM '%s' not found", name))
	}
	if rec.vm.Hypervisor != domain.ProviderNutanix {
		return domain.ConsoleResult{
			Type:    domain.ConsoleNative,
			Message: fmt.Sprintf("Console opened for VM '%s'", name),
		}, nil
	}
	host := s.settings.Nutanix.PrismCentralIP
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.settings.Nutanix.Port
	if port == 0 {
		port = 9440
	}
	url := fmt.Sprintf("https://%s:%d/console/vm/%s", host, port, rec.vm.UUID)
	return domain.ConsoleResult{
		Type:         domain.ConsoleWeb,
		URL:          url,
		Message:      fmt.Sprintf("Web console URL for VM '%s': %s", name, url),
		Instructions: "Open this URL in your browser to access the VM console. You may need to accept SSL certificates.",
	}, nil
}

// Settings returns the configuration document. The Nutanix password is
// never returned.
func (s *Store) Settings() domain.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	out.Nutanix.Password = ""
	return out
}

// UpdateVMware replaces the VMware configuration.
func (s *Store) UpdateVMware(cfg domain.VMwareSettings) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.VMware = cfg
	return providerTitle(domain.ProviderVMware) + " configuration updated successfully"
}

// UpdateNutanix replaces the Nutanix configuration. An empty password keeps
// the stored one.
func (s *Store) UpdateNutanix(cfg domain.NutanixSettings) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Password == "" {
		cfg.Password = s.settings.Nutanix.Password
	}
	s.settings.Nutanix = cfg
	return providerTitle(domain.ProviderNutanix) + " configuration updated successfully"
}

// providerTitle capitalises the provider id the way the backend does.
func providerTitle(p domain.ProviderID) string {
	id := string(p)
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

// SetDefaultProvider changes the default provider.
func (s *Store) SetDefaultProvider(provider domain.ProviderID) (string, error) {
	if provider == "" {
		return "", apperrors.Structured(http.StatusBadRequest, "Provider is required")
	}
	if _, ok := domain.ParseProviderID(string(provider)); !ok {
		return "", apperrors.Structured(http.StatusInternalServerError, "Failed to set default provider")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.DefaultProvider = provider
	return fmt.Sprintf("Default provider set to %s", provider), nil
}

// Snapshots lists a VM's snapshots.
func (s *Store) Snapshots(vmName string, provider domain.ProviderID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, found := s.findLocked(vmName, provider)
	if !found {
		return nil, apperrors.Structured(http.StatusNotFound, "VM not found")
	}
	return append([]string{}, rec.snapshots...), nil
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

// CreateSnapshot records a snapshot.
func (s *Store) CreateSnapshot(vmName, snapshot string, provider domain.ProviderID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.findLocked(vmName, provider)
	if !found || snapshot == "" || indexOf(rec.snapshots, snapshot) >= 0 {
		return "", apperrors.Structured(http.StatusBadRequest,
			fmt.Sprintf("Failed to create snapshot '%s' for VM '%s'", snapshot, vmName))
	}
	rec.snapshots = append(rec.snapshots, snapshot)
	return fmt.Sprintf("Snapshot '%s' created for VM '%s'", snapshot, vmName), nil
}

// RestoreSnapshot reverts a VM to a snapshot; the VM ends up stopped.
func (s *Store) RestoreSnapshot(vmName, snapshot string, provider domain.ProviderID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.findLocked(vmName, provider)
	if !found || indexOf(rec.snapshots, snapshot) < 0 {
		return "", apperrors.Structured(http.StatusBadRequest,
			fmt.Sprintf("Failed to restore snapshot '%s' for VM '%s'", snapshot, vmName))
	}
	rec.vm.State = domain.VMStateStopped
	return fmt.Sprintf("Snapshot '%s' restored for VM '%s'", snapshot, vmName), nil
}

// DeleteSnapshot removes a snapshot.
func (s *Store) DeleteSnapshot(vmName, snapshot string, provider domain.ProviderID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.findLocked(vmName, provider)
	idx := -1
	if found {
		idx = indexOf(rec.snapshots, snapshot)
	}
	if idx < 0 {
		return "", apperrors.Structured(http.StatusBadRequest,
			fmt.Sprintf("Failed to delete snapshot '%s' for VM '%s'", snapshot, vmName))
	}
	rec.snapshots = append(rec.snapshots[:idx], rec.snapshots[idx+1:]...)
	return fmt.Sprintf("Snapshot '%s' deleted for VM '%s'", snapshot, vmName), nil
}
