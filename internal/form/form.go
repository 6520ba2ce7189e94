// Package form keeps the clone and create forms consistent with the catalog.
//
// A form moves through Empty, ProviderSelected and FullySpecified. Changing
// the provider repopulates the cluster and network pickers from the cached
// catalog, hides source options that belong to other providers and discards
// selections that no longer apply. Choosing a clone source whose option names
// a provider forces that provider. Nothing here performs network I/O.
package form

import (
	"context"
	"strings"
	"sync"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
)

// Kind distinguishes the two forms.
type Kind string

const (
	KindClone  Kind = "clone"
	KindCreate Kind = "create"
)

// State of a form.
type State int

const (
	StateEmpty State = iota
	StateProviderSelected
	StateFullySpecified
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateProviderSelected:
		return "ProviderSelected"
	case StateFullySpecified:
		return "FullySpecified"
	default:
		return "Unknown"
	}
}

// Source is the cached data a form reads. *catalog.Catalog satisfies it.
type Source interface {
	Providers() []domain.Provider
	CombinedTemplates() []domain.Template
	Clusters(provider domain.ProviderID) []string
	Networks(provider domain.ProviderID) []string
}

// Option is one selector entry. Provider is the typed owner of a source
// option; Label is display text only.
type Option struct {
	Value    string            `json:"value"`
	Label    string            `json:"label"`
	Provider domain.ProviderID `json:"provider,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
}

// ProviderChange is the event for the provider selector. An empty Provider
// clears the selection.
type ProviderChange struct {
	Provider domain.ProviderID
}

// SourceChange is the event for the source (clone) or template (create)
// selector; Option is the entry the user picked.
type SourceChange struct {
	Option Option
}

// Selection is the user's current input.
type Selection struct {
	Provider domain.ProviderID `json:"provider,omitempty"`
	Source   *Option           `json:"source,omitempty"`
	Cluster  string            `json:"cluster,omitempty"`
	Network  string            `json:"network,omitempty"`
	Name     string            `json:"vm_name,omitempty"`
	CPU      int               `json:"cpu"`
	RAM      int               `json:"ram"`
	Disk     int               `json:"disk"`
	OSType   string            `json:"os_type,omitempty"`
}

// View is a rendering snapshot of a form.
type View struct {
	Kind             Kind      `json:"kind"`
	State            string    `json:"state"`
	Providers        []Option  `json:"providers"`
	Sources          []Option  `json:"sources"`
	Clusters         []Option  `json:"clusters"`
	Networks         []Option  `json:"networks"`
	PlacementVisible bool      `json:"placement_visible"`
	Selection        Selection `json:"selection"`
}

// VisibleSources returns the source options not hidden by the provider filter.
func (v View) VisibleSources() []Option {
	out := make([]Option, 0, len(v.Sources))
	for _, o := range v.Sources {
		if !o.Hidden {
			out = append(out, o)
		}
	}
	return out
}

// Form is one synchronized form.
type Form struct {
	kind Kind
	src  Source

	mu               sync.Mutex
	providers        []Option
	sources          []Option
	clusters         []Option
	networks         []Option
	placementVisible bool
	sel              Selection
}

// NewClone creates the clone form.
func NewClone(src Source) *Form { return newForm(KindClone, src) }

// NewCreate creates the create form.
func NewCreate(src Source) *Form { return newForm(KindCreate, src) }

func newForm(kind Kind, src Source) *Form {
	f := &Form{kind: kind, src: src}
	f.sel = defaultSelection()
	f.Refresh()
	return f
}

func defaultSelection() Selection {
	return Selection{CPU: domain.DefaultCPU, RAM: domain.DefaultRAMMB, Disk: domain.DefaultDiskGB}
}

// ProviderLabel is the selector text for p, e.g. "Nutanix AHV (Not Connected)".
func ProviderLabel(p domain.Provider) string {
	return p.ID.DisplayName() + " (" + string(p.Status()) + ")"
}

// Refresh rebuilds the options from the catalog and keeps only selections
// that still exist.
func (f *Form) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()

	providers := f.src.Providers()
	f.providers = make([]Option, 0, len(providers))
	for _, p := range providers {
		f.providers = append(f.providers, Option{
			Value:    string(p.ID),
			Label:    ProviderLabel(p),
			Provider: p.ID,
			Disabled: p.Status() == domain.ProviderDisabled,
		})
	}

	templates := f.src.CombinedTemplates()
	f.sources = make([]Option, 0, len(templates)+1)
	if f.kind == KindCreate {
		f.sources = append(f.sources, Option{Value: "", Label: "Create from scratch"})
	}
	for _, t := range templates {
		f.sources = append(f.sources, Option{Value: t.Name, Label: t.Label(), Provider: t.Provider})
	}

	if f.sel.Provider != "" {
		if opt, ok := f.providerOption(f.sel.Provider); !ok || opt.Disabled {
			f.sel.Provider = ""
		}
	}
	if f.sel.Source != nil {
		if _, ok := f.sourceOption(*f.sel.Source); !ok {
			f.sel.Source = nil
		}
	}
	f.applyProviderLocked()
}

// Handle refreshes the form on catalog change events.
func (f *Form) Handle(_ context.Context, event *domain.ChangeEvent) error {
	switch event.EventType {
	case domain.EventProvidersReloaded, domain.EventTemplatesReloaded,
		domain.EventClustersReloaded, domain.EventNetworksReloaded:
		f.Refresh()
	case domain.EventSessionEnded:
		f.Reset()
	}
	return nil
}

func (f *Form) providerOption(id domain.ProviderID) (Option, bool) {
	for _, o := range f.providers {
		if o.Provider == id {
			return o, true
		}
	}
	return Option{}, false
}

func (f *Form) sourceOption(want Option) (Option, bool) {
	for _, o := range f.sources {
		if o.Value == want.Value && o.Provider == want.Provider {
			return o, true
		}
	}
	return Option{}, false
}

// SelectProvider handles a provider selector change. Unknown and disabled
// providers are rejected and leave the form unchanged.
func (f *Form) SelectProvider(ev ProviderChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectProviderLocked(ev.Provider)
}

func (f *Form) selectProviderLocked(id domain.ProviderID) error {
	if id != "" {
		opt, ok := f.providerOption(id)
		if !ok {
			return apperrors.ErrInvalidProviderf(string(id))
		}
		if opt.Disabled {
			return apperrors.ErrProviderDisabledf(string(id))
		}
	}
	f.sel.Provider = id
	f.sel.Cluster = ""
	f.sel.Network = ""
	f.applyProviderLocked()
	return nil
}

// applyProviderLocked derives the provider-scoped parts of the form from the
// selected provider: placement pickers and source visibility.
func (f *Form) applyProviderLocked() {
	p := f.sel.Provider
	f.placementVisible = p.HasPlacementOptions()

	f.clusters = nil
	f.networks = nil
	if f.placementVisible {
		f.clusters = plainOptions(f.src.Clusters(p))
		f.networks = plainOptions(f.src.Networks(p))
	}
	if !containsValue(f.clusters, f.sel.Cluster) {
		f.sel.Cluster = ""
	}
	if !containsValue(f.networks, f.sel.Network) {
		f.sel.Network = ""
	}

	for i := range f.sources {
		o := &f.sources[i]
		o.Hidden = p != "" && o.Provider != "" && o.Provider != p
	}
	if f.sel.Source != nil {
		if opt, ok := f.sourceOption(*f.sel.Source); !ok || opt.Hidden {
			f.sel.Source = nil
		}
	}
}

func plainOptions(names []string) []Option {
	if len(names) == 0 {
		return nil
	}
	out := make([]Option, len(names))
	for i, n := range names {
		out[i] = Option{Value: n, Label: n}
	}
	return out
}

func containsValue(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}

// SelectSource handles the source (clone) or template (create) selector.
// When the option carries a provider, the provider selector is forced to it
// first and the provider transition rerun.
func (f *Form) SelectSource(ev SourceChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ev.Option.Value == "" {
		f.sel.Source = nil
		return nil
	}
	opt, ok := f.sourceOption(ev.Option)
	if !ok {
		return apperrors.Validation(apperrors.CodeValidationFailed, "unknown source: "+ev.Option.Label)
	}
	if opt.Provider != "" && opt.Provider != f.sel.Provider {
		if err := f.selectProviderLocked(opt.Provider); err != nil {
			return err
		}
		opt, _ = f.sourceOption(opt)
	}
	f.sel.Source = &opt
	return nil
}

// SelectSourceLabel resolves a label such as "win10 (nutanix)" to its option
// and selects it. Used where only display text is at hand, e.g. CLI input.
func (f *Form) SelectSourceLabel(label string) error {
	f.mu.Lock()
	var found *Option
	for i := range f.sources {
		if strings.EqualFold(f.sources[i].Label, strings.TrimSpace(label)) {
			o := f.sources[i]
			found = &o
			break
		}
	}
	f.mu.Unlock()

	if found == nil {
		return apperrors.Validation(apperrors.CodeValidationFailed, "unknown source: "+label)
	}
	return f.SelectSource(SourceChange{Option: *found})
}

// SelectCluster picks a cluster from the visible cluster options.
func (f *Form) SelectCluster(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "" && !containsValue(f.clusters, name) {
		return apperrors.Validation(apperrors.CodeValidationFailed, "unknown cluster: "+name)
	}
	f.sel.Cluster = name
	return nil
}

// SelectNetwork picks a network from the visible network options.
func (f *Form) SelectNetwork(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "" && !containsValue(f.networks, name) {
		return apperrors.Validation(apperrors.CodeValidationFailed, "unknown network: "+name)
	}
	f.sel.Network = name
	return nil
}

// SetName sets the new VM name.
func (f *Form) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel.Name = strings.TrimSpace(name)
}

// SetSizing sets CPU count, RAM in MB and disk in GB. Non-positive values
// keep the current value.
func (f *Form) SetSizing(cpu, ramMB, diskGB int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cpu > 0 {
		f.sel.CPU = cpu
	}
	if ramMB > 0 {
		f.sel.RAM = ramMB
	}
	if diskGB > 0 {
		f.sel.Disk = diskGB
	}
}

// SetOSType sets the guest OS type (create form).
func (f *Form) SetOSType(osType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel.OSType = osType
}

// State derives the form state from the selection.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Form) stateLocked() State {
	if f.sel.Provider == "" {
		return StateEmpty
	}
	if len(f.missingLocked()) > 0 {
		return StateProviderSelected
	}
	return StateFullySpecified
}

// missingLocked lists required fields not yet filled. Cluster and network
// are required only when the provider has some to choose from.
func (f *Form) missingLocked() []string {
	var missing []string
	if f.sel.Provider == "" {
		missing = append(missing, "provider")
	}
	if f.sel.Name == "" {
		missing = append(missing, "vm_name")
	}
	if f.kind == KindClone && f.sel.Source == nil {
		missing = append(missing, "source_vm")
	}
	if f.placementVisible {
		if len(f.clusters) > 0 && f.sel.Cluster == "" {
			missing = append(missing, "cluster")
		}
		if len(f.networks) > 0 && f.sel.Network == "" {
			missing = append(missing, "network")
		}
	}
	return missing
}

func (f *Form) readyLocked() error {
	if missing := f.missingLocked(); len(missing) > 0 {
		return apperrors.Validation(apperrors.CodeFormIncomplete, "Missing required fields: "+strings.Join(missing, ", "))
	}
	opt, ok := f.providerOption(f.sel.Provider)
	if !ok {
		return apperrors.ErrInvalidProviderf(string(f.sel.Provider))
	}
	if opt.Disabled {
		return apperrors.ErrProviderDisabledf(string(f.sel.Provider))
	}
	return nil
}

// CloneRequest builds the clone body. The form must be FullySpecified and
// its provider enabled.
func (f *Form) CloneRequest() (domain.CloneRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind != KindClone {
		return domain.CloneRequest{}, apperrors.Validation(apperrors.CodeValidationFailed, "not a clone form")
	}
	if err := f.readyLocked(); err != nil {
		return domain.CloneRequest{}, err
	}
	return domain.CloneRequest{
		Name:     f.sel.Name,
		SourceVM: f.sel.Source.Value,
		Provider: f.sel.Provider,
		CPU:      f.sel.CPU,
		RAM:      f.sel.RAM,
		Disk:     f.sel.Disk,
		Cluster:  f.sel.Cluster,
		Network:  f.sel.Network,
	}, nil
}

// CreateRequest builds the create body. An unset template creates from scratch.
func (f *Form) CreateRequest() (domain.CreateRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind != KindCreate {
		return domain.CreateRequest{}, apperrors.Validation(apperrors.CodeValidationFailed, "not a create form")
	}
	if err := f.readyLocked(); err != nil {
		return domain.CreateRequest{}, err
	}
	req := domain.CreateRequest{
		Name:     f.sel.Name,
		Provider: f.sel.Provider,
		CPU:      f.sel.CPU,
		RAM:      f.sel.RAM,
		Disk:     f.sel.Disk,
		OSType:   f.sel.OSType,
		Cluster:  f.sel.Cluster,
		Network:  f.sel.Network,
	}
	if f.sel.Source != nil {
		req.Template = f.sel.Source.Value
	}
	return req, nil
}

// Reset clears every input and rebuilds the options from the catalog.
func (f *Form) Reset() {
	f.mu.Lock()
	f.sel = defaultSelection()
	f.mu.Unlock()
	f.Refresh()
}

// Kind returns the form kind.
func (f *Form) Kind() Kind { return f.kind }

// Selection returns a copy of the current input.
func (f *Form) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectionLocked()
}

func (f *Form) selectionLocked() Selection {
	s := f.sel
	if s.Source != nil {
		src := *s.Source
		s.Source = &src
	}
	return s
}

// View returns a rendering snapshot.
func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View{
		Kind:             f.kind,
		State:            f.stateLocked().String(),
		Providers:        append([]Option(nil), f.providers...),
		Sources:          append([]Option(nil), f.sources...),
		Clusters:         append([]Option(nil), f.clusters...),
		Networks:         append([]Option(nil), f.networks...),
		PlacementVisible: f.placementVisible,
		Selection:        f.selectionLocked(),
	}
}
