package form

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/catalog"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

type staticSource struct {
	providers []domain.Provider
	templates []string
	clusters  domain.ResourceSets
	networks  domain.ResourceSets
}

func (s *staticSource) Providers() []domain.Provider { return s.providers }

func (s *staticSource) CombinedTemplates() []domain.Template {
	return domain.CombineTemplates(s.templates)
}

func (s *staticSource) Clusters(p domain.ProviderID) []string { return s.clusters.For(p) }

func (s *staticSource) Networks(p domain.ProviderID) []string { return s.networks.For(p) }

func newSource() *staticSource {
	return &staticSource{
		providers: []domain.Provider{
			{ID: domain.ProviderVMware, Enabled: true, Connected: true},
			{ID: domain.ProviderNutanix, Enabled: true},
		},
		templates: []string{"win10-template", "ubuntu"},
		clusters:  domain.ResourceSets{domain.ProviderNutanix: {"cluster-a", "cluster-b"}},
		networks:  domain.ResourceSets{domain.ProviderNutanix: {"vlan-10"}},
	}
}

func TestProviderOptionLabels(t *testing.T) {
	src := newSource()
	src.providers = append(src.providers, domain.Provider{ID: "xen"})
	v := NewClone(src).View()

	require.Len(t, v.Providers, 3)
	assert.Equal(t, "VMware Workstation (Ready)", v.Providers[0].Label)
	assert.Equal(t, "Nutanix AHV (Not Connected)", v.Providers[1].Label)
	assert.Equal(t, "xen (Disabled)", v.Providers[2].Label)
	assert.False(t, v.Providers[1].Disabled, "not connected providers stay selectable")
	assert.True(t, v.Providers[2].Disabled)
}

func TestStateTransitions(t *testing.T) {
	f := NewClone(newSource())
	assert.Equal(t, StateEmpty, f.State())

	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderVMware}))
	assert.Equal(t, StateProviderSelected, f.State())

	require.NoError(t, f.SelectSource(SourceChange{Option: Option{Value: "ubuntu", Provider: domain.ProviderVMware}}))
	f.SetName("web-02")
	assert.Equal(t, StateFullySpecified, f.State())

	require.NoError(t, f.SelectProvider(ProviderChange{}))
	assert.Equal(t, StateEmpty, f.State())
	assert.NotNil(t, f.Selection().Source, "source stays selected while its option is visible")
}

func TestSelectProvider_NutanixShowsPlacement(t *testing.T) {
	f := NewClone(newSource())
	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderNutanix}))

	v := f.View()
	assert.True(t, v.PlacementVisible)
	assert.Equal(t, []Option{{Value: "cluster-a", Label: "cluster-a"}, {Value: "cluster-b", Label: "cluster-b"}}, v.Clusters)
	assert.Equal(t, []Option{{Value: "vlan-10", Label: "vlan-10"}}, v.Networks)

	for _, o := range v.VisibleSources() {
		assert.Equal(t, domain.ProviderNutanix, o.Provider)
	}
	assert.Len(t, v.Sources, 4, "other-provider options are hidden, not removed")
}

func TestSelectProvider_DiscardsIrrelevantSelections(t *testing.T) {
	f := NewClone(newSource())
	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderNutanix}))
	require.NoError(t, f.SelectCluster("cluster-a"))
	require.NoError(t, f.SelectNetwork("vlan-10"))
	require.NoError(t, f.SelectSource(SourceChange{Option: Option{Value: "ubuntu", Provider: domain.ProviderNutanix}}))

	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderVMware}))

	sel := f.Selection()
	assert.Empty(t, sel.Cluster)
	assert.Empty(t, sel.Network)
	assert.Nil(t, sel.Source)
	v := f.View()
	assert.False(t, v.PlacementVisible)
	assert.Empty(t, v.Clusters)
	assert.Empty(t, v.Networks)
}

func TestDisabledProviderRejected(t *testing.T) {
	src := newSource()
	src.providers[1].Enabled = false
	f := NewClone(src)

	err := f.SelectProvider(ProviderChange{Provider: domain.ProviderNutanix})
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProviderDisabled, appErr.Code)
	assert.Equal(t, StateEmpty, f.State())

	// A source owned by the disabled provider cannot force it either.
	err = f.SelectSource(SourceChange{Option: Option{Value: "ubuntu", Provider: domain.ProviderNutanix}})
	require.Error(t, err)
	assert.Empty(t, f.Selection().Provider)
	assert.Nil(t, f.Selection().Source)

	_, err = f.CloneRequest()
	require.Error(t, err)
}

func TestRefresh_DropsNewlyDisabledProvider(t *testing.T) {
	src := newSource()
	f := NewClone(src)
	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderNutanix}))

	src.providers[1].Enabled = false
	f.Refresh()

	assert.Empty(t, f.Selection().Provider)
	_, err := f.CloneRequest()
	require.Error(t, err)
}

func TestSelectProvider_Unknown(t *testing.T) {
	f := NewClone(newSource())
	err := f.SelectProvider(ProviderChange{Provider: "xen"})
	require.Error(t, err)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeInvalidProvider, appErr.Code)
}

func TestSelectSource_ForcesProvider(t *testing.T) {
	f := NewClone(newSource())
	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderVMware}))

	require.NoError(t, f.SelectSourceLabel("win10-template (nutanix)"))

	sel := f.Selection()
	assert.Equal(t, domain.ProviderNutanix, sel.Provider)
	require.NotNil(t, sel.Source)
	assert.Equal(t, "win10-template", sel.Source.Value)
	assert.True(t, f.View().PlacementVisible)
}

func TestSelectSource_Unknown(t *testing.T) {
	f := NewClone(newSource())
	require.Error(t, f.SelectSource(SourceChange{Option: Option{Value: "nope", Provider: domain.ProviderVMware}}))
	require.Error(t, f.SelectSourceLabel("nope (vmware)"))
	require.NoError(t, f.SelectSource(SourceChange{}))
}

func TestSelectPlacement_RejectsUnknown(t *testing.T) {
	f := NewClone(newSource())
	require.Error(t, f.SelectCluster("cluster-a"), "no cluster picker before nutanix is chosen")

	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderNutanix}))
	require.Error(t, f.SelectCluster("cluster-z"))
	require.Error(t, f.SelectNetwork("vlan-99"))
}

func TestCloneRequest(t *testing.T) {
	f := NewClone(newSource())
	_, err := f.CloneRequest()
	require.Error(t, err)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, apperrors.CodeFormIncomplete, appErr.Code)

	require.NoError(t, f.SelectSourceLabel("ubuntu (nutanix)"))
	f.SetName("db-02")
	assert.Equal(t, StateProviderSelected, f.State(), "cluster and network still missing")

	require.NoError(t, f.SelectCluster("cluster-b"))
	require.NoError(t, f.SelectNetwork("vlan-10"))
	f.SetSizing(4, 0, 0)

	req, err := f.CloneRequest()
	require.NoError(t, err)
	assert.Equal(t, domain.CloneRequest{
		Name:     "db-02",
		SourceVM: "ubuntu",
		Provider: domain.ProviderNutanix,
		CPU:      4,
		RAM:      domain.DefaultRAMMB,
		Disk:     domain.DefaultDiskGB,
		Cluster:  "cluster-b",
		Network:  "vlan-10",
	}, req)
}

func TestNutanixWithoutPlacementData(t *testing.T) {
	src := newSource()
	src.clusters = nil
	src.networks = nil
	f := NewClone(src)

	require.NoError(t, f.SelectSourceLabel("ubuntu (nutanix)"))
	f.SetName("db-03")
	assert.Equal(t, StateFullySpecified, f.State())
}

func TestCreateForm(t *testing.T) {
	f := NewCreate(newSource())
	v := f.View()
	require.NotEmpty(t, v.Sources)
	assert.Equal(t, Option{Value: "", Label: "Create from scratch"}, v.Sources[0])

	_, err := f.CloneRequest()
	require.Error(t, err)

	require.NoError(t, f.SelectProvider(ProviderChange{Provider: domain.ProviderVMware}))
	f.SetName("scratch")
	f.SetOSType("linux")
	assert.Equal(t, StateFullySpecified, f.State(), "template is optional")

	req, err := f.CreateRequest()
	require.NoError(t, err)
	assert.Empty(t, req.Template)
	assert.Equal(t, "linux", req.OSType)

	require.NoError(t, f.SelectSource(SourceChange{Option: Option{Value: "ubuntu", Provider: domain.ProviderVMware}}))
	req, err = f.CreateRequest()
	require.NoError(t, err)
	assert.Equal(t, "ubuntu", req.Template)
	assert.True(t, f.View().Sources[0].Hidden == false, "scratch option is never hidden")
}

func TestReset(t *testing.T) {
	f := NewClone(newSource())
	require.NoError(t, f.SelectSourceLabel("ubuntu (nutanix)"))
	f.SetName("x")
	f.SetSizing(8, 8192, 100)

	f.Reset()

	assert.Equal(t, StateEmpty, f.State())
	sel := f.Selection()
	assert.Equal(t, domain.DefaultCPU, sel.CPU)
	assert.Equal(t, domain.DefaultRAMMB, sel.RAM)
	assert.Equal(t, domain.DefaultDiskGB, sel.Disk)
	assert.False(t, f.View().PlacementVisible)
	assert.Empty(t, f.View().Clusters)
}

func TestSessionEnded_DropsPreviousOptions(t *testing.T) {
	src := newSource()
	f := NewClone(src)
	require.NoError(t, f.SelectSourceLabel("ubuntu (nutanix)"))
	require.NotEmpty(t, f.View().Providers)

	src.providers = nil
	src.templates = nil
	src.clusters = domain.ResourceSets{}
	src.networks = domain.ResourceSets{}
	ev := domain.NewChangeEvent(domain.EventSessionEnded, "", 0, 0)
	require.NoError(t, f.Handle(context.Background(), ev))

	v := f.View()
	assert.Empty(t, v.Providers)
	assert.Empty(t, v.Sources)
	assert.Empty(t, v.Clusters)
	assert.Equal(t, StateEmpty, f.State())
	assert.Nil(t, f.Selection().Source)
}

type countingBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBackend) hit() {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
}

func (b *countingBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *countingBackend) ProviderStatus(context.Context) ([]domain.Provider, error) {
	b.hit()
	return newSource().providers, nil
}

func (b *countingBackend) Providers(context.Context) ([]domain.ProviderID, error) {
	b.hit()
	return []domain.ProviderID{domain.ProviderVMware, domain.ProviderNutanix}, nil
}

func (b *countingBackend) VMs(context.Context, domain.ProviderID) ([]domain.VirtualMachine, error) {
	b.hit()
	return nil, nil
}

func (b *countingBackend) Templates(context.Context) ([]string, error) {
	b.hit()
	return []string{"win10-template"}, nil
}

func (b *countingBackend) Clusters(context.Context) (domain.ResourceSets, error) {
	b.hit()
	return domain.ResourceSets{domain.ProviderNutanix: {"cluster-a"}}, nil
}

func (b *countingBackend) Networks(context.Context) (domain.ResourceSets, error) {
	b.hit()
	return domain.ResourceSets{domain.ProviderNutanix: {"vlan-10"}}, nil
}

type noAuth struct{}

func (noAuth) HandleAuthExpired(context.Context, error) bool { return false }

func TestSourceSelection_UsesCacheOnly(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{ReloadPoolSize: 2, BackgroundPoolSize: 1})
	require.NoError(t, err)
	defer pools.Shutdown()
	center := notification.NewCenter(time.Minute)
	defer center.Close()

	backend := &countingBackend{}
	cat := catalog.New(backend, center, noAuth{}, pools.Reload)
	f := NewClone(cat)
	cat.Subscribe(f.Handle)

	require.NoError(t, cat.LoadAll(context.Background()))
	loaded := backend.Calls()

	require.NoError(t, f.SelectSourceLabel("win10-template (nutanix)"))

	assert.Equal(t, loaded, backend.Calls(), "selection must not hit the backend")
	v := f.View()
	assert.Equal(t, domain.ProviderNutanix, v.Selection.Provider)
	assert.True(t, v.PlacementVisible)
	assert.Equal(t, []Option{{Value: "cluster-a", Label: "cluster-a"}}, v.Clusters)
	assert.Equal(t, []Option{{Value: "vlan-10", Label: "vlan-10"}}, v.Networks)
}
