package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestComputeStats(t *testing.T) {
	vms := []VirtualMachine{
		{Name: "a", Hypervisor: ProviderVMware, State: VMStateRunning},
		{Name: "b", Hypervisor: ProviderVMware, State: "Running"},
		{Name: "c", Hypervisor: ProviderVMware, State: VMStateStopped},
		{Name: "d", Hypervisor: ProviderNutanix, State: VMStateRunning},
		{Name: "e", Hypervisor: ProviderNutanix, State: VMStateStopped},
	}

	stats := ComputeStats(vms)
	if stats.Total != 5 || stats.Running != 3 || stats.Stopped != 2 {
		t.Fatalf("stats = %+v, want total 5 running 3 stopped 2", stats)
	}
	if stats.ByProvider[ProviderVMware] != 3 || stats.ByProvider[ProviderNutanix] != 2 {
		t.Fatalf("by provider = %v, want vmware 3 nutanix 2", stats.ByProvider)
	}
}

func TestComputeStats_SuspendedCountsOnlyInTotal(t *testing.T) {
	stats := ComputeStats([]VirtualMachine{{Name: "s", Hypervisor: ProviderVMware, State: VMStateSuspended}})
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Running+stats.Stopped)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.ByProvider[ProviderNutanix])
	assert.Len(t, stats.ByProvider, 2)
}

func TestProviderStatus(t *testing.T) {
	tests := []struct {
		name   string
		p      Provider
		want   ProviderStatus
		online string
	}{
		{"ready", Provider{ID: ProviderVMware, Enabled: true, Connected: true}, ProviderReady, "Online"},
		{"not connected", Provider{ID: ProviderVMware, Enabled: true}, ProviderNotConnected, "Offline"},
		{"disabled ignores connected", Provider{ID: ProviderNutanix, Connected: true}, ProviderDisabled, "Disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
			if got := tt.p.Online(); got != tt.online {
				t.Errorf("Online() = %q, want %q", got, tt.online)
			}
		})
	}
}

func TestParseProviderID(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderID
		ok   bool
	}{
		{"vmware", ProviderVMware, true},
		{" Nutanix ", ProviderNutanix, true},
		{"xen", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseProviderID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProviderID(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSortProviders(t *testing.T) {
	ps := []Provider{{ID: "zzz"}, {ID: ProviderNutanix}, {ID: ProviderVMware}}
	SortProviders(ps)
	assert.Equal(t, []ProviderID{ProviderVMware, ProviderNutanix, "zzz"}, []ProviderID{ps[0].ID, ps[1].ID, ps[2].ID})
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{"full name", &User{Username: "jdoe", FirstName: "Jane", LastName: "Doe"}, "Jane Doe"},
		{"first only", &User{Username: "jdoe", FirstName: "Jane"}, "Jane"},
		{"username fallback", &User{Username: "jdoe"}, "jdoe"},
		{"generic fallback", &User{}, "User"},
		{"nil user", nil, "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombineTemplates(t *testing.T) {
	got := CombineTemplates([]string{"win10", "ubuntu"})
	want := []Template{
		{Name: "win10", Provider: ProviderVMware},
		{Name: "win10", Provider: ProviderNutanix},
		{Name: "ubuntu", Provider: ProviderVMware},
		{Name: "ubuntu", Provider: ProviderNutanix},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "win10 (nutanix)", got[1].Label())
	assert.NotEqual(t, got[0], got[1], "same name on two providers is two templates")
}

func TestFilterByProvider(t *testing.T) {
	vms := []VirtualMachine{
		{Name: "a", Hypervisor: ProviderVMware},
		{Name: "b", Hypervisor: ProviderNutanix},
	}
	assert.Len(t, FilterByProvider(vms, ""), 2)
	nutanix := FilterByProvider(vms, ProviderNutanix)
	require.Len(t, nutanix, 1)
	assert.Equal(t, "b", nutanix[0].Name)
}

func TestResourceSets_CopiesAreIndependent(t *testing.T) {
	sets := ResourceSets{ProviderNutanix: {"c1", "c2"}}
	names := sets.For(ProviderNutanix)
	names[0] = "mutated"
	clone := sets.Clone()
	clone[ProviderNutanix][1] = "mutated"

	assert.Equal(t, []string{"c1", "c2"}, sets[ProviderNutanix])
	assert.Nil(t, sets.For(ProviderVMware))
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"start", "STOP", "restart", "delete", "console"} {
		if _, ok := ParseAction(s); !ok {
			t.Errorf("ParseAction(%q) rejected", s)
		}
	}
	if _, ok := ParseAction("pause"); ok {
		t.Error("ParseAction(pause) accepted")
	}
	assert.True(t, ActionRestart.IsPower())
	assert.False(t, ActionDelete.IsPower())
}

func TestEventDispatcher(t *testing.T) {
	d := NewEventDispatcher()
	var got []string

	d.Register(EventVMsReloaded, func(ctx context.Context, e *ChangeEvent) error {
		got = append(got, "vms")
		return errors.New("boom")
	})
	d.Register(EventAny, func(ctx context.Context, e *ChangeEvent) error {
		got = append(got, "any:"+string(e.Resource))
		return nil
	})

	err := d.Dispatch(context.Background(), NewChangeEvent(EventVMsReloaded, ResourceVMs, 1, 3))
	require.Error(t, err)
	assert.Equal(t, []string{"vms", "any:vms"}, got, "failing handler must not stop the rest")

	got = nil
	require.NoError(t, d.Dispatch(context.Background(), NewChangeEvent(EventClustersReloaded, ResourceClusters, 1, 0)))
	assert.Equal(t, []string{"any:clusters"}, got)
}

func TestNewChangeEvent(t *testing.T) {
	e := NewChangeEvent(EventTemplatesReloaded, ResourceTemplates, 7, 4)
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, uint64(7), e.Sequence)
	assert.Equal(t, EventTemplatesReloaded, ResourceTemplates.ReloadedEvent())
}
