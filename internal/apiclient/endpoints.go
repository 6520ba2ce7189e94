package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
)

// ErrNoProfileUser is returned when the profile endpoint answers OK without
// a logged-in user. It carries no HTTP status: the session is not known to be
// invalid, only anonymous.
var ErrNoProfileUser = errors.New("profile response has no user")

func vmPath(name string, rest ...string) string {
	p := "/api/vms/" + url.PathEscape(name)
	for _, seg := range rest {
		p += "/" + url.PathEscape(seg)
	}
	return p
}

// Login posts credentials. On success the backend sets the session cookies in
// the client's jar. A rejected login is a StructuredFailure carrying the
// backend's message, never AuthExpired.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"Username": username, "password": password}
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/api/login", body: body, credentialCheck: true}, nil)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && apperrors.IsStructured(err) && appErr.Message == http.StatusText(appErr.HTTPStatus) {
			appErr.Message = "Login failed"
		}
		return err
	}
	return nil
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username  string `json:"Username"`
	Password  string `json:"password"`
	FirstName string `json:"Prenom,omitempty"`
	LastName  string `json:"Nom,omitempty"`
}

// Register creates an account and returns the backend message.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/api/register", body: req, credentialCheck: true}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Logout ends the backend session. The returned error is informational.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/logout"}, nil)
	return err
}

// Profile returns the logged-in user. A well-formed 200 without a user is a
// StructuredFailure.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	var out struct {
		LoggedInAs *domain.User `json:"logged_in_as"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/profile"}, &out); err != nil {
		return nil, err
	}
	if out.LoggedInAs == nil {
		return nil, ErrNoProfileUser
	}
	return out.LoggedInAs, nil
}

// ProviderStatus returns every configured provider, in display order.
func (c *Client) ProviderStatus(ctx context.Context) ([]domain.Provider, error) {
	var out struct {
		Providers map[string]struct {
			Enabled   bool `json:"enabled"`
			Connected bool `json:"connected"`
		} `json:"providers"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/providers/status"}, &out); err != nil {
		return nil, err
	}
	providers := make([]domain.Provider, 0, len(out.Providers))
	for name, st := range out.Providers {
		providers = append(providers, domain.Provider{
			ID:        domain.ProviderID(name),
			Enabled:   st.Enabled,
			Connected: st.Enabled && st.Connected,
		})
	}
	domain.SortProviders(providers)
	return providers, nil
}

// Providers returns the names of the providers the backend has loaded.
func (c *Client) Providers(ctx context.Context) ([]domain.ProviderID, error) {
	var out struct {
		Providers []domain.ProviderID `json:"providers"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/providers"}, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// VMs lists virtual machines. An empty provider lists all enabled providers.
func (c *Client) VMs(ctx context.Context, provider domain.ProviderID) ([]domain.VirtualMachine, error) {
	var out struct {
		VMs []domain.VirtualMachine `json:"vms"`
	}
	req := request{method: http.MethodGet, path: "/api/vms", query: providerQuery(string(provider))}
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.VMs == nil {
		out.VMs = []domain.VirtualMachine{}
	}
	return out.VMs, nil
}

// VM returns one virtual machine.
func (c *Client) VM(ctx context.Context, name string, provider domain.ProviderID) (*domain.VirtualMachine, error) {
	var out struct {
		VM *domain.VirtualMachine `json:"vm"`
	}
	req := request{method: http.MethodGet, path: vmPath(name), query: providerQuery(string(provider))}
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.VM == nil {
		return nil, apperrors.Structured(http.StatusOK, "VM not found")
	}
	return out.VM, nil
}

// Templates returns template names; the endpoint does not say which provider
// owns each one.
func (c *Client) Templates(ctx context.Context) ([]string, error) {
	var out struct {
		Templates []string `json:"templates"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/templates"}, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

// Clusters returns cluster names per provider.
func (c *Client) Clusters(ctx context.Context) (domain.ResourceSets, error) {
	var out struct {
		Clusters domain.ResourceSets `json:"clusters"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/clusters"}, &out); err != nil {
		return nil, err
	}
	if out.Clusters == nil {
		out.Clusters = domain.ResourceSets{}
	}
	return out.Clusters, nil
}

// Networks returns network names per provider.
func (c *Client) Networks(ctx context.Context) (domain.ResourceSets, error) {
	var out struct {
		Networks domain.ResourceSets `json:"networks"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/networks"}, &out); err != nil {
		return nil, err
	}
	if out.Networks == nil {
		out.Networks = domain.ResourceSets{}
	}
	return out.Networks, nil
}

// Clone submits a clone and returns the backend message.
func (c *Client) Clone(ctx context.Context, req domain.CloneRequest) (string, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/api/vms/clone", body: req}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Create submits a new VM and returns the backend message.
func (c *Client) Create(ctx context.Context, req domain.CreateRequest) (string, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/api/vms", body: req}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Power runs start, stop or restart and returns the backend message.
func (c *Client) Power(ctx context.Context, name string, action domain.Action, provider domain.ProviderID) (string, error) {
	if !action.IsPower() {
		return "", apperrors.ErrInvalidActionf(string(action))
	}
	req := request{method: http.MethodPost, path: vmPath(name, string(action)), query: providerQuery(string(provider))}
	env, err := c.do(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Delete removes a VM and returns the backend message.
func (c *Client) Delete(ctx context.Context, name string, provider domain.ProviderID) (string, error) {
	req := request{method: http.MethodDelete, path: vmPath(name), query: providerQuery(string(provider))}
	env, err := c.do(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Console asks the backend for a console session.
func (c *Client) Console(ctx context.Context, name string, provider domain.ProviderID) (*domain.ConsoleResult, error) {
	var out domain.ConsoleResult
	req := request{method: http.MethodPost, path: vmPath(name, "console"), query: providerQuery(string(provider))}
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// settingsWire is the backend's configuration document.
type settingsWire struct {
	DefaultProvider domain.ProviderID `json:"default_provider"`
	Providers       struct {
		VMware  *domain.VMwareSettings  `json:"vmware"`
		Nutanix *domain.NutanixSettings `json:"nutanix"`
	} `json:"providers"`
}

// Settings reads the provider configuration.
func (c *Client) Settings(ctx context.Context) (*domain.AppSettings, error) {
	var out struct {
		Config settingsWire `json:"config"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/config"}, &out); err != nil {
		return nil, err
	}
	s := &domain.AppSettings{DefaultProvider: out.Config.DefaultProvider}
	if v := out.Config.Providers.VMware; v != nil {
		s.VMware = *v
	}
	if n := out.Config.Providers.Nutanix; n != nil {
		s.Nutanix = *n
		s.Nutanix.Password = ""
	}
	return s, nil
}

// UpdateProviderConfig replaces one provider's configuration and returns the
// backend message. cfg is a domain.VMwareSettings or domain.NutanixSettings.
func (c *Client) UpdateProviderConfig(ctx context.Context, provider domain.ProviderID, cfg any) (string, error) {
	body := map[string]any{"provider": provider, "config": cfg}
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/api/config/providers", body: body}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// SetDefaultProvider changes the default provider and returns the backend message.
func (c *Client) SetDefaultProvider(ctx context.Context, provider domain.ProviderID) (string, error) {
	body := map[string]any{"provider": provider}
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/api/config/default-provider", body: body}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// CreateSnapshot snapshots a VM.
func (c *Client) CreateSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error) {
	body := domain.SnapshotRequest{Name: snapshot, Provider: provider}
	env, err := c.do(ctx, request{method: http.MethodPost, path: vmPath(vmName, "snapshots"), body: body}, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// RestoreSnapshot reverts a VM to a snapshot.
func (c *Client) RestoreSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error) {
	req := request{method: http.MethodPost, path: vmPath(vmName, "snapshots", snapshot, "restore"), query: providerQuery(string(provider))}
	env, err := c.do(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// DeleteSnapshot removes a snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, vmName, snapshot string, provider domain.ProviderID) (string, error) {
	req := request{method: http.MethodDelete, path: vmPath(vmName, "snapshots", snapshot), query: providerQuery(string(provider))}
	env, err := c.do(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Snapshots lists a VM's snapshot names.
func (c *Client) Snapshots(ctx context.Context, vmName string, provider domain.ProviderID) ([]string, error) {
	var out struct {
		Snapshots []string `json:"snapshots"`
	}
	req := request{method: http.MethodGet, path: vmPath(vmName, "snapshots"), query: providerQuery(string(provider))}
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}
