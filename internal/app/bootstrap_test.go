package app

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/session"
	"vmdash.io/vmdash/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type navRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (n *navRecorder) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *navRecorder) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

type harness struct {
	app      *Application
	nav      *navRecorder
	recorder *notification.Recorder
	backend  *testutil.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := testutil.StartBackend(t)
	jar, _ := cookiejar.New(nil)
	h := &harness{nav: &navRecorder{}, recorder: notification.NewRecorder(), backend: backend}

	app, err := Bootstrap(context.Background(), testutil.Config(t, backend.URL), Options{
		Navigator: h.nav,
		Sinks:     []notification.Sink{h.recorder},
		Jar:       jar,
	})
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	h.app = app
	return h
}

func TestEnter_WithoutSessionNavigatesToLogin(t *testing.T) {
	h := newHarness(t)

	sess := h.app.Enter(context.Background())
	assert.False(t, sess.Authenticated)
	assert.Equal(t, "/login.html", h.nav.Last())
	assert.Empty(t, h.app.Catalog.VMs())
}

func TestEnter_LoadsDashboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.app.Guard.Login(ctx, testutil.Username, testutil.Password))
	assert.Equal(t, "/", h.nav.Last())

	sess := h.app.Enter(ctx)
	require.True(t, sess.Authenticated)
	assert.Equal(t, testutil.Username, sess.User.Username)

	assert.Len(t, h.app.Catalog.VMs(), 4)
	assert.Len(t, h.app.Catalog.Providers(), 2)
	assert.NotEmpty(t, h.app.CloneForm.View().Providers, "forms follow catalog reloads")
}

func TestEnterForms_LoadsFormData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.app.Guard.Login(ctx, testutil.Username, testutil.Password))

	h.app.Enter(ctx)
	assert.Empty(t, h.app.Catalog.CombinedTemplates(), "the dashboard does not load form data")

	sess := h.app.EnterForms(ctx)
	require.True(t, sess.Authenticated)
	assert.Len(t, h.app.Catalog.CombinedTemplates(), 4)
	assert.Equal(t, []string{"cluster-a", "cluster-b"}, h.app.Catalog.Clusters(domain.ProviderNutanix))
	assert.Equal(t, []string{"vm-network", "backup-network"}, h.app.Catalog.Networks(domain.ProviderNutanix))

	require.NoError(t, h.app.CloneForm.SelectSourceLabel("win10-template (nutanix)"))
	v := h.app.CloneForm.View()
	assert.True(t, v.PlacementVisible)
	assert.Len(t, v.Clusters, 2)
}

func TestEnterForms_WithoutSession(t *testing.T) {
	h := newHarness(t)
	sess := h.app.EnterForms(context.Background())
	assert.False(t, sess.Authenticated)
	assert.Equal(t, "/login.html", h.nav.Last())
	assert.Empty(t, h.app.Catalog.CombinedTemplates())
}

func TestDispatch_ReconcilesCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.app.Guard.Login(ctx, testutil.Username, testutil.Password))
	h.app.Enter(ctx)

	require.NoError(t, h.app.Dispatcher.Dispatch(ctx, "web-01", domain.ActionStop, domain.ProviderVMware))
	assert.Contains(t, h.recorder.Messages(notification.SeveritySuccess), "VM 'web-01' stopped successfully")

	vm, ok := h.app.Catalog.FindVM("web-01", domain.ProviderVMware)
	require.True(t, ok)
	assert.Equal(t, domain.VMStateStopped, vm.State)
}

func TestLogout_ResetsSessionState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.app.Guard.Login(ctx, testutil.Username, testutil.Password))
	h.app.EnterForms(ctx)
	require.NotEmpty(t, h.app.Catalog.VMs())
	require.NotEmpty(t, h.app.CloneForm.View().Sources)

	h.app.Guard.Logout(ctx)
	assert.Equal(t, "/login.html", h.nav.Last())
	assert.False(t, h.app.Guard.Session().Authenticated)
	assert.Empty(t, h.app.Catalog.VMs())
	assert.Empty(t, h.app.CloneForm.View().Providers)
	assert.Empty(t, h.app.CreateForm.View().Sources[1:], "only the scratch option survives")
}

func TestMetrics_CountReloadsAndRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.app.Guard.Login(ctx, testutil.Username, testutil.Password))
	h.app.Enter(ctx)

	rec := httptest.NewRecorder()
	h.app.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "vmdash_catalog_reloads_total")
	assert.Contains(t, string(body), "vmdash_vms")
}

func TestShutdown_PersistsSession(t *testing.T) {
	ctx := context.Background()
	backend := testutil.StartBackend(t)
	cfg := testutil.Config(t, backend.URL)

	first, err := Bootstrap(ctx, cfg, Options{Navigator: session.NavigatorFunc(func(string) {})})
	require.NoError(t, err)
	require.NoError(t, first.Guard.Login(ctx, testutil.Username, testutil.Password))
	first.Shutdown()

	_, err = os.Stat(cfg.Session.CookieFile)
	require.NoError(t, err, "cookie file should be written on shutdown")

	second, err := Bootstrap(ctx, cfg, Options{Navigator: session.NavigatorFunc(func(string) {})})
	require.NoError(t, err)
	defer second.Shutdown()

	sess := second.Enter(ctx)
	assert.True(t, sess.Authenticated, "a saved cookie jar resumes the session")
}

func TestWatchServer(t *testing.T) {
	h := newHarness(t)
	srv := h.app.WatchServer(h.app.Config.Watch)
	require.NotNil(t, srv)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
