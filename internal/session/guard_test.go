package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/apiclient"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

type fakeBackend struct {
	profile    func() (*domain.User, error)
	logoutErr  error
	loginErr   error
	logoutCall int
}

func (f *fakeBackend) Profile(context.Context) (*domain.User, error) { return f.profile() }
func (f *fakeBackend) Login(context.Context, string, string) error   { return f.loginErr }
func (f *fakeBackend) Logout(context.Context) error {
	f.logoutCall++
	return f.logoutErr
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

func (n *navRecorder) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type setCall struct {
	urlPath    string
	cookiePath string
	name       string
	maxAge     int
}

type recordingJar struct {
	calls []setCall
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		j.calls = append(j.calls, setCall{u.Path, c.Path, c.Name, c.MaxAge})
	}
}

func (j *recordingJar) Cookies(*url.URL) []*http.Cookie { return nil }

func testBase() *url.URL {
	u, _ := url.Parse("http://127.0.0.1:5000")
	return u
}

func newGuard(b Backend, jar http.CookieJar, nav Navigator, page string) (*Guard, *notification.Recorder) {
	rec := notification.NewRecorder()
	center := notification.NewCenter(time.Minute, rec)
	g := NewGuard(b, jar, testBase(), nav, center, Options{PagePath: page})
	return g, rec
}

func TestCheckSession_Authenticated(t *testing.T) {
	b := &fakeBackend{profile: func() (*domain.User, error) {
		return &domain.User{Username: "jdoe", FirstName: "Jane"}, nil
	}}
	nav := &navRecorder{}
	g, _ := newGuard(b, &recordingJar{}, nav, "/")

	s := g.CheckSession(context.Background())
	assert.True(t, s.Authenticated)
	assert.Equal(t, "Jane", g.DisplayName())
	assert.Empty(t, nav.Paths())
}

func TestCheckSession_PurgesAllScopesOnAuthExpired(t *testing.T) {
	b := &fakeBackend{profile: func() (*domain.User, error) {
		return nil, apperrors.AuthExpired(http.StatusOK, "Token has expired")
	}}
	jar := &recordingJar{}
	nav := &navRecorder{}
	g, rec := newGuard(b, jar, nav, "/vms/list")

	ended := 0
	g.OnSessionEnd(func() { ended++ })

	s := g.CheckSession(context.Background())
	assert.False(t, s.Authenticated)
	assert.Equal(t, []string{"/login.html"}, nav.Paths())
	assert.Equal(t, 1, ended)
	assert.Empty(t, rec.Shown(), "auth expiry is never an inline notification")

	require.Len(t, jar.calls, len(Cookies)*3)
	for _, name := range Cookies {
		var scopes []string
		for _, c := range jar.calls {
			if c.name == name {
				assert.Equal(t, -1, c.maxAge)
				scopes = append(scopes, c.cookiePath)
			}
		}
		assert.ElementsMatch(t, []string{"/", "/vms/list", ""}, scopes, name)
	}
}

func TestCheckSession_OtherHTTPFailureRedirectsWithoutPurge(t *testing.T) {
	b := &fakeBackend{profile: func() (*domain.User, error) {
		return nil, apperrors.Structured(http.StatusNotFound, "Not Found")
	}}
	jar := &recordingJar{}
	nav := &navRecorder{}
	g, _ := newGuard(b, jar, nav, "/")

	g.CheckSession(context.Background())
	assert.Equal(t, []string{"/login.html"}, nav.Paths())
	assert.Empty(t, jar.calls)
}

func TestCheckSession_TransportFailureDoesNotNavigate(t *testing.T) {
	b := &fakeBackend{profile: func() (*domain.User, error) {
		return nil, apperrors.Transport(errors.New("connection refused"), "request failed")
	}}
	nav := &navRecorder{}
	g, rec := newGuard(b, &recordingJar{}, nav, "/")

	s := g.CheckSession(context.Background())
	assert.False(t, s.Authenticated)
	assert.Empty(t, nav.Paths())
	assert.Equal(t, []string{"Error checking session"}, rec.Messages(notification.SeverityError))
}

func TestCheckSession_ProfileWithoutUserStaysPut(t *testing.T) {
	b := &fakeBackend{profile: func() (*domain.User, error) {
		return nil, apiclient.ErrNoProfileUser
	}}
	jar := &recordingJar{}
	nav := &navRecorder{}
	g, rec := newGuard(b, jar, nav, "/")

	s := g.CheckSession(context.Background())
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.User)
	assert.Empty(t, nav.Paths())
	assert.Empty(t, jar.calls)
	assert.Empty(t, rec.Messages(notification.SeverityError))
}

func TestCheckSession_SkippedOnEntryPages(t *testing.T) {
	for _, page := range []string{"/login.html", "/app/register.html"} {
		t.Run(page, func(t *testing.T) {
			b := &fakeBackend{profile: func() (*domain.User, error) {
				t.Error("profile must not be probed on an entry page")
				return nil, nil
			}}
			nav := &navRecorder{}
			g, _ := newGuard(b, &recordingJar{}, nav, page)
			g.CheckSession(context.Background())
			assert.Empty(t, nav.Paths())
		})
	}
}

func TestLogout_AlwaysPurgesAndNavigates(t *testing.T) {
	for _, backendErr := range []error{nil, apperrors.Transport(errors.New("down"), "request failed")} {
		b := &fakeBackend{logoutErr: backendErr}
		jar := &recordingJar{}
		nav := &navRecorder{}
		g, _ := newGuard(b, jar, nav, "/")

		g.Logout(context.Background())
		assert.Equal(t, 1, b.logoutCall)
		assert.Len(t, jar.calls, len(Cookies)*3)
		assert.Equal(t, []string{"/login.html"}, nav.Paths())
	}
}

func TestLogin(t *testing.T) {
	nav := &navRecorder{}
	g, _ := newGuard(&fakeBackend{}, &recordingJar{}, nav, "/login.html")
	require.NoError(t, g.Login(context.Background(), "jdoe", "pw"))
	assert.Equal(t, []string{"/"}, nav.Paths())

	nav = &navRecorder{}
	g, _ = newGuard(&fakeBackend{loginErr: apperrors.Structured(401, "Invalid credentials")}, &recordingJar{}, nav, "/login.html")
	err := g.Login(context.Background(), "jdoe", "bad")
	assert.Equal(t, "Invalid credentials", apperrors.Message(err))
	assert.Empty(t, nav.Paths())
}

func TestHandleAuthExpired(t *testing.T) {
	nav := &navRecorder{}
	g, _ := newGuard(&fakeBackend{}, &recordingJar{}, nav, "/")

	assert.False(t, g.HandleAuthExpired(context.Background(), apperrors.Structured(400, "x")))
	assert.Empty(t, nav.Paths())
	assert.True(t, g.HandleAuthExpired(context.Background(), apperrors.AuthExpired(401, "Unauthorized")))
	assert.True(t, g.HandleAuthExpired(context.Background(), apperrors.AuthExpired(401, "Unauthorized")))
	assert.Equal(t, []string{"/login.html"}, nav.Paths(), "one navigation per expired session")
}

// Any profile response carrying a token-error message purges the stored
// cookies and navigates to login, whatever its status.
func TestCheckSession_TokenErrorMessageEndToEnd(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		for _, msg := range apiclient.TokenErrorMarkers {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
			}))

			jar, err := NewFileJar("")
			require.NoError(t, err)
			base, _ := url.Parse(srv.URL)
			page := *base
			page.Path = "/dashboard/vms"
			for _, name := range Cookies {
				jar.SetCookies(base, []*http.Cookie{{Name: name, Value: "v", Path: "/"}})
				jar.SetCookies(&page, []*http.Cookie{{Name: name, Value: "v", Path: "/dashboard/vms"}})
				jar.SetCookies(&page, []*http.Cookie{{Name: name, Value: "v"}})
			}
			require.Len(t, jar.Entries(), len(Cookies)*3)

			client, err := apiclient.New(srv.URL, jar)
			require.NoError(t, err)
			nav := &navRecorder{}
			g := NewGuard(client, jar, base, nav, notification.NewCenter(time.Minute), Options{PagePath: "/dashboard/vms"})

			g.CheckSession(context.Background())
			assert.Empty(t, jar.Entries(), "status %d msg %q", status, msg)
			assert.Equal(t, []string{"/login.html"}, nav.Paths())
			srv.Close()
		}
	}
}
