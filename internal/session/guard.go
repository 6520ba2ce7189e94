// Package session implements the session guard: it probes the profile
// endpoint on entry, purges session cookies and navigates to the login entry
// point whenever the backend says the session is no longer valid.
package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/apiclient"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

// Cookies are the session artifacts purged on expiry and logout.
var Cookies = []string{
	"access_token_cookie",
	"refresh_token_cookie",
	"csrf_access_token",
	"csrf_refresh_token",
}

// Backend is the part of the API the guard needs.
type Backend interface {
	Profile(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
}

// Navigator performs a full navigation to path, ending the current "page".
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Options configures the entry points and the current page.
type Options struct {
	LoginPath    string
	RegisterPath string
	RootPath     string
	// PagePath is the page the guard runs on; it is also one of the cookie
	// scopes purged on expiry.
	PagePath string
}

func (o *Options) setDefaults() {
	if o.LoginPath == "" {
		o.LoginPath = "/login.html"
	}
	if o.RegisterPath == "" {
		o.RegisterPath = "/register.html"
	}
	if o.RootPath == "" {
		o.RootPath = "/"
	}
	if o.PagePath == "" {
		o.PagePath = o.RootPath
	}
}

// Guard owns the Session. Everything else reads it through Session().
type Guard struct {
	backend  Backend
	jar      http.CookieJar
	baseURL  *url.URL
	nav      Navigator
	notifier notification.Notifier
	opts     Options
	log      *zap.Logger

	mu      sync.RWMutex
	session domain.Session
	expired bool
	onEnd   []func()
}

// NewGuard creates a guard. jar must be the jar the backend client uses.
func NewGuard(backend Backend, jar http.CookieJar, baseURL *url.URL, nav Navigator, notifier notification.Notifier, opts Options) *Guard {
	opts.setDefaults()
	return &Guard{
		backend:  backend,
		jar:      jar,
		baseURL:  baseURL,
		nav:      nav,
		notifier: notifier,
		opts:     opts,
		log:      logger.Named("session"),
		session:  domain.Anonymous(),
	}
}

// OnSessionEnd registers teardown run whenever the session ends (expiry or logout).
func (g *Guard) OnSessionEnd(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onEnd = append(g.onEnd, fn)
}

// Session returns a copy of the current session.
func (g *Guard) Session() domain.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// DisplayName is the published user name, "User" when unknown.
func (g *Guard) DisplayName() string {
	return g.Session().User.DisplayName()
}

// OnEntryPage reports whether the current page is login or registration,
// where the guard must not run.
func (g *Guard) OnEntryPage() bool {
	return strings.HasSuffix(g.opts.PagePath, g.opts.LoginPath) ||
		strings.HasSuffix(g.opts.PagePath, g.opts.RegisterPath)
}

// CheckSession probes the profile endpoint and updates the session.
// Token errors (by status or by message) purge cookies and navigate to login;
// any other non-OK answer navigates without purging. An OK answer without a
// user leaves the session unauthenticated and stays put. A backend that
// cannot be reached does the same but also reports the failure.
func (g *Guard) CheckSession(ctx context.Context) domain.Session {
	if g.OnEntryPage() {
		g.log.Debug("On entry page, skipping session check", zap.String("page", g.opts.PagePath))
		return g.Session()
	}

	user, err := g.backend.Profile(ctx)
	if err == nil {
		g.mu.Lock()
		g.session = domain.Session{Authenticated: true, User: user}
		g.expired = false
		g.mu.Unlock()
		g.log.Debug("Session valid", zap.String("user", user.DisplayName()))
		return g.Session()
	}

	switch {
	case apperrors.IsAuthExpired(err):
		g.expire(ctx, err)
	case errors.Is(err, apiclient.ErrNoProfileUser):
		g.log.Debug("Profile has no user")
		g.end()
	case isHTTPFailure(err):
		g.log.Info("Not authenticated, redirecting to login", zap.Error(err))
		g.end()
		g.nav.Navigate(g.opts.LoginPath)
	default:
		g.log.Warn("Session check failed", zap.Error(err))
		g.end()
		g.notifier.Notify("Error checking session", notification.SeverityError)
	}
	return g.Session()
}

// isHTTPFailure reports an error that came with a non-OK status, whether or
// not its body could be parsed.
func isHTTPFailure(err error) bool {
	appErr, ok := apperrors.IsAppError(err)
	return ok && appErr.HTTPStatus != 0
}

// HandleAuthExpired is where every component routes AuthExpired errors. It
// reports whether err was one; other errors are left to the caller.
func (g *Guard) HandleAuthExpired(ctx context.Context, err error) bool {
	if !apperrors.IsAuthExpired(err) {
		return false
	}
	g.expire(ctx, err)
	return true
}

// expire runs once per session: concurrent reloads failing with the same
// expired token produce a single purge and navigation.
func (g *Guard) expire(_ context.Context, cause error) {
	g.mu.Lock()
	already := g.expired
	g.expired = true
	g.mu.Unlock()
	if already {
		return
	}

	g.log.Info("Session expired, clearing cookies", zap.String("reason", apperrors.Message(cause)))
	g.PurgeCookies()
	g.end()
	g.nav.Navigate(g.opts.LoginPath)
}

// Logout calls the logout endpoint and then, whatever happened, purges the
// cookies and navigates to login.
func (g *Guard) Logout(ctx context.Context) {
	if err := g.backend.Logout(ctx); err != nil {
		g.log.Warn("Logout request failed", zap.Error(err))
	}
	g.PurgeCookies()
	g.end()
	g.nav.Navigate(g.opts.LoginPath)
}

// Login posts credentials; on success it navigates to the application root.
func (g *Guard) Login(ctx context.Context, username, password string) error {
	if err := g.backend.Login(ctx, username, password); err != nil {
		g.log.Info("Login failed", zap.String("username", username), zap.Error(err))
		return err
	}
	g.mu.Lock()
	g.expired = false
	g.mu.Unlock()
	g.log.Info("Login successful", zap.String("username", username))
	g.nav.Navigate(g.opts.RootPath)
	return nil
}

// PurgeCookies expires every session cookie under the root path, the current
// page path and the unscoped (URL default) path.
func (g *Guard) PurgeCookies() {
	if g.jar == nil || g.baseURL == nil {
		return
	}
	page := g.pageURL()
	root := g.scopeURL("/")
	expired := time.Unix(0, 0)

	for _, name := range Cookies {
		g.jar.SetCookies(root, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1, Expires: expired}})
		g.jar.SetCookies(page, []*http.Cookie{{Name: name, Path: page.Path, MaxAge: -1, Expires: expired}})
		g.jar.SetCookies(page, []*http.Cookie{{Name: name, MaxAge: -1, Expires: expired}})
	}
}

// TokenExpiry reads the stored access token without verifying it.
func (g *Guard) TokenExpiry() (*apiclient.TokenInfo, error) {
	if g.jar == nil || g.baseURL == nil {
		return nil, apiclient.ErrNoToken
	}
	return apiclient.InspectToken(g.jar.Cookies(g.scopeURL("/")))
}

func (g *Guard) pageURL() *url.URL {
	return g.scopeURL(g.opts.PagePath)
}

func (g *Guard) scopeURL(path string) *url.URL {
	u := *g.baseURL
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	return &u
}

// end resets the session and runs teardown hooks.
func (g *Guard) end() {
	g.mu.Lock()
	g.session = domain.Anonymous()
	hooks := append([]func(){}, g.onEnd...)
	g.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
