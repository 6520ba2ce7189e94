// Package testutil starts an in-process fake backend for integration tests.
package testutil

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/mockapi"
)

// Test account seeded into every backend.
const (
	Username = "alice"
	Password = "secret"
)

const signingKey = "testutil-signing-key-0123456789abcdef"

// Backend is a running fake backend.
type Backend struct {
	URL    string
	Server *mockapi.Server
	HTTP   *httptest.Server
}

// StartBackend serves the default seed with one account. The server stops
// when the test ends.
func StartBackend(t *testing.T) *Backend {
	t.Helper()

	seed, err := mockapi.DefaultSeed()
	if err != nil {
		t.Fatalf("load default seed: %v", err)
	}
	// Low cost keeps login and registration fast.
	store := mockapi.NewStore(mockapi.WithPasswordCost(bcrypt.MinCost))
	store.Seed(seed)

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash test password: %v", err)
	}
	if err := store.AddUser(domain.User{Username: Username, FirstName: "Alice", LastName: "Martin"}, string(hash)); err != nil {
		t.Fatalf("add test user: %v", err)
	}

	srv, err := mockapi.NewServer(config.MockConfig{SigningKey: signingKey}, store)
	if err != nil {
		t.Fatalf("start fake backend: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &Backend{URL: ts.URL, Server: srv, HTTP: ts}
}

// Config returns a valid configuration pointing at baseURL, with the cookie
// file in a per-test directory.
func Config(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		Session: config.SessionConfig{
			CookieFile:   filepath.Join(t.TempDir(), "cookies.yaml"),
			LoginPath:    "/login.html",
			RegisterPath: "/register.html",
			PagePath:     "/",
		},
		Notification: config.NotificationConfig{TTL: time.Minute},
		Log:          config.LogConfig{Level: "error", Format: "json"},
		Worker:       config.WorkerConfig{ReloadPoolSize: 4, BackgroundPoolSize: 2},
		Watch:        config.WatchConfig{Listen: "127.0.0.1:0", Interval: time.Minute},
		Mock:         config.MockConfig{SigningKey: signingKey},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}
