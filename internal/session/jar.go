package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// StoredCookie is one persisted cookie.
type StoredCookie struct {
	URL      string    `yaml:"url"`
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Domain   string    `yaml:"domain,omitempty"`
	Path     string    `yaml:"path"`
	Expires  time.Time `yaml:"expires,omitempty"`
	Secure   bool      `yaml:"secure,omitempty"`
	HttpOnly bool      `yaml:"http_only,omitempty"`
}

type jarFile struct {
	Cookies []StoredCookie `yaml:"cookies"`
}

// FileJar is a cookie jar that survives between runs. Matching is delegated to
// net/http/cookiejar; FileJar keeps a copy of every live cookie keyed by
// domain, path and name so it can be written to disk.
type FileJar struct {
	path  string
	inner *cookiejar.Jar

	mu      sync.Mutex
	entries map[string]StoredCookie
}

// NewFileJar creates a jar backed by path and loads it if the file exists.
// An empty path keeps cookies in memory only.
func NewFileJar(path string) (*FileJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &FileJar{path: path, inner: inner, entries: make(map[string]StoredCookie)}
	if path == "" {
		return j, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var f jarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	now := time.Now()
	for _, sc := range f.Cookies {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		j.SetCookies(u, []*http.Cookie{sc.cookie()})
	}
	return j, nil
}

func (sc StoredCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Domain:   sc.Domain,
		Path:     sc.Path,
		Expires:  sc.Expires,
		Secure:   sc.Secure,
		HttpOnly: sc.HttpOnly,
	}
}

// SetCookies implements http.CookieJar.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	for _, c := range cookies {
		path := c.Path
		if path == "" || path[0] != '/' {
			path = defaultPath(u.Path)
		}
		host := strings.ToLower(u.Hostname())
		domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if domain == "" {
			domain = host
		}
		key := domain + ";" + path + ";" + c.Name

		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now)) {
			delete(j.entries, key)
			continue
		}
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.entries[key] = StoredCookie{
			URL:      (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String(),
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// Entries returns the live cookies sorted by name then path.
func (j *FileJar) Entries() []StoredCookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	out := make([]StoredCookie, 0, len(j.entries))
	for _, sc := range j.entries {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].Path < out[b].Path
	})
	return out
}

// Save writes the live cookies to the jar file with 0600 permissions.
func (j *FileJar) Save() error {
	if j.path == "" {
		return nil
	}
	data, err := yaml.Marshal(jarFile{Cookies: j.Entries()})
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return os.Rename(tmp, j.path)
}

// defaultPath is the RFC 6265 default-path of a request path.
func defaultPath(path string) string {
	if path == "" || path[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/"
	}
	return path[:i]
}
