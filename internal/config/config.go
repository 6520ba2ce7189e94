// Package config provides configuration management for vmdash.
//
// Configuration is loaded from:
// 1. vmdash.yaml (optional; ., ./config, $HOME/.vmdash, /etc/vmdash, or an explicit path)
// 2. Environment variables (nested keys joined by "_", e.g. BACKEND_BASE_URL, LOG_LEVEL)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"vmdash.io/vmdash/internal/pkg/worker"
)

// Config is the root configuration structure.
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Session      SessionConfig      `mapstructure:"session"`
	Notification NotificationConfig `mapstructure:"notification"`
	Log          LogConfig          `mapstructure:"log"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Watch        WatchConfig        `mapstructure:"watch"`
	Mock         MockConfig         `mapstructure:"mock"`
}

// BackendConfig points the client at the VM management REST backend.
type BackendConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// SessionConfig contains cookie storage and entry page settings.
type SessionConfig struct {
	CookieFile   string `mapstructure:"cookie_file"`
	LoginPath    string `mapstructure:"login_path"`
	RegisterPath string `mapstructure:"register_path"`
	// PagePath is the "current page" cookie scope purged on session expiry.
	PagePath string `mapstructure:"page_path"`
}

// NotificationConfig contains notification display settings.
type NotificationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	ReloadPoolSize     int `mapstructure:"reload_pool_size"`
	BackgroundPoolSize int `mapstructure:"background_pool_size"`
}

// WatchConfig contains live dashboard server settings.
type WatchConfig struct {
	Listen         string        `mapstructure:"listen"`
	Interval       time.Duration `mapstructure:"interval"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// MockConfig contains fake backend settings.
type MockConfig struct {
	Listen     string        `mapstructure:"listen"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	SeedFile   string        `mapstructure:"seed_file"`
	Users      []MockUser    `mapstructure:"users"`
	// PasswordCost is the bcrypt cost for plain-text and registered passwords.
	PasswordCost int `mapstructure:"password_cost"`
}

// MockUser is a fake backend account. Password may be plain text or a bcrypt hash.
type MockUser struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FirstName string `mapstructure:"first_name"`
	LastName  string `mapstructure:"last_name"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables. An empty path
// searches the default locations; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vmdash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".vmdash"))
		}
		v.AddConfigPath("/etc/vmdash")
	}

	// backend.base_url -> BACKEND_BASE_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Notification.TTL <= 0 {
		return fmt.Errorf("notification.ttl must be positive")
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") {
		return fmt.Errorf("session.login_path must start with /")
	}
	if c.Worker.ReloadPoolSize <= 0 {
		return fmt.Errorf("worker.reload_pool_size must be positive")
	}
	if c.Worker.BackgroundPoolSize < worker.MinBackgroundPoolSize {
		return fmt.Errorf("worker.background_pool_size must be at least %d", worker.MinBackgroundPoolSize)
	}
	if len(c.Mock.SigningKey) < 32 {
		return fmt.Errorf("mock.signing_key must be at least 32 characters")
	}
	if cost := c.Mock.PasswordCost; cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
		return fmt.Errorf("mock.password_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// ensureSecrets auto-generates the fake backend signing key when missing.
func (c *Config) ensureSecrets() error {
	if c.Mock.SigningKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate signing key: %w", err)
		}
		c.Mock.SigningKey = key
		logBootstrapWarn(
			"auto-generated mock.signing_key; set MOCK_SIGNING_KEY env var so tokens survive restarts",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DefaultCookieFile is $HOME/.vmdash/cookies.yaml, or a relative path when
// the home directory is unknown.
func DefaultCookieFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".vmdash", "cookies.yaml")
	}
	return filepath.Join(home, ".vmdash", "cookies.yaml")
}

func setDefaults(v *viper.Viper) {
	// Backend
	v.SetDefault("backend.base_url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.insecure_skip_verify", false)

	// Session
	v.SetDefault("session.cookie_file", DefaultCookieFile())
	v.SetDefault("session.login_path", "/login.html")
	v.SetDefault("session.register_path", "/register.html")
	v.SetDefault("session.page_path", "/")

	// Notification
	v.SetDefault("notification.ttl", "5s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Worker pools
	v.SetDefault("worker.reload_pool_size", 8)
	v.SetDefault("worker.background_pool_size", 2)

	// Live dashboard
	v.SetDefault("watch.listen", "127.0.0.1:8090")
	v.SetDefault("watch.interval", "30s")
	v.SetDefault("watch.allowed_origins", []string{"http://localhost:8090", "http://127.0.0.1:8090"})

	// Fake backend
	v.SetDefault("mock.listen", ":5000")
	v.SetDefault("mock.token_ttl", "1h")
	v.SetDefault("mock.seed_file", "")
	v.SetDefault("mock.password_cost", 12)
}
