package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagenote/internal/background"
	"github.com/starford/pagenote/internal/cache"
	"github.com/starford/pagenote/internal/scheduler"
	"github.com/starford/pagenote/internal/session"
	"github.com/starford/pagenote/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Session SessionConfig     `yaml:"session"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects the durable store backend.
//
// Path is the SQLite database file for "sqlite" and the base directory for
// "diskv". It is ignored by "memory".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	// Watch enables reloading notes changed by other processes (diskv only).
	Watch bool `yaml:"watch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(storage.DriverSQLite, storage.DriverDiskv, storage.DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver != storage.DriverMemory, validation.Required)),
	)
}

// SessionConfig holds the tunables of every popup session.
type SessionConfig struct {
	CacheSize        int           `yaml:"cache_size"`
	Debounce         time.Duration `yaml:"debounce"`
	AutoSaveInterval time.Duration `yaml:"autosave_interval"`
	TeardownQueue    int           `yaml:"teardown_queue"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Required, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.AutoSaveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.TeardownQueue, validation.Required, validation.Min(1)),
	)
}

// Coordinator converts the section into session settings.
func (c *SessionConfig) Coordinator() session.Config {
	return session.Config{
		CacheSize:        c.CacheSize,
		Debounce:         c.Debounce,
		AutoSaveInterval: c.AutoSaveInterval,
	}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver: storage.DriverSQLite,
			Path:   "./pagenote.db",
		},
		Session: SessionConfig{
			CacheSize:        cache.DefaultCapacity,
			Debounce:         scheduler.DefaultQuietWindow,
			AutoSaveInterval: scheduler.DefaultAutoSaveInterval,
			TeardownQueue:    background.DefaultQueueSize,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
