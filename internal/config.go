package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Notifier  NotifierConfig    `yaml:"notifier"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Notifier.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
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
	// AllowedOrigins lists extra host patterns allowed to open the preview
	// websocket cross-origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// WorkspaceConfig describes the notes directory and how it is watched.
type WorkspaceConfig struct {
	Root      string        `yaml:"root"`
	Extension string        `yaml:"extension"`
	Debounce  time.Duration `yaml:"debounce"`
	// ScanParallelism bounds how many files a rescan parses at once.
	ScanParallelism int `yaml:"scan_parallelism"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Extension, validation.Required, validation.By(func(any) error {
			if !strings.HasPrefix(c.Extension, ".") {
				return fmt.Errorf("must start with a dot")
			}
			return nil
		})),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
		validation.Field(&c.ScanParallelism, validation.Min(0), validation.Max(256)),
	)
}

// NotifierConfig tunes change event delivery.
type NotifierConfig struct {
	// Buffer is the per-subscriber queue length; older events are dropped
	// once it is full.
	Buffer        int           `yaml:"buffer"`
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the notifier configuration.
func (c *NotifierConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Buffer, validation.Required, validation.Min(1)),
		validation.Field(&c.GraphThrottle, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
		Workspace: WorkspaceConfig{
			Root:            "./notes",
			Extension:       ".pn",
			Debounce:        300 * time.Millisecond,
			ScanParallelism: 8,
		},
		Notifier: NotifierConfig{
			Buffer:        64,
			GraphThrottle: 2 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "./patto.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
