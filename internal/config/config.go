// Package config handles kioskbridge configuration loading.
//
// The configuration bundle is read from a single YAML file (see
// [DefaultSearchPaths]) and may be overridden field by field with
// command-line flags (see [RegisterFlags]).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingWebURL is returned by [Config.Validate] when no web_url is
// configured. It is the one startup condition the process cannot
// recover from.
var ErrMissingWebURL = errors.New("web_url is required (--web-url)")

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultWebTheme        = "dark"
	DefaultWebZoom         = 1.25
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBrowser         = "chromium-browser"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config flag) is checked first.
// Then: ./kioskbridge.yaml, ~/.config/kioskbridge/config.yaml, /etc/kioskbridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"kioskbridge.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kioskbridge", "config.yaml"))
	}

	paths = append(paths, "/etc/kioskbridge/config.yaml")
	return paths
}

// UserConfigPath is where `kioskbridge setup` writes its answers.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "kioskbridge", "config.yaml"), nil
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the resolved kioskbridge configuration bundle.
type Config struct {
	Web       WebConfig  `yaml:",inline"`
	MQTT      MQTTConfig `yaml:",inline"`
	LogLevel  string     `yaml:"log_level,omitempty"`
	LogFormat string     `yaml:"log_format,omitempty"` // text or json
}

// WebConfig defines the browser surface settings.
type WebConfig struct {
	URL     string  `yaml:"web_url"`
	Theme   string  `yaml:"web_theme,omitempty"`
	Zoom    float64 `yaml:"web_zoom,omitempty"`
	Browser string  `yaml:"browser,omitempty"` // Browser executable (default: chromium-browser)
}

// MQTTConfig defines the broker connection used by the discovery
// bridge. An empty URL disables hardware integration entirely.
type MQTTConfig struct {
	URL             string `yaml:"mqtt_url,omitempty"`
	User            string `yaml:"mqtt_user,omitempty"`
	Password        string `yaml:"mqtt_password,omitempty"`
	DiscoveryPrefix string `yaml:"mqtt_discovery_prefix,omitempty"`
}

// Configured reports whether a broker URL is present.
func (c MQTTConfig) Configured() bool {
	return c.URL != ""
}

// MaskedPassword returns the password replaced by asterisks, or "null"
// when no password is configured. Used whenever the broker target is
// logged.
func (c MQTTConfig) MaskedPassword() string {
	if c.Password == "" {
		return "null"
	}
	return strings.Repeat("*", len(c.Password))
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing. Defaults are applied to any
// field left empty; validation is left to the caller so that flag
// overrides can be merged first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories. The
// file is written 0600 because it may contain broker credentials.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Default returns a configuration with every default applied and no
// URLs set.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Web.Theme == "" {
		c.Web.Theme = DefaultWebTheme
	}
	if c.Web.Zoom == 0 {
		c.Web.Zoom = DefaultWebZoom
	}
	if c.Web.Browser == "" {
		c.Web.Browser = DefaultBrowser
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if c.Web.URL == "" {
		return ErrMissingWebURL
	}
	if _, err := url.ParseRequestURI(c.Web.URL); err != nil {
		return fmt.Errorf("invalid web_url %q: %w", c.Web.URL, err)
	}
	if c.Web.Theme != "dark" && c.Web.Theme != "light" {
		return fmt.Errorf("invalid web_theme %q (valid: dark, light)", c.Web.Theme)
	}
	if c.Web.Zoom <= 0 {
		return fmt.Errorf("invalid web_zoom %v (must be positive)", c.Web.Zoom)
	}
	if c.MQTT.Configured() {
		u, err := url.Parse(c.MQTT.URL)
		if err != nil {
			return fmt.Errorf("invalid mqtt_url %q: %w", c.MQTT.URL, err)
		}
		switch u.Scheme {
		case "mqtt", "tcp", "mqtts", "ssl", "ws", "wss":
		default:
			return fmt.Errorf("invalid mqtt_url scheme %q (valid: mqtt, tcp, mqtts, ssl, ws, wss)", u.Scheme)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
