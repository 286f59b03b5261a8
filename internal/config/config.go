// Package config manages the CLI configuration file and the environment
// overrides that layer on top of it.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultURI is the fallback server address when nothing is configured.
	DefaultURI = "http://localhost:8080"
	// DefaultProfile is used when no profile is selected anywhere.
	DefaultProfile = "default"
	// DefaultTimeout is the per-request timeout in seconds.
	DefaultTimeout = 30
)

// Profile is a named server configuration. Tokens are never stored here,
// only in the system keyring.
type Profile struct {
	URI string `yaml:"uri"`
}

// Defaults holds default settings applied when flags are absent.
type Defaults struct {
	Model   string `yaml:"model,omitempty"`
	Format  string `yaml:"format"`
	Stream  bool   `yaml:"stream"`
	Timeout int    `yaml:"timeout"`
}

// Output holds output formatting preferences.
type Output struct {
	Colors       bool `yaml:"colors"`
	ProgressBars bool `yaml:"progress_bars"`
	Timestamps   bool `yaml:"timestamps"`
}

// Config is the on-disk configuration document.
type Config struct {
	Version        int                `yaml:"version"`
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
	Defaults       Defaults           `yaml:"defaults"`
	Output         Output             `yaml:"output"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Version:        1,
		DefaultProfile: DefaultProfile,
		Profiles: map[string]Profile{
			DefaultProfile: {URI: DefaultURI},
		},
		Defaults: Defaults{
			Format:  "text",
			Stream:  true,
			Timeout: DefaultTimeout,
		},
		Output: Output{
			Colors:       true,
			ProgressBars: true,
		},
	}
}

// Settings are environment overrides. They beat the config file but lose to
// explicit CLI flags.
type Settings struct {
	URI     string `envconfig:"URI"`
	Token   string `envconfig:"TOKEN"`
	Profile string `envconfig:"PROFILE"`
}

// LoadSettings reads the OPENWEBUI_URI / OPENWEBUI_TOKEN / OPENWEBUI_PROFILE
// environment triple.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("openwebui", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to read environment settings: %w", err)
	}
	return s, nil
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "openwebui"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Dir returns the platform-specific configuration directory.
func Dir() (string, error) {
	return getConfigDirFunc()
}

// Path returns the full path to the config.yaml file.
func Path() (string, error) {
	return getConfigPathFunc()
}

// Load reads the configuration file. A missing file yields the built-in
// defaults, not an error.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{DefaultProfile: {URI: DefaultURI}}
	}
	return cfg, nil
}

// Save writes the configuration file with 0600 permissions, creating the
// config directory if needed.
func Save(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Effective resolves the server URI and profile name for one invocation.
// Precedence for both values: explicit argument > environment variable >
// config file > hardcoded default.
func Effective(profile, uri string) (effectiveURI, effectiveProfile string, err error) {
	cfg, err := Load()
	if err != nil {
		return "", "", err
	}
	settings, err := LoadSettings()
	if err != nil {
		return "", "", err
	}

	effectiveProfile = profile
	if effectiveProfile == "" {
		effectiveProfile = settings.Profile
	}
	if effectiveProfile == "" {
		effectiveProfile = cfg.DefaultProfile
	}
	if effectiveProfile == "" {
		effectiveProfile = DefaultProfile
	}

	profileURI := DefaultURI
	if p, ok := cfg.Profiles[effectiveProfile]; ok && p.URI != "" {
		profileURI = p.URI
	}

	effectiveURI = uri
	if effectiveURI == "" {
		effectiveURI = settings.URI
	}
	if effectiveURI == "" {
		effectiveURI = profileURI
	}

	return effectiveURI, effectiveProfile, nil
}

// ValidateURI checks that a profile URI is a well-formed http(s) URL.
func ValidateURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("URI must have a scheme (e.g., http://, https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URI scheme must be 'http' or 'https', got %q", parsed.Scheme)
	}
	return nil
}
