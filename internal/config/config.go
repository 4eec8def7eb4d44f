// Package config handles configuration loading, validation, and persistence
// for sagereplay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/sagereplay/sagereplay/internal/assets"
	"github.com/sagereplay/sagereplay/internal/connector"
	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/service"
	"github.com/sagereplay/sagereplay/internal/util"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultTimeoutSec = 20

	// EnvPrefix prefixes every environment override, e.g. SAGE_BASE_URL.
	EnvPrefix = "SAGE_"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Credentials workflow.Credentials `json:"credentials" yaml:"credentials"`

	// Remoting gateway
	BaseURL            string `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	EndpointPath       string `json:"endpoint_path" yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	RequestTimeoutSec  int    `json:"request_timeout_sec" yaml:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`

	// Session
	Channel                string             `json:"channel" yaml:"channel" env:"CHANNEL"`
	IncludeEvents          bool               `json:"include_events" yaml:"include_events" env:"INCLUDE_EVENTS"`
	ServerID               int                `json:"server_id" yaml:"server_id" env:"SERVER_ID"`
	SelectedCharacterIndex int                `json:"selected_character_index" yaml:"selected_character_index" env:"CHARACTER_INDEX"`
	CharacterSeed          *int64             `json:"character_seed,omitempty" yaml:"character_seed,omitempty"`
	CharacterKey           string             `json:"character_key,omitempty" yaml:"character_key,omitempty" env:"CHARACTER_KEY"`
	LoaderInfo             payload.LoaderInfo `json:"loader_info" yaml:"loader_info"`

	// Assets
	AnalyticsBaseURL string `json:"analytics_base_url" yaml:"analytics_base_url" env:"ANALYTICS_BASE_URL"`
	LibraryURL       string `json:"library_url" yaml:"library_url" env:"LIBRARY_URL"`

	API      APIConfig      `json:"api" yaml:"api"`
	MQTT     MQTTConfig     `json:"mqtt" yaml:"mqtt"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Logging  util.LogConfig `json:"logging" yaml:"logging"`
}

// APIConfig holds REST front end settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" env:"API_ENABLED"`
	Port           int      `json:"port" yaml:"port" env:"API_PORT"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"API_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS   int      `json:"rate_limit_rps" yaml:"rate_limit_rps" env:"API_RATE_LIMIT_RPS"`
	TLSCertFile    string   `json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file" yaml:"tls_key_file"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"MQTT_ENABLED"`
	BrokerURL string `json:"broker_url" yaml:"broker_url" env:"MQTT_BROKER"`
	Port      int    `json:"port" yaml:"port" env:"MQTT_PORT"`
	UseTLS    bool   `json:"use_tls" yaml:"use_tls"`
	CertFile  string `json:"cert_file" yaml:"cert_file"`
	KeyFile   string `json:"key_file" yaml:"key_file"`
	CAFile    string `json:"ca_file" yaml:"ca_file"`
	ClientID  string `json:"client_id" yaml:"client_id"`
	Topic     string `json:"topic" yaml:"topic"`
}

// DatabaseConfig holds session history settings.
type DatabaseConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"DB_ENABLED"`
	Path    string `json:"path" yaml:"path" env:"DB_PATH"`
}

// ScheduleConfig holds background task settings used by serve.
type ScheduleConfig struct {
	// RunIntervalSec repeats the session with the configured account; 0 disables it.
	RunIntervalSec int `json:"run_interval_sec" yaml:"run_interval_sec" env:"RUN_INTERVAL_SEC"`
	// RetentionDays prunes recorded sessions older than this; 0 keeps everything.
	RetentionDays int `json:"retention_days" yaml:"retention_days" env:"RETENTION_DAYS"`
	// CleanupTime is the local HH:MM at which pruning runs.
	CleanupTime string `json:"cleanup_time" yaml:"cleanup_time" env:"CLEANUP_TIME"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                connector.DefaultBaseURL,
		EndpointPath:           connector.DefaultEndpointPath,
		RequestTimeoutSec:      DefaultTimeoutSec,
		Channel:                service.DefaultChannel,
		IncludeEvents:          true,
		ServerID:               service.DefaultServerID,
		SelectedCharacterIndex: 0,
		LoaderInfo:             payload.DefaultLoaderInfo(),
		AnalyticsBaseURL:       assets.DefaultBaseURL,
		LibraryURL:             assets.DefaultLibraryURL,
		API: APIConfig{
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimitRPS:   10,
		},
		MQTT: MQTTConfig{
			Port:     8883,
			UseTLS:   true,
			ClientID: "sagereplay",
			Topic:    "sagereplay",
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    filepath.Join("data", "sagereplay.db"),
		},
		Schedule: ScheduleConfig{
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		Logging: util.DefaultLogConfig(),
	}
}

// Load reads configuration from path. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. A missing file is created with
// defaults. Environment overrides are applied last and never persisted.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultConfigDir, DefaultConfigFile)
	}

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("path", path).Msg("config file not found, creating default")
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("failed to save default config: %w", saveErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := cfg.unmarshal(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("configuration loaded")

		// Re-save so the file always lists every option.
		if saveErr := cfg.Save(); saveErr != nil {
			log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SAGE_* environment variables.
func (c *Config) ApplyEnv() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.path))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) unmarshal(data []byte) error {
	if c.isYAML() {
		return yaml.Unmarshal(data, c)
	}
	return json.Unmarshal(data, c)
}

// Save writes the current configuration to disk in the format implied by
// the file extension.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// RequestTimeout returns the per-call timeout.
func (c *Config) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.RequestTimeoutSec <= 0 {
		return DefaultTimeoutSec * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ConnectorOptions returns the transport settings.
func (c *Config) ConnectorOptions() connector.Options {
	timeout := c.RequestTimeout()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return connector.Options{
		BaseURL:            c.BaseURL,
		EndpointPath:       c.EndpointPath,
		Timeout:            timeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// WorkflowOptions returns the session settings with the given credentials.
func (c *Config) WorkflowOptions() workflow.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return workflow.Options{
		Credentials:            c.Credentials,
		Channel:                c.Channel,
		IncludeEvents:          c.IncludeEvents,
		SelectedCharacterIndex: c.SelectedCharacterIndex,
		CharacterSeed:          c.CharacterSeed,
		CharacterKey:           c.CharacterKey,
		Loader:                 c.LoaderInfo,
	}
}

// AssetURLs returns the analytics asset base and the item-level library URL.
func (c *Config) AssetURLs() (analyticsBase, library string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AnalyticsBaseURL, c.LibraryURL
}

// SetCredentials replaces the account credentials.
func (c *Config) SetCredentials(creds workflow.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Credentials = creds
}

// HasCredentials reports whether both username and password are set.
func (c *Config) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Credentials.Username != "" && c.Credentials.Password != ""
}
