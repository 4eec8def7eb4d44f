package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration. Missing credentials are only a warning
// since the CLI prompts for them and the API accepts them per request.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateSession(cfg, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)

	if cfg.Database.Enabled && strings.TrimSpace(cfg.Database.Path) == "" {
		result.AddError("database.path", "database path is required when enabled")
	}

	validateSchedule(cfg, result)

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown log level %q, using info", cfg.Logging.Level))
	}

	return result
}

func validateSession(cfg *Config, result *ValidationResult) {
	if strings.TrimSpace(cfg.Credentials.Username) == "" || cfg.Credentials.Password == "" {
		result.AddWarning("credentials", "username or password not set")
	}

	validateURL(cfg.BaseURL, "base_url", result)
	validateURL(cfg.AnalyticsBaseURL, "analytics_base_url", result)
	validateURL(cfg.LibraryURL, "library_url", result)

	if strings.TrimSpace(cfg.Channel) == "" {
		result.AddError("channel", "channel is required")
	}

	if cfg.RequestTimeoutSec < 1 {
		result.AddError("request_timeout_sec", "timeout must be at least 1 second")
	}

	if cfg.SelectedCharacterIndex < 0 {
		result.AddWarning("selected_character_index", "negative index selects the first character")
	}

	if cfg.LoaderInfo.BytesLoaded <= 0 || cfg.LoaderInfo.BytesTotal <= 0 {
		result.AddWarning("loader_info", "non-positive loader counters differ from the stock client")
	}

	switch n := len(cfg.CharacterKey); n {
	case 0, 16, 24, 32:
	default:
		result.AddError("character_key", fmt.Sprintf("key override must be 16, 24 or 32 bytes, got %d", n))
	}
}

func validateAPI(api *APIConfig, result *ValidationResult) {
	if !api.Enabled {
		return
	}
	validatePort(api.Port, "api.port", result)

	if (api.TLSCertFile == "") != (api.TLSKeyFile == "") {
		result.AddError("api.tls", "both tls_cert_file and tls_key_file are required for TLS")
	}

	if api.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateSchedule(cfg *Config, result *ValidationResult) {
	sched := &cfg.Schedule
	if sched.RunIntervalSec < 0 {
		result.AddError("schedule.run_interval_sec", "interval cannot be negative")
	} else if sched.RunIntervalSec > 0 && sched.RunIntervalSec < 60 {
		result.AddWarning("schedule.run_interval_sec", "runs more often than once a minute")
	}
	if sched.RetentionDays < 0 {
		result.AddError("schedule.retention_days", "retention cannot be negative")
	}
	if sched.RetentionDays > 0 {
		if _, err := time.Parse("15:04", sched.CleanupTime); err != nil {
			result.AddError("schedule.cleanup_time", fmt.Sprintf("expected HH:MM, got %q", sched.CleanupTime))
		}
	}
}

func validateMQTT(mqtt *MQTTConfig, result *ValidationResult) {
	if !mqtt.Enabled {
		return
	}
	if strings.TrimSpace(mqtt.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if mqtt.Port < 1 || mqtt.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
}

func validateURL(raw, field string, result *ValidationResult) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.AddError(field, fmt.Sprintf("invalid http(s) url: %q", raw))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
