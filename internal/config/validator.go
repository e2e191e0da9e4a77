package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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

// Err returns the first error, or nil when the configuration is valid.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Log writes every warning to the global logger.
func (r *ValidationResult) Log() {
	for _, w := range r.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
}

// Validate checks the whole configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateAccount(&cfg.Account, result)
	validateNetwork(&cfg.Network, result)
	validateLogging(&cfg.Logging, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)

	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		result.AddError("journal.path", "journal path is required when enabled")
	}

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Host) == "" {
		result.AddError("server.host", "server host is required")
	}
	validatePort(s.Port, "server.port", result)
}

func validateAccount(a *AccountConfig, result *ValidationResult) {
	if strings.TrimSpace(a.Name) == "" {
		result.AddError("account.name", "account name is required")
	}
	if a.Password == "" {
		result.AddError("account.password", "account password is required")
	}
	if a.ClientVersion < 0 || a.ClientVersion > 254 {
		result.AddError("account.client_version", "client version must fit in one byte (0-254)")
	}
	for _, r := range a.Name + a.Password {
		if r > 0xFF {
			result.AddWarning("account", "credentials contain characters outside Latin-1, they will be sent as '?'")
			break
		}
	}
}

func validateNetwork(n *NetworkConfig, result *ValidationResult) {
	positive := map[string]int{
		"network.connect_timeout_ms":    n.ConnectTimeoutMs,
		"network.shutdown_grace_ms":     n.ShutdownGraceMs,
		"network.keepalive_interval_ms": n.KeepAliveIntervalMs,
		"network.partial_timeout_ms":    n.PartialTimeoutMs,
		"network.read_poll_ms":          n.ReadPollMs,
		"network.delayed_poll_ms":       n.DelayedPollMs,
		"network.stripe_batch":          n.StripeBatch,
	}
	for field, v := range positive {
		if v <= 0 {
			result.AddError(field, fmt.Sprintf("must be positive, got %d", v))
		}
	}

	if n.KeepAliveDelayMs < 0 {
		result.AddError("network.keepalive_delay_ms", "must not be negative")
	}
	if n.ReconnectDelayMs < 0 {
		result.AddError("network.reconnect_delay_ms", "must not be negative")
	}
	if n.WriteTimeoutMs < 0 {
		result.AddError("network.write_timeout_ms", "must not be negative")
	}

	if n.ReadPollMs > n.PartialTimeoutMs && n.PartialTimeoutMs > 0 {
		result.AddWarning("network.read_poll_ms",
			"read poll longer than the partial-frame timeout delays stale frame detection")
	}
	if n.KeepAliveIntervalMs > 60000 {
		result.AddWarning("network.keepalive_interval_ms",
			"keep-alive interval over 60s may let the server drop the session")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if l.Level == "" {
		return
	}
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown level %q, using info", l.Level))
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.Host != "127.0.0.1" && a.Host != "localhost" && a.Host != "::1" {
		result.AddWarning("api.host",
			fmt.Sprintf("diagnostics API bound to %s is reachable from other hosts", a.Host))
	}
	if a.RateLimitRPS < 0 {
		result.AddError("api.rate_limit_rps", "rate limit cannot be negative")
	}
	if a.TLSEnabled && (a.CertFile == "" || a.KeyFile == "") {
		result.AddError("api.cert_file", "TLS needs both cert_file and key_file")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
	}
}
