// Package config handles configuration loading, validation, and persistence
// for the Hearthlink client.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultServerPort = 7171
	DefaultAPIPort    = 5080
	DefaultMQTTPort   = 1883
)

// Config is the root configuration structure for Hearthlink.
type Config struct {
	mu   sync.RWMutex
	path string

	Server  ServerConfig  `json:"server"`
	Account AccountConfig `json:"account"`
	Network NetworkConfig `json:"network"`
	Logging LoggingConfig `json:"logging"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Journal JournalConfig `json:"journal"`
}

// ServerConfig is the game server to connect to.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AccountConfig holds the login credentials.
type AccountConfig struct {
	Name          string `json:"name"`
	Password      string `json:"password"`
	ClientVersion int    `json:"client_version"`
}

// NetworkConfig holds connection timings. All values are milliseconds.
type NetworkConfig struct {
	ConnectTimeoutMs    int `json:"connect_timeout_ms"`
	ShutdownGraceMs     int `json:"shutdown_grace_ms"`
	KeepAliveDelayMs    int `json:"keepalive_delay_ms"`
	KeepAliveIntervalMs int `json:"keepalive_interval_ms"`
	PartialTimeoutMs    int `json:"partial_timeout_ms"`
	ReadPollMs          int `json:"read_poll_ms"`
	WriteTimeoutMs      int `json:"write_timeout_ms"`
	DelayedPollMs       int `json:"delayed_poll_ms"`
	ReconnectDelayMs    int `json:"reconnect_delay_ms"`
	StripeBatch         int `json:"stripe_batch"`
}

// ConnectTimeout returns the dial timeout.
func (n NetworkConfig) ConnectTimeout() time.Duration { return ms(n.ConnectTimeoutMs) }

// ShutdownGrace returns how long Disconnect waits for the workers.
func (n NetworkConfig) ShutdownGrace() time.Duration { return ms(n.ShutdownGraceMs) }

// KeepAliveDelay returns the delay before the first keep-alive.
func (n NetworkConfig) KeepAliveDelay() time.Duration { return ms(n.KeepAliveDelayMs) }

// KeepAliveInterval returns the keep-alive period.
func (n NetworkConfig) KeepAliveInterval() time.Duration { return ms(n.KeepAliveIntervalMs) }

// PartialTimeout returns how long an incomplete frame may wait.
func (n NetworkConfig) PartialTimeout() time.Duration { return ms(n.PartialTimeoutMs) }

// ReadPoll returns the receiver's read deadline.
func (n NetworkConfig) ReadPoll() time.Duration { return ms(n.ReadPollMs) }

// WriteTimeout returns the sender's write deadline.
func (n NetworkConfig) WriteTimeout() time.Duration { return ms(n.WriteTimeoutMs) }

// DelayedPoll returns how often deferred replies are re-checked.
func (n NetworkConfig) DelayedPoll() time.Duration { return ms(n.DelayedPollMs) }

// ReconnectDelay returns the pause between session attempts.
func (n NetworkConfig) ReconnectDelay() time.Duration { return ms(n.ReconnectDelayMs) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// APIConfig holds the local diagnostics server settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	Token          string   `json:"token"` // bearer token for POST routes; empty disables them
	RateLimitRPS   int      `json:"rate_limit_rps"`
	TLSEnabled     bool     `json:"tls_enabled"`
	CertFile       string   `json:"cert_file"`
	KeyFile        string   `json:"key_file"`
}

// Address returns host:port.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// JournalConfig holds the session journal settings.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultServerPort,
		},
		Account: AccountConfig{
			ClientVersion: 1,
		},
		Network: NetworkConfig{
			ConnectTimeoutMs:    5000,
			ShutdownGraceMs:     2000,
			KeepAliveDelayMs:    500,
			KeepAliveIntervalMs: 10000,
			PartialTimeoutMs:    1000,
			ReadPollMs:          100,
			WriteTimeoutMs:      10000,
			DelayedPollMs:       50,
			ReconnectDelayMs:    5000,
			StripeBatch:         16,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
		API: APIConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimitRPS:   20,
			CertFile:       filepath.Join(DefaultConfigDir, "api.crt"),
			KeyFile:        filepath.Join(DefaultConfigDir, "api.key"),
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			BrokerURL: "localhost",
			Port:      DefaultMQTTPort,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join("data", "journal.db"),
		},
	}
}

// Load reads configuration from a JSON file. A missing file is created with
// the defaults.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json lists options added since it was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file holds the account password.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server section.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// GetAccount returns a copy of the account section.
func (c *Config) GetAccount() AccountConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Account
}

// SetAccount updates the account section.
func (c *Config) SetAccount(account AccountConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Account = account
}

// GetNetwork returns a copy of the network section.
func (c *Config) GetNetwork() NetworkConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Network
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	api.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	return api
}

// GetMQTT returns a copy of the MQTT section.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetJournal returns a copy of the journal section.
func (c *Config) GetJournal() JournalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Journal
}

// GetLogging returns a copy of the logging section.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateField sets one field of a section by its JSON name, e.g.
// UpdateField("server", "port", 7272).
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target interface{}
	switch section {
	case "server":
		target = &c.Server
	case "account":
		target = &c.Account
	case "network":
		target = &c.Network
	case "logging":
		target = &c.Logging
	case "api":
		target = &c.API
	case "mqtt":
		target = &c.MQTT
	case "journal":
		target = &c.Journal
	default:
		return fmt.Errorf("unknown config section %q", section)
	}

	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal section %s: %w", section, err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to read section %s: %w", section, err)
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown field %s.%s", section, key)
	}

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, target); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the account has not been set up yet.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Account.Name == "" || c.Account.Password == ""
}
