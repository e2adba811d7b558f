package config

import "time"

// Config represents the complete wxgate configuration.
type Config struct {
	Include  []string       `yaml:"include,omitempty"`
	Service  ServiceConfig  `yaml:"service"`
	State    StateConfig    `yaml:"state"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Echobot  EchobotConfig  `yaml:"echobot,omitempty"`
	API      APIConfig      `yaml:"api,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StateConfig defines the SQLite database used by the sqlite dedup backend
// and the message log.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Dedup backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// DedupConfig tunes the completed-reply cache.
type DedupConfig struct {
	Backend    string        `yaml:"backend"`
	Retention  time.Duration `yaml:"retention"`
	MaxEntries int           `yaml:"max_entries"`
}

// WebhooksConfig defines the callback listener.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint is one application's callback URL.
type WebhookEndpoint struct {
	// Name identifies the application in logs, caches and the message log.
	// Defaults to the last path segment.
	Name           string `yaml:"name,omitempty"`
	Path           string `yaml:"path"`
	AppID          string `yaml:"app_id"`
	Token          string `yaml:"token"`
	EncodingAESKey string `yaml:"encoding_aes_key,omitempty"`
	// Mode is plain or safe.
	Mode        string `yaml:"mode"`
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// EchobotConfig configures the built-in demo handler.
type EchobotConfig struct {
	Welcome string            `yaml:"welcome,omitempty"`
	Prefix  string            `yaml:"prefix,omitempty"`
	Clicks  map[string]string `yaml:"clicks,omitempty"`
}

// APIConfig defines the admin HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// AuditConfig controls the message log, event hub and AMQP publishing.
type AuditConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Retention   time.Duration `yaml:"retention"`
	Sweep       string        `yaml:"sweep"`
	HubCapacity int           `yaml:"hub_capacity"`
	AMQP        AMQPConfig    `yaml:"amqp,omitempty"`
}

// AMQPConfig enables publishing of audit envelopes when URL is set.
type AMQPConfig struct {
	URL      string `yaml:"url,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
	Buffer   int    `yaml:"buffer,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "wxgate",
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		State: StateConfig{
			Path: "./data/wxgate.db",
		},
		Dedup: DedupConfig{
			Backend:    BackendMemory,
			Retention:  30 * time.Second,
			MaxEntries: 10000,
		},
		Webhooks: WebhooksConfig{
			Listen: "0.0.0.0:8080",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8081",
		},
		Audit: AuditConfig{
			Enabled:     false,
			Retention:   7 * 24 * time.Hour,
			Sweep:       "@every 1m",
			HubCapacity: 200,
			AMQP: AMQPConfig{
				Exchange: "wxgate.events",
				Buffer:   256,
			},
		},
	}
}
