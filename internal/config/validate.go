package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// encodingAESKeyLen is the length of an EncodingAESKey: 32 bytes in base64
// without the trailing '='.
const encodingAESKeyLen = 43

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.ShutdownTimeout < 0 {
		return fmt.Errorf("service.shutdown_timeout must not be negative")
	}

	switch cfg.Dedup.Backend {
	case BackendMemory:
	case BackendSQLite:
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required for dedup.backend %q", BackendSQLite)
		}
	default:
		return fmt.Errorf("dedup.backend must be one of: %s, %s (got %q)", BackendMemory, BackendSQLite, cfg.Dedup.Backend)
	}
	if cfg.Dedup.Retention <= 0 {
		return fmt.Errorf("dedup.retention must be positive")
	}
	if cfg.Dedup.MaxEntries <= 0 {
		return fmt.Errorf("dedup.max_entries must be positive")
	}

	if err := validateWebhooks(&cfg.Webhooks); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if err := requireResolved("api.api_key", cfg.API.APIKey); err != nil {
			return err
		}
	}

	if cfg.Audit.Enabled {
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required when audit is enabled")
		}
		if cfg.Audit.Retention <= 0 {
			return fmt.Errorf("audit.retention must be positive")
		}
		if _, err := cron.ParseStandard(cfg.Audit.Sweep); err != nil {
			return fmt.Errorf("audit.sweep: %w", err)
		}
		if cfg.Audit.HubCapacity <= 0 {
			return fmt.Errorf("audit.hub_capacity must be positive")
		}
		if cfg.Audit.AMQP.URL != "" {
			if err := requireResolved("audit.amqp.url", cfg.Audit.AMQP.URL); err != nil {
				return err
			}
			if cfg.Audit.AMQP.Exchange == "" {
				return fmt.Errorf("audit.amqp.exchange is required when audit.amqp.url is set")
			}
		}
	}

	return nil
}

func validateWebhooks(wc *WebhooksConfig) error {
	if wc.Listen == "" {
		return fmt.Errorf("webhooks.listen is required")
	}
	if len(wc.Endpoints) == 0 {
		return fmt.Errorf("webhooks.endpoints must define at least one endpoint")
	}

	paths := make(map[string]bool, len(wc.Endpoints))
	names := make(map[string]bool, len(wc.Endpoints))
	for i, ep := range wc.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)

		if !strings.HasPrefix(ep.Path, "/") || strings.Trim(ep.Path, "/") == "" {
			return fmt.Errorf("%s.path must start with / and name a resource (got %q)", field, ep.Path)
		}
		if paths[ep.Path] {
			return fmt.Errorf("%s.path %q is duplicated", field, ep.Path)
		}
		paths[ep.Path] = true

		if ep.Name == "" || names[ep.Name] {
			return fmt.Errorf("%s.name %q must be unique and non-empty", field, ep.Name)
		}
		names[ep.Name] = true

		if err := requireResolved(field+".token", ep.Token); err != nil {
			return err
		}

		switch ep.Mode {
		case "plain":
		case "safe":
			if err := requireResolved(field+".app_id", ep.AppID); err != nil {
				return err
			}
			if err := requireResolved(field+".encoding_aes_key", ep.EncodingAESKey); err != nil {
				return err
			}
			if len(ep.EncodingAESKey) != encodingAESKeyLen {
				return fmt.Errorf("%s.encoding_aes_key must be %d characters (got %d)", field, encodingAESKeyLen, len(ep.EncodingAESKey))
			}
		default:
			return fmt.Errorf("%s.mode must be one of: plain, safe (got %q)", field, ep.Mode)
		}
	}
	return nil
}

// requireResolved rejects empty values and ${VAR} placeholders whose
// variable was not set.
func requireResolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
