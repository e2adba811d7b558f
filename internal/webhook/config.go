package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/wxgate/internal/config"
)

// FromGlobalConfig converts config.WebhooksConfig to webhook.Config.
// Parses max body sizes; the caller attaches each endpoint's Processor and
// Verifier.
func FromGlobalConfig(wc config.WebhooksConfig) (Config, error) {
	cfg := Config{
		Listen:    wc.Listen,
		Endpoints: make([]Endpoint, len(wc.Endpoints)),
	}

	for i, ep := range wc.Endpoints {
		// Parse max body size (e.g., "1MB", "2048576")
		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		cfg.Endpoints[i] = Endpoint{
			Path:        ep.Path,
			App:         ep.Name,
			MaxBodySize: maxBodySize,
		}
	}

	return cfg, nil
}

// parseMaxBodySize parses size strings like "1MB", "2048576", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	// Handle unit suffixes (KB, MB, GB)
	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
