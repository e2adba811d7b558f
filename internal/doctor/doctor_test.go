package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/wxgate/internal/config"
	"github.com/mattjoyce/wxgate/internal/storage"
)

const testAESKey = "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFG"

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Webhooks.Endpoints = []config.WebhookEndpoint{{
		Name:           "main",
		Path:           "/wx/main",
		AppID:          "wx123",
		Token:          "tok",
		EncodingAESKey: testAESKey,
		Mode:           "safe",
	}}
	return cfg
}

func hasIssue(issues []Issue, category, fieldPrefix string) bool {
	for _, i := range issues {
		if i.Category == category && strings.HasPrefix(i.Field, fieldPrefix) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(), nil).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_NoEndpoints(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Webhooks.Endpoints = nil
	r := New(cfg, nil).Validate()
	if r.Valid || !hasIssue(r.Errors, "webhooks", "webhooks.endpoints") {
		t.Fatalf("expected webhooks error, got %+v", r)
	}
}

func TestValidate_APIListenCollision(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.APIKey = "0123456789abcdef0123"
	cfg.API.Listen = cfg.Webhooks.Listen
	r := New(cfg, nil).Validate()
	if r.Valid || !hasIssue(r.Errors, "api", "api.listen") {
		t.Fatalf("expected api.listen error, got %+v", r)
	}
}

func TestValidate_BadSweepForSQLiteBackend(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dedup.Backend = config.BackendSQLite
	cfg.Audit.Sweep = "whenever"
	r := New(cfg, nil).Validate()
	if r.Valid || !hasIssue(r.Errors, "audit", "audit.sweep") {
		t.Fatalf("expected audit.sweep error, got %+v", r)
	}
}

func TestValidate_StatePlacement(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Dedup.Backend = config.BackendSQLite
	cfg.State.Path = filepath.Join(t.TempDir(), "wxgate.db")

	d := New(cfg, nil)
	d.inspect = func(path string) (storage.Placement, error) {
		return storage.Placement{Path: path, Inspected: filepath.Dir(path), Filesystem: "nfs"}, nil
	}
	r := d.Validate()
	if r.Valid || !hasIssue(r.Errors, "state", "state.path") {
		t.Fatalf("expected state.path error, got %+v", r)
	}

	d.inspect = func(string) (storage.Placement, error) {
		return storage.Placement{}, errors.New("statfs: permission denied")
	}
	r = d.Validate()
	if !r.Valid || !hasIssue(r.Warnings, "state", "state.path") {
		t.Fatalf("expected state.path warning, got %+v", r)
	}

	// In-memory state is never inspected.
	cfg.State.Path = storage.MemoryPath
	d.inspect = func(string) (storage.Placement, error) {
		t.Fatal("inspected in-memory state")
		return storage.Placement{}, nil
	}
	d.Validate()
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*config.Config)
		category string
		field    string
	}{
		{
			name: "plain endpoint",
			mutate: func(c *config.Config) {
				c.Webhooks.Endpoints[0].Mode = "plain"
			},
			category: "webhooks",
			field:    "webhooks.endpoints[0].mode",
		},
		{
			name: "short retention",
			mutate: func(c *config.Config) {
				c.Dedup.Retention = 5 * time.Second
			},
			category: "dedup",
			field:    "dedup.retention",
		},
		{
			name: "tiny memory cache",
			mutate: func(c *config.Config) {
				c.Dedup.MaxEntries = 10
			},
			category: "dedup",
			field:    "dedup.max_entries",
		},
		{
			name: "api on all interfaces",
			mutate: func(c *config.Config) {
				c.API.Enabled = true
				c.API.Listen = "0.0.0.0:8081"
				c.API.APIKey = "0123456789abcdef0123"
				c.Audit.Enabled = true
			},
			category: "api",
			field:    "api.listen",
		},
		{
			name: "short api key",
			mutate: func(c *config.Config) {
				c.API.Enabled = true
				c.API.APIKey = "short"
				c.Audit.Enabled = true
			},
			category: "api",
			field:    "api.api_key",
		},
		{
			name: "api without message log",
			mutate: func(c *config.Config) {
				c.API.Enabled = true
				c.API.APIKey = "0123456789abcdef0123"
			},
			category: "audit",
			field:    "audit.enabled",
		},
		{
			name: "small amqp buffer",
			mutate: func(c *config.Config) {
				c.Audit.AMQP.URL = "amqp://localhost"
				c.Audit.AMQP.Buffer = 1
			},
			category: "audit",
			field:    "audit.amqp.buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			r := New(cfg, nil).Validate()
			if !r.Valid {
				t.Fatalf("expected valid, got errors: %v", r.Errors)
			}
			if !hasIssue(r.Warnings, tt.category, tt.field) {
				t.Fatalf("expected %s warning on %s, got %v", tt.category, tt.field, r.Warnings)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
webhooks:
  endpoints:
    - path: /wx/main
      app_id: wx123
      token: tok
      encoding_aes_key: ` + testAESKey + `
      mode: safe
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	r := Check(path)
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "integrity", dir) {
		t.Fatalf("expected integrity warning for unlocked dir, got %v", r.Warnings)
	}

	if _, err := config.Lock(path, false); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	r = Check(path)
	if hasIssue(r.Warnings, "integrity", dir) {
		t.Fatalf("expected no integrity warning after lock, got %v", r.Warnings)
	}
}

func TestCheckLoadError(t *testing.T) {
	t.Parallel()

	r := Check(filepath.Join(t.TempDir(), "missing.yaml"))
	if r.Valid {
		t.Fatalf("expected invalid result")
	}
	if len(r.Errors) != 1 || r.Errors[0].Category != "load" {
		t.Fatalf("expected one load error, got %v", r.Errors)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", out)
	}

	out = FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "load", Message: "boom"}},
		Warnings: []Issue{{Category: "dedup", Field: "dedup.retention", Message: "short"}},
	})
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [load] boom",
		"WARN  [dedup] dedup.retention: short",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON %q", out)
	}
}
