// Package doctor reports on a wxgate configuration: hard load errors plus
// warnings about settings that load fine but are probably not what the
// operator wants.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mattjoyce/wxgate/internal/config"
	"github.com/mattjoyce/wxgate/internal/storage"
)

// platformRetryWindow is how long the platform keeps redelivering a message
// it got no answer for.
const platformRetryWindow = 15 * time.Second

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects a loaded configuration.
type Doctor struct {
	cfg     *config.Config
	files   []string
	inspect func(string) (storage.Placement, error)
}

// New creates a Doctor. files are the configuration files cfg was loaded
// from, used for the integrity checks; nil skips them.
func New(cfg *config.Config, files []string) *Doctor {
	return &Doctor{cfg: cfg, files: files, inspect: storage.InspectPlacement}
}

// Check loads the configuration at path and validates it. Load failures are
// reported as a single error issue.
func Check(path string) *Result {
	cfg, err := config.Load(path)
	if err != nil {
		r := &Result{}
		r.Errors = append(r.Errors, Issue{Category: "load", Message: err.Error()})
		return r
	}
	files, err := config.DiscoverAllConfigFiles(path)
	if err != nil {
		files = nil
	}
	return New(cfg, files).Validate()
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateEndpoints(r)
	d.validateSweep(r)
	d.validateStatePlacement(r)
	d.warnPlainEndpoints(r)
	d.warnDedupRetention(r)
	d.warnAPIExposure(r)
	d.warnAudit(r)
	d.warnIntegrity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateEndpoints(r *Result) {
	if len(d.cfg.Webhooks.Endpoints) == 0 {
		d.addError(r, "webhooks", "webhooks.endpoints", "no callback endpoints configured")
	}
	if d.cfg.API.Enabled && d.cfg.API.Listen == d.cfg.Webhooks.Listen {
		d.addError(r, "api", "api.listen", "api.listen must differ from webhooks.listen")
	}
}

func (d *Doctor) validateSweep(r *Result) {
	if !d.usesStateDB() {
		return
	}
	if _, err := cron.ParseStandard(d.cfg.Audit.Sweep); err != nil {
		d.addError(r, "audit", "audit.sweep", fmt.Sprintf("invalid sweep schedule %q: %v", d.cfg.Audit.Sweep, err))
	}
}

func (d *Doctor) usesStateDB() bool {
	return d.cfg.Audit.Enabled || d.cfg.Dedup.Backend == config.BackendSQLite
}

// validateStatePlacement fails when the state database would be created on a
// network mount, which OpenSQLite refuses at startup.
func (d *Doctor) validateStatePlacement(r *Result) {
	path := d.cfg.State.Path
	if !d.usesStateDB() || path == storage.MemoryPath {
		return
	}
	p, err := d.inspect(path)
	if err != nil {
		d.addWarning(r, "state", "state.path", err.Error())
		return
	}
	if p.Network() {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("state database %s is on a network filesystem; SQLite locking for reply_cache and message_log needs a local file", p))
	}
}

// warnPlainEndpoints flags endpoints that accept unsigned plaintext bodies.
func (d *Doctor) warnPlainEndpoints(r *Result) {
	for i, ep := range d.cfg.Webhooks.Endpoints {
		if ep.Mode == "plain" {
			d.addWarning(r, "webhooks", fmt.Sprintf("webhooks.endpoints[%d].mode", i),
				fmt.Sprintf("endpoint %s runs in plain mode; message bodies travel unencrypted", ep.Path))
		}
	}
}

func (d *Doctor) warnDedupRetention(r *Result) {
	if d.cfg.Dedup.Retention < platformRetryWindow {
		d.addWarning(r, "dedup", "dedup.retention",
			fmt.Sprintf("retention %s is shorter than the platform's %s redelivery window; retries may run the handler twice",
				d.cfg.Dedup.Retention, platformRetryWindow))
	}
	if d.cfg.Dedup.Backend == config.BackendMemory && d.cfg.Dedup.MaxEntries < 100 {
		d.addWarning(r, "dedup", "dedup.max_entries",
			fmt.Sprintf("max_entries %d is small; bursts will evict replies before their retention ends", d.cfg.Dedup.MaxEntries))
	}
}

func (d *Doctor) warnAPIExposure(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addWarning(r, "api", "api.listen", fmt.Sprintf("cannot parse listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "api", "api.listen", "admin API listens on all interfaces")
	}
	if len(d.cfg.API.APIKey) < 16 {
		d.addWarning(r, "api", "api.api_key", "api_key is shorter than 16 characters")
	}
}

func (d *Doctor) warnAudit(r *Result) {
	if d.cfg.API.Enabled && !d.cfg.Audit.Enabled {
		d.addWarning(r, "audit", "audit.enabled", "message log disabled; GET /messages will answer 503")
	}
	if d.cfg.Audit.AMQP.URL != "" && d.cfg.Audit.AMQP.Buffer < 16 {
		d.addWarning(r, "audit", "audit.amqp.buffer",
			fmt.Sprintf("buffer %d is small; envelopes are dropped while the broker is slow", d.cfg.Audit.AMQP.Buffer))
	}
}

// warnIntegrity flags config directories without a checksum manifest.
func (d *Doctor) warnIntegrity(r *Result) {
	seen := make(map[string]bool)
	for _, f := range d.files {
		dir := filepath.Dir(f)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if _, err := config.LoadChecksums(dir); err != nil {
			d.addWarning(r, "integrity", dir, err.Error())
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
