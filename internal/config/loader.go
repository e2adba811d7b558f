package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// Supports both single-file mode and multi-file mode via the include array.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	cfg = applyConfigDefaults(cfg)

	// Hash-verify the root config and every include.
	allPaths := make([]string, 0, len(visited))
	for path := range visited {
		allPaths = append(allPaths, path)
	}
	sort.Strings(allPaths)
	if err := verifyAllConfigHashes(allPaths); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigDir finds the config by checking standard locations.
// Priority order: $WXGATE_CONFIG_DIR, ~/.config/wxgate, /etc/wxgate, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("WXGATE_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "wxgate")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/wxgate"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	localConfigPath := "./config.yaml"
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $WXGATE_CONFIG_DIR, ~/.config/wxgate, /etc/wxgate, ./config.yaml)")
}

// DiscoverAllConfigFiles returns absolute paths to all configuration files in the include tree.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := collectIncludes(cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// resolveConfigFile turns a file or directory argument into the absolute
// path of the root config file.
func resolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func resolveInclude(i int, includePath, baseDir string) (string, error) {
	includePath = interpolateEnv(includePath)
	if !filepath.IsAbs(includePath) {
		includePath = filepath.Join(baseDir, includePath)
	}
	absPath, err := filepath.Abs(includePath)
	if err != nil {
		return "", fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
	}
	return absPath, nil
}

func collectIncludes(includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}
		if visited[absPath] {
			continue
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s\n"+
				"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
		}
		visited[absPath] = true

		included, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		if len(included.Include) > 0 {
			if err := collectIncludes(included.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadIncludes recursively loads and merges files from the include array.
// visited tracks loaded files to prevent cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}

		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("include[%d]: file not found: %s\n"+
					"Referenced from: %s\n"+
					"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
			}
			return fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
		}

		visited[absPath] = true

		includedCfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}

		deepMergeConfig(cfg, includedCfg)

		if len(includedCfg.Include) > 0 {
			if err := loadIncludes(cfg, includedCfg.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadConfigFile loads and parses a single config file without defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// deepMergeConfig merges src into dst, with src taking precedence for non-zero values.
// Endpoints append; echobot clicks merge by key.
func deepMergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.ShutdownTimeout != 0 {
		dst.Service.ShutdownTimeout = src.Service.ShutdownTimeout
	}

	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}

	if src.Dedup.Backend != "" {
		dst.Dedup.Backend = src.Dedup.Backend
	}
	if src.Dedup.Retention != 0 {
		dst.Dedup.Retention = src.Dedup.Retention
	}
	if src.Dedup.MaxEntries != 0 {
		dst.Dedup.MaxEntries = src.Dedup.MaxEntries
	}

	if src.Webhooks.Listen != "" {
		dst.Webhooks.Listen = src.Webhooks.Listen
	}
	if len(src.Webhooks.Endpoints) > 0 {
		dst.Webhooks.Endpoints = append(dst.Webhooks.Endpoints, src.Webhooks.Endpoints...)
	}

	if src.Echobot.Welcome != "" {
		dst.Echobot.Welcome = src.Echobot.Welcome
	}
	if src.Echobot.Prefix != "" {
		dst.Echobot.Prefix = src.Echobot.Prefix
	}
	if len(src.Echobot.Clicks) > 0 {
		if dst.Echobot.Clicks == nil {
			dst.Echobot.Clicks = make(map[string]string, len(src.Echobot.Clicks))
		}
		for k, v := range src.Echobot.Clicks {
			dst.Echobot.Clicks[k] = v
		}
	}

	if src.API.Enabled {
		dst.API.Enabled = true
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.APIKey != "" {
		dst.API.APIKey = src.API.APIKey
	}

	if src.Audit.Enabled {
		dst.Audit.Enabled = true
	}
	if src.Audit.Retention != 0 {
		dst.Audit.Retention = src.Audit.Retention
	}
	if src.Audit.Sweep != "" {
		dst.Audit.Sweep = src.Audit.Sweep
	}
	if src.Audit.HubCapacity != 0 {
		dst.Audit.HubCapacity = src.Audit.HubCapacity
	}
	if src.Audit.AMQP.URL != "" {
		dst.Audit.AMQP.URL = src.Audit.AMQP.URL
	}
	if src.Audit.AMQP.Exchange != "" {
		dst.Audit.AMQP.Exchange = src.Audit.AMQP.Exchange
	}
	if src.Audit.AMQP.Buffer != 0 {
		dst.Audit.AMQP.Buffer = src.Audit.AMQP.Buffer
	}
}

func verifyAllConfigHashes(paths []string) error {
	dirToFiles := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		dirToFiles[dir] = append(dirToFiles[dir], path)
	}

	for dir, files := range dirToFiles {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			// No .checksums in this directory: nothing to verify.
			continue
		}

		for _, path := range files {
			basename := filepath.Base(path)
			expectedHash, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: wxgate config lock --config %s", basename, dir, dir)
			}

			if err := VerifyFileHash(path, expectedHash); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"This indicates tampering or unauthorized modification.\n"+
					"If you edited this file intentionally, run: wxgate config lock --config %s", path, err, dir)
			}
		}
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.ShutdownTimeout == 0 {
		cfg.Service.ShutdownTimeout = defaults.Service.ShutdownTimeout
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Dedup.Backend == "" {
		cfg.Dedup.Backend = defaults.Dedup.Backend
	}
	if cfg.Dedup.Retention == 0 {
		cfg.Dedup.Retention = defaults.Dedup.Retention
	}
	if cfg.Dedup.MaxEntries == 0 {
		cfg.Dedup.MaxEntries = defaults.Dedup.MaxEntries
	}

	if cfg.Webhooks.Listen == "" {
		cfg.Webhooks.Listen = defaults.Webhooks.Listen
	}
	for i := range cfg.Webhooks.Endpoints {
		ep := &cfg.Webhooks.Endpoints[i]
		if ep.Name == "" {
			ep.Name = endpointName(ep.Path)
		}
		if ep.Mode == "" {
			ep.Mode = "plain"
		}
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = defaults.Audit.Retention
	}
	if cfg.Audit.Sweep == "" {
		cfg.Audit.Sweep = defaults.Audit.Sweep
	}
	if cfg.Audit.HubCapacity == 0 {
		cfg.Audit.HubCapacity = defaults.Audit.HubCapacity
	}
	if cfg.Audit.AMQP.Exchange == "" {
		cfg.Audit.AMQP.Exchange = defaults.Audit.AMQP.Exchange
	}
	if cfg.Audit.AMQP.Buffer == 0 {
		cfg.Audit.AMQP.Buffer = defaults.Audit.AMQP.Buffer
	}

	return cfg
}

// endpointName derives an application name from a callback path: the last
// non-empty segment, e.g. "/wx/main" -> "main".
func endpointName(path string) string {
	for path != "" && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return filepath.Base("/" + path)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation rejects it where the value is required.
		return match
	})
}
