package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local storage locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AssetDir string `toml:"asset_dir"`
}

// Generation contains the external generation service settings. An empty
// BaseURL selects the offline synthetic generator.
type Generation struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	DeadlineSeconds  int    `toml:"deadline_seconds"`
	RetryAttempts    int    `toml:"retry_attempts"`
	SyntheticDelayMS int    `toml:"synthetic_delay_ms"`
}

// Credits contains the starting balance granted to a fresh session.
type Credits struct {
	InitialBalance int64 `toml:"initial_balance"`
}

// TierLimits bounds what a job of one tier may request.
type TierLimits struct {
	MaxReferences int    `toml:"max_references"`
	MaxResolution string `toml:"max_resolution"`
}

// Tiers holds the limits for each capability tier.
type Tiers struct {
	Standard TierLimits `toml:"standard"`
	Premium  TierLimits `toml:"premium"`
}

// PriceEntry is one row of the pricing table.
type PriceEntry struct {
	Kind    string `toml:"kind"`
	Tier    string `toml:"tier"`
	Credits int64  `toml:"credits"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for atelier.
//
// Configuration sections by subsystem:
//   - Paths: session database and ingested asset directories
//   - Generation: external service endpoint, key, timeouts, and retries
//   - Credits: starting balance for a fresh session
//   - Tiers: per-tier reference and resolution limits
//   - Pricing: the (kind, tier) credit table
//   - Logging: log format and level
type Config struct {
	Paths      Paths        `toml:"paths"`
	Generation Generation   `toml:"generation"`
	Credits    Credits      `toml:"credits"`
	Tiers      Tiers        `toml:"tiers"`
	Pricing    []PriceEntry `toml:"pricing"`
	Logging    Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(filepath.Join("~", ".config", configDirName, "config.toml"))
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv imports .env files from the config directory and the working
// directory. Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if wd, err := os.Getwd(); err == nil {
		local := filepath.Join(wd, ".env")
		if local != candidates[0] {
			candidates = append(candidates, local)
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and asset directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AssetDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the session database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, databaseFileName)
}

// Synthetic reports whether no generation service endpoint is configured.
func (c *Config) Synthetic() bool {
	return strings.TrimSpace(c.Generation.BaseURL) == ""
}

// RequestTimeout is the per-attempt HTTP timeout for the generation service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// DispatchDeadline bounds a whole generation attempt, retries included.
func (c *Config) DispatchDeadline() time.Duration {
	return time.Duration(c.Generation.DeadlineSeconds) * time.Second
}

// SyntheticDelay is how long the offline generator pretends to work.
func (c *Config) SyntheticDelay() time.Duration {
	return time.Duration(c.Generation.SyntheticDelayMS) * time.Millisecond
}

// LimitsFor returns the limits of the named tier.
func (c *Config) LimitsFor(tier string) (TierLimits, bool) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "standard":
		return c.Tiers.Standard, true
	case "premium":
		return c.Tiers.Premium, true
	default:
		return TierLimits{}, false
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
