// Package config loads formulagraph configuration from YAML with
// environment overrides. Durations are kept as strings in the file and
// parsed through accessors, so a malformed value degrades to the
// default instead of failing the load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all formulagraph configuration.
type Config struct {
	Name string `yaml:"name"`

	// Catalog is the formula catalog file the CLI loads.
	Catalog string `yaml:"catalog"`

	Execution ExecutionConfig `yaml:"execution"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ExecutionConfig bounds the simulation executor.
type ExecutionConfig struct {
	// Workers caps intra-layer parallelism; 0 means one per CPU.
	Workers int `yaml:"workers"`

	// ProcTimeout bounds one procedure invocation, e.g. "30s".
	// Empty or invalid falls back to the default.
	ProcTimeout string `yaml:"proc_timeout"`
}

// StoreConfig configures result persistence.
type StoreConfig struct {
	// DatabasePath is the SQLite archive; empty disables persistence.
	DatabasePath string `yaml:"database_path"`
}

// AuditConfig configures the consistency auditor.
type AuditConfig struct {
	// ArtifactDir is scanned for published artifacts.
	ArtifactDir string `yaml:"artifact_dir"`

	// ArtifactExts filters scanned files, e.g. [".html", ".md"].
	ArtifactExts []string `yaml:"artifact_exts"`

	// PatternsFile maps formula ids to literal-extraction regexps.
	PatternsFile string `yaml:"patterns_file"`

	// DefaultTolerance is the relative tolerance for formulas that
	// declare none.
	DefaultTolerance float64 `yaml:"default_tolerance"`

	// Debounce batches rapid artifact saves in watch mode, e.g. "500ms".
	Debounce string `yaml:"debounce"`
}

// ExportConfig configures snapshot export.
type ExportConfig struct {
	// Path is where `fgraph export` writes the snapshot JSON.
	Path string `yaml:"path"`

	// Strict makes export fail when any formula is non-Ok.
	Strict bool `yaml:"strict"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "formulagraph",
		Catalog: "formulas.yaml",

		Execution: ExecutionConfig{
			Workers:     0,
			ProcTimeout: "30s",
		},

		Store: StoreConfig{
			DatabasePath: "data/results.db",
		},

		Audit: AuditConfig{
			ArtifactDir:      "public",
			ArtifactExts:     []string{".html", ".md"},
			PatternsFile:     "audit_patterns.yaml",
			DefaultTolerance: 0.01,
			Debounce:         "500ms",
		},

		Export: ExportConfig{
			Path:   "data/snapshot.json",
			Strict: false,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("FGRAPH_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("FGRAPH_CATALOG"); path != "" {
		c.Catalog = path
	}
	if dir := os.Getenv("FGRAPH_ARTIFACT_DIR"); dir != "" {
		c.Audit.ArtifactDir = dir
	}
	if n := os.Getenv("FGRAPH_WORKERS"); n != "" {
		if workers, err := strconv.Atoi(n); err == nil && workers >= 0 {
			c.Execution.Workers = workers
		}
	}
	if level := os.Getenv("FGRAPH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetProcTimeout returns the per-procedure timeout as a duration.
func (c *Config) GetProcTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.ProcTimeout)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// GetDebounce returns the artifact watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Audit.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Validate checks for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Audit.DefaultTolerance < 0 {
		return fmt.Errorf("audit default_tolerance must be >= 0, got %g", c.Audit.DefaultTolerance)
	}
	if c.Execution.Workers < 0 {
		return fmt.Errorf("execution workers must be >= 0, got %d", c.Execution.Workers)
	}
	return nil
}
