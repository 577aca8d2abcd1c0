// Package config provides configuration loading and structs for the yomu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the config file first.
const DefaultPath = "/usr/local/etc/yomu/config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Pool    PoolConfig    `yaml:"pool"`
	Render  RenderConfig  `yaml:"render"`
	Text    TextConfig    `yaml:"text"`
	Library LibraryConfig `yaml:"library"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PoolConfig sizes the worker pool. Zero workers means min(4, CPUs).
type PoolConfig struct {
	Workers int `yaml:"workers"`
}

// RenderConfig holds image output settings.
type RenderConfig struct {
	PreviewWidth int    `yaml:"preview_width"`
	Format       string `yaml:"format"`
	JPEGQuality  int    `yaml:"jpeg_quality"`
	// CacheEntries is the number of rendered pages each worker keeps; negative disables it.
	CacheEntries int `yaml:"cache_entries"`
	// MaxWidth and MaxPixels bound every raster; larger requests are rejected.
	MaxWidth  int `yaml:"max_width"`
	MaxPixels int `yaml:"max_pixels"`
}

// TextConfig holds the fragment merge tolerances, in points.
type TextConfig struct {
	LineEpsilon    float64 `yaml:"line_epsilon"`
	MergeTolerance float64 `yaml:"merge_tolerance"`
}

// LibraryConfig holds paths for the recent-document database, the page text index and
// previews.
type LibraryConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
	PreviewDir   string `yaml:"preview_dir"`
	IndexOnOpen  *bool  `yaml:"index_on_open"`
}

// IndexOnOpenOrDefault returns whether opened documents are added to the text index;
// defaults to true when unset.
func (l *LibraryConfig) IndexOnOpenOrDefault() bool {
	if l.IndexOnOpen != nil {
		return *l.IndexOnOpen
	}
	return true
}

// WatchConfig controls tracking of library files on disk.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig holds the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Library.DatabasePath = expandPath(cfg.Library.DatabasePath, configDir)
	cfg.Library.IndexPath = expandPath(cfg.Library.IndexPath, configDir)
	cfg.Library.PreviewDir = expandPath(cfg.Library.PreviewDir, configDir)
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}

	return &cfg, nil
}

// Validate rejects values ApplyDefaults cannot repair.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Pool.Workers < 0 {
		return fmt.Errorf("pool workers must not be negative, got %d", cfg.Pool.Workers)
	}
	switch strings.ToLower(cfg.Render.Format) {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("unsupported render format %q (use png or jpeg)", cfg.Render.Format)
	}
	if cfg.Render.JPEGQuality < 1 || cfg.Render.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in 1..100, got %d", cfg.Render.JPEGQuality)
	}
	if cfg.Render.MaxWidth < 0 || cfg.Render.MaxPixels < 0 {
		return fmt.Errorf("render limits must not be negative, got max_width %d, max_pixels %d", cfg.Render.MaxWidth, cfg.Render.MaxPixels)
	}
	if cfg.Render.PreviewWidth*2 > cfg.Render.MaxWidth {
		return fmt.Errorf("preview width %d needs max_width of at least %d", cfg.Render.PreviewWidth, cfg.Render.PreviewWidth*2)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
