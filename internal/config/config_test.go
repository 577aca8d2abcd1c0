package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func TestLoad(t *testing.T) {
	_, path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
pool:
  workers: 3
render:
  format: jpeg
  jpeg_quality: 70
library:
  database_path: "/tmp/yomu/library.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Pool.Workers != 3 || cfg.Render.Format != "jpeg" || cfg.Render.JPEGQuality != 70 {
		t.Errorf("unexpected pool/render config: %+v %+v", cfg.Pool, cfg.Render)
	}
	if cfg.Library.DatabasePath != "/tmp/yomu/library.db" {
		t.Errorf("database_path = %s", cfg.Library.DatabasePath)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	_, path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir, path := writeConfig(t, `
library:
  database_path: "./data/db/library.db"
  index_path: "./data/bleve"
  preview_dir: "./data/previews"
log:
  file: "./logs/yomu.log"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct{ got, want string }{
		{cfg.Library.DatabasePath, filepath.Join(dir, "data", "db", "library.db")},
		{cfg.Library.IndexPath, filepath.Join(dir, "data", "bleve")},
		{cfg.Library.PreviewDir, filepath.Join(dir, "data", "previews")},
		{cfg.Log.File, filepath.Join(dir, "logs", "yomu.log")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %s, want %s", tt.got, tt.want)
		}
	}
}

func TestLoad_relativePathUnderHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	_, path := writeConfig(t, "library:\n  database_path: \"yomu/library.db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "yomu", "library.db"); cfg.Library.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Library.DatabasePath, want)
	}
}

func TestLoad_rejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"webp format":      "render:\n  format: webp\n",
		"negative workers": "pool:\n  workers: -1\n",
		"bad quality":      "render:\n  jpeg_quality: 101\n",
		"bad port":         "server:\n  port: 70000\n",
		"negative max":     "render:\n  max_width: -1\n",
		"preview too wide": "render:\n  preview_width: 600\n  max_width: 1000\n",
		"bad yaml":         "server: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, path := writeConfig(t, content)
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8765 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) == 0 || cfg.Server.AllowedOrigins[0] != "tauri://localhost" {
		t.Errorf("default origins: got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Pool.Workers != 0 {
		t.Errorf("workers should stay 0 so the pool picks its own default, got %d", cfg.Pool.Workers)
	}
	if cfg.Render.MaxWidth != 8192 || cfg.Render.MaxPixels != 64<<20 {
		t.Errorf("raster limits: %+v", cfg.Render)
	}
	if cfg.Render.PreviewWidth != 100 || cfg.Render.Format != "png" || cfg.Render.JPEGQuality != 85 {
		t.Errorf("render defaults: %+v", cfg.Render)
	}
	if cfg.Text.LineEpsilon != 0.1 || cfg.Text.MergeTolerance != 2.0 {
		t.Errorf("text defaults: %+v", cfg.Text)
	}
	if cfg.Library.DatabasePath == "" || cfg.Library.IndexPath == "" || cfg.Library.PreviewDir == "" {
		t.Errorf("library defaults: %+v", cfg.Library)
	}
	if cfg.Log.MaxSizeMB != 0 {
		t.Error("log rotation defaults apply only when a log file is set")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_LogRotationWhenFileSet(t *testing.T) {
	cfg := &Config{Log: LogConfig{File: "/tmp/yomu.log"}}
	ApplyDefaults(cfg)
	if cfg.Log.MaxSizeMB != 100 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 7 {
		t.Errorf("log defaults: %+v", cfg.Log)
	}
}

func TestLibraryConfig_IndexOnOpenOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		l := &LibraryConfig{}
		if got := l.IndexOnOpenOrDefault(); !got {
			t.Errorf("IndexOnOpenOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		l := &LibraryConfig{IndexOnOpen: &f}
		if got := l.IndexOnOpenOrDefault(); got {
			t.Errorf("IndexOnOpenOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Library: LibraryConfig{DatabasePath: "/tmp/db"},
		Watch:   WatchConfig{Enabled: true},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || !loaded.Watch.Enabled || loaded.Library.DatabasePath != "/tmp/db" {
		t.Errorf("loaded: %+v", loaded)
	}
}
