package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"tauri://localhost", "http://tauri.localhost", "http://localhost:1420"}
	}
	if cfg.Render.PreviewWidth == 0 {
		cfg.Render.PreviewWidth = 100
	}
	if cfg.Render.Format == "" {
		cfg.Render.Format = "png"
	}
	if cfg.Render.JPEGQuality == 0 {
		cfg.Render.JPEGQuality = 85
	}
	if cfg.Render.CacheEntries == 0 {
		cfg.Render.CacheEntries = 32
	}
	if cfg.Render.MaxWidth == 0 {
		cfg.Render.MaxWidth = 8192
	}
	if cfg.Render.MaxPixels == 0 {
		cfg.Render.MaxPixels = 64 << 20
	}
	if cfg.Text.LineEpsilon == 0 {
		cfg.Text.LineEpsilon = 0.1
	}
	if cfg.Text.MergeTolerance == 0 {
		cfg.Text.MergeTolerance = 2.0
	}
	if cfg.Library.DatabasePath == "" {
		cfg.Library.DatabasePath = "/usr/local/var/yomu/data/db/library.db"
	}
	if cfg.Library.IndexPath == "" {
		cfg.Library.IndexPath = "/usr/local/var/yomu/data/indices/bleve"
	}
	if cfg.Library.PreviewDir == "" {
		cfg.Library.PreviewDir = "/usr/local/var/yomu/data/previews"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 7
		}
	}
}
