package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		Database: DatabaseConfig{
			Path:              "./data/scenecast.db",
			ConnectionTimeout: defaultDatabaseConnectionTimeout,
			EnableWAL:         true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
		Streaming: StreamingConfig{
			ConfigDir:          "/app/data",
			SegmentDuration:    2,
			IdleTimeout:        90,
			SegmentWaitTimeout: 15,
			StartupTimeout:     30,
			MaxSessions:        0,
			FFmpegPath:         "ffmpeg",
		},
		Metadata: MetadataConfig{
			CacheTTL: 5 * time.Minute,
			Timeout:  10 * time.Second,
		},
	}
}

func TestConfigDefaults(t *testing.T) {
	// Run from an empty directory so no stray config file or .env is picked up
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != defaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, defaultServerPort)
	}
	if cfg.Server.Host != defaultServerHost {
		t.Errorf("Server.Host = %s, want %s", cfg.Server.Host, defaultServerHost)
	}
	if cfg.Database.Path != defaultDatabasePath {
		t.Errorf("Database.Path = %s, want %s", cfg.Database.Path, defaultDatabasePath)
	}
	if !cfg.Database.EnableWAL {
		t.Error("Database.EnableWAL should default to true")
	}
	if cfg.Logging.Level != defaultLogLevel {
		t.Errorf("Logging.Level = %s, want %s", cfg.Logging.Level, defaultLogLevel)
	}
	if cfg.Streaming.ConfigDir != defaultConfigDir {
		t.Errorf("Streaming.ConfigDir = %s, want %s", cfg.Streaming.ConfigDir, defaultConfigDir)
	}
	if cfg.Streaming.SegmentDuration != defaultSegmentDuration {
		t.Errorf("Streaming.SegmentDuration = %d, want %d", cfg.Streaming.SegmentDuration, defaultSegmentDuration)
	}
	if cfg.Streaming.IdleTimeout != defaultIdleTimeout {
		t.Errorf("Streaming.IdleTimeout = %d, want %d", cfg.Streaming.IdleTimeout, defaultIdleTimeout)
	}
	if cfg.Streaming.SegmentWaitTimeout != defaultSegmentWaitTimeout {
		t.Errorf("Streaming.SegmentWaitTimeout = %d, want %d", cfg.Streaming.SegmentWaitTimeout, defaultSegmentWaitTimeout)
	}
	if cfg.Streaming.StartupTimeout != defaultStartupTimeout {
		t.Errorf("Streaming.StartupTimeout = %d, want %d", cfg.Streaming.StartupTimeout, defaultStartupTimeout)
	}
	if cfg.Streaming.MaxSessions != defaultMaxSessions {
		t.Errorf("Streaming.MaxSessions = %d, want %d", cfg.Streaming.MaxSessions, defaultMaxSessions)
	}
	if cfg.Streaming.FFmpegPath != "ffmpeg" {
		t.Errorf("Streaming.FFmpegPath = %s, want ffmpeg", cfg.Streaming.FFmpegPath)
	}
	if cfg.Metadata.CacheTTL != defaultMetadataCacheTTL {
		t.Errorf("Metadata.CacheTTL = %v, want %v", cfg.Metadata.CacheTTL, defaultMetadataCacheTTL)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"zero write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, true},
		{"zero database timeout", func(c *Config) { c.Database.ConnectionTimeout = 0 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"empty config dir", func(c *Config) { c.Streaming.ConfigDir = "" }, true},
		{"zero segment duration", func(c *Config) { c.Streaming.SegmentDuration = 0 }, true},
		{"zero idle timeout", func(c *Config) { c.Streaming.IdleTimeout = 0 }, true},
		{"zero segment wait timeout", func(c *Config) { c.Streaming.SegmentWaitTimeout = 0 }, true},
		{"zero startup timeout", func(c *Config) { c.Streaming.StartupTimeout = 0 }, true},
		{"negative max sessions", func(c *Config) { c.Streaming.MaxSessions = -1 }, true},
		{"zero max sessions is unbounded", func(c *Config) { c.Streaming.MaxSessions = 0 }, false},
		{"debug log level", func(c *Config) { c.Logging.Level = "debug" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEnvVars(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCENECAST_SERVER_PORT", "9090")
	t.Setenv("SCENECAST_STREAMING_SEGMENTDURATION", "4")
	t.Setenv("SCENECAST_STREAMING_CONFIGDIR", "/custom/data")
	t.Setenv("SCENECAST_STREAMING_MAXSESSIONS", "8")
	t.Setenv("SCENECAST_METADATA_BASEURL", "http://metadata.local:9999")
	t.Setenv("SCENECAST_METADATA_APIKEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Streaming.SegmentDuration != 4 {
		t.Errorf("Streaming.SegmentDuration = %d, want 4", cfg.Streaming.SegmentDuration)
	}
	if cfg.Streaming.ConfigDir != "/custom/data" {
		t.Errorf("Streaming.ConfigDir = %s, want /custom/data", cfg.Streaming.ConfigDir)
	}
	if cfg.Streaming.MaxSessions != 8 {
		t.Errorf("Streaming.MaxSessions = %d, want 8", cfg.Streaming.MaxSessions)
	}
	if cfg.Metadata.BaseURL != "http://metadata.local:9999" {
		t.Errorf("Metadata.BaseURL = %s, want http://metadata.local:9999", cfg.Metadata.BaseURL)
	}
	if cfg.Metadata.APIKey != "secret" {
		t.Errorf("Metadata.APIKey = %s, want secret", cfg.Metadata.APIKey)
	}
}

func TestContains(t *testing.T) {
	if !contains([]string{"one", "two"}, "two") {
		t.Error("contains() should find existing item")
	}
	if contains([]string{"one", "two"}, "three") {
		t.Error("contains() should not find missing item")
	}
	if contains(nil, "one") {
		t.Error("contains() on nil slice should be false")
	}
}
