// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = 30 * time.Second
	defaultDatabasePath              = "./data/scenecast.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false
	defaultConfigDir                 = "/app/data"
	defaultSegmentDuration           = 2
	defaultIdleTimeout               = 90
	defaultSegmentWaitTimeout        = 15
	defaultStartupTimeout            = 30
	defaultMaxSessions               = 0 // unbounded
	defaultMetadataCacheTTL          = 5 * time.Minute
	defaultMetadataTimeout           = 10 * time.Second
	envPrefix                        = "SCENECAST"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Streaming StreamingConfig
	Metadata  MetadataConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	EnableWAL         bool
	MigrationsPath    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// StreamingConfig holds transcoding session configuration.
// Timeout values are in seconds to keep the environment surface flat.
type StreamingConfig struct {
	ConfigDir          string // root for per-session output directories
	SegmentDuration    int    // seconds per HLS segment
	IdleTimeout        int    // seconds without activity before teardown
	SegmentWaitTimeout int    // seconds a segment request blocks before 408
	StartupTimeout     int    // seconds to wait for the first segment
	MaxSessions        int    // 0 = unbounded; otherwise LRU eviction on overflow
	FFmpegPath         string // transcoder binary, resolved via PATH when bare
}

// MetadataConfig holds the upstream metadata service connection settings
type MetadataConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// Load .env file if present (optional, won't error if missing)
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/scenecast")

	// Environment variable settings
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	// Database defaults
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.enablewal", true)
	v.SetDefault("database.migrationspath", "file://./migrations")

	// Logging defaults
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	// Streaming defaults
	v.SetDefault("streaming.configdir", defaultConfigDir)
	v.SetDefault("streaming.segmentduration", defaultSegmentDuration)
	v.SetDefault("streaming.idletimeout", defaultIdleTimeout)
	v.SetDefault("streaming.segmentwaittimeout", defaultSegmentWaitTimeout)
	v.SetDefault("streaming.startuptimeout", defaultStartupTimeout)
	v.SetDefault("streaming.maxsessions", defaultMaxSessions)
	v.SetDefault("streaming.ffmpegpath", "ffmpeg")

	// Metadata defaults. BaseURL and APIKey default to empty so the env
	// bindings exist; an empty BaseURL means not configured yet.
	v.SetDefault("metadata.baseurl", "")
	v.SetDefault("metadata.apikey", "")
	v.SetDefault("metadata.cachettl", defaultMetadataCacheTTL)
	v.SetDefault("metadata.timeout", defaultMetadataTimeout)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	// Validate timeout durations
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	// Validate streaming values
	if c.Streaming.ConfigDir == "" {
		return fmt.Errorf("streaming config dir cannot be empty")
	}
	if c.Streaming.SegmentDuration <= 0 {
		return fmt.Errorf("invalid segment duration: %d (must be > 0)", c.Streaming.SegmentDuration)
	}
	if c.Streaming.IdleTimeout <= 0 {
		return fmt.Errorf("invalid idle timeout: %d (must be > 0)", c.Streaming.IdleTimeout)
	}
	if c.Streaming.SegmentWaitTimeout <= 0 {
		return fmt.Errorf("invalid segment wait timeout: %d (must be > 0)", c.Streaming.SegmentWaitTimeout)
	}
	if c.Streaming.StartupTimeout <= 0 {
		return fmt.Errorf("invalid startup timeout: %d (must be > 0)", c.Streaming.StartupTimeout)
	}
	if c.Streaming.MaxSessions < 0 {
		return fmt.Errorf("invalid max sessions: %d (must be >= 0)", c.Streaming.MaxSessions)
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
