package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultMaxFormSize    = 25 * 1024 * 1024 // 25MB
	DefaultMaxConcurrency = 4
	DefaultOracleRetries  = 2
	DefaultOracleTimeout  = 45 * time.Second

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the form filler service
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Storage configuration
	DataDirectory string // object store root
	PublicBaseURL string // base URL persisted objects are served under

	// Oracle configuration
	OracleBaseURL string
	OracleAPIKey  string
	OracleModel   string
	OracleTimeout time.Duration

	// Pipeline configuration
	MaxFillConcurrency int // concurrent oracle calls per job
	OracleMaxRetries   int // transient-failure retry budget per field
	MaxFormSize        int64

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	dataDir := filepath.Join(os.TempDir(), "pdf-form-filler")

	return &Config{
		Mode:               ModeServer,
		Host:               DefaultHost,
		Port:               DefaultPort,
		DataDirectory:      dataDir,
		PublicBaseURL:      fmt.Sprintf("http://%s:%d/files", DefaultHost, DefaultPort),
		OracleBaseURL:      "https://api.openai.com/v1",
		OracleModel:        "gpt-4o-mini",
		OracleTimeout:      DefaultOracleTimeout,
		MaxFillConcurrency: DefaultMaxConcurrency,
		OracleMaxRetries:   DefaultOracleRetries,
		MaxFormSize:        DefaultMaxFormSize,
		Version:            "1.0.0",
		ServerName:         "pdf-form-filler",
		LogLevel:           DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.DataDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.DataDirectory); err == nil {
			cfg.DataDirectory = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("FORM_FILLER")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("datadir", cfg.DataDirectory)
	viper.SetDefault("baseurl", cfg.PublicBaseURL)
	viper.SetDefault("oracleurl", cfg.OracleBaseURL)
	viper.SetDefault("oraclekey", cfg.OracleAPIKey)
	viper.SetDefault("oraclemodel", cfg.OracleModel)
	viper.SetDefault("oracletimeout", cfg.OracleTimeout)
	viper.SetDefault("concurrency", cfg.MaxFillConcurrency)
	viper.SetDefault("retries", cfg.OracleMaxRetries)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxformsize", cfg.MaxFormSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'server' for the HTTP API, 'stdio' for MCP standard I/O")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("datadir", cfg.DataDirectory, "Directory backing the object store")
	pflag.String("baseurl", cfg.PublicBaseURL, "Public base URL for stored documents")
	pflag.String("oracleurl", cfg.OracleBaseURL, "Oracle API base URL")
	pflag.String("oraclekey", cfg.OracleAPIKey, "Oracle API key (or OPENAI_API_KEY)")
	pflag.String("oraclemodel", cfg.OracleModel, "Oracle model identifier")
	pflag.Duration("oracletimeout", cfg.OracleTimeout, "Oracle request timeout")
	pflag.Int("concurrency", cfg.MaxFillConcurrency, "Maximum concurrent oracle calls per job")
	pflag.Int("retries", cfg.OracleMaxRetries, "Retry budget for transient oracle failures")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxformsize", cfg.MaxFormSize, "Maximum form document size in bytes")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "datadir", "baseurl",
		"oracleurl", "oraclekey", "oraclemodel", "oracletimeout",
		"concurrency", "retries", "loglevel", "maxformsize",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DataDirectory = viper.GetString("datadir")
	cfg.PublicBaseURL = viper.GetString("baseurl")
	cfg.OracleBaseURL = viper.GetString("oracleurl")
	cfg.OracleAPIKey = viper.GetString("oraclekey")
	cfg.OracleModel = viper.GetString("oraclemodel")
	cfg.OracleTimeout = viper.GetDuration("oracletimeout")
	cfg.MaxFillConcurrency = viper.GetInt("concurrency")
	cfg.OracleMaxRetries = viper.GetInt("retries")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFormSize = viper.GetInt64("maxformsize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.DataDirectory == "" {
		return errors.New("data directory cannot be empty")
	}

	// Check if the data directory exists, create if it doesn't
	if _, err := os.Stat(c.DataDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.DataDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create data directory %s: %w", c.DataDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access data directory %s: %w", c.DataDirectory, err)
	}

	if c.MaxFormSize <= 0 {
		return errors.New("maximum form size must be positive")
	}

	if c.MaxFillConcurrency < 1 {
		return errors.New("fill concurrency must be at least 1")
	}

	if c.OracleMaxRetries < 0 {
		return errors.New("oracle retry budget cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsServerMode returns true if the service runs the HTTP API
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the service runs as an MCP stdio server
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DataDirectory: %s, OracleModel: %s, Concurrency: %d, LogLevel: %s}",
		c.Mode, c.Host, c.Port, c.DataDirectory, c.OracleModel, c.MaxFillConcurrency, c.LogLevel)
}
