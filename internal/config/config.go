package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Execution ExecutionConfig `yaml:"execution"`
	Admission AdmissionConfig `yaml:"admission"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
	TLS       TLSConfig       `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 = none; executions are unbounded by default
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

// ExecutionConfig describes the host interpreters snippets run under.
type ExecutionConfig struct {
	PythonBinary   string        `yaml:"python_binary"`
	Shell          string        `yaml:"shell"`
	PipCommand     []string      `yaml:"pip_command"` // empty means "<python_binary> -m pip install"
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Timeout        time.Duration `yaml:"timeout"` // 0 disables
	WorkDir        string        `yaml:"work_dir"`
}

// InstallCommand is the package manager argv; the package name is appended
// as its sole positional argument. Unless overridden it installs into
// PythonBinary's environment.
func (e ExecutionConfig) InstallCommand() []string {
	if len(e.PipCommand) > 0 {
		return e.PipCommand
	}
	return []string{e.PythonBinary, "-m", "pip", "install"}
}

type AdmissionConfig struct {
	MaxRequestsPerClient int `yaml:"max_requests_per_client"`
}

// ThrottleConfig is an optional token bucket in front of admission. RPS 0 disables it.
type ThrottleConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LedgerBuffer    int           `yaml:"ledger_buffer"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty disables the rotating file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from env or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Execution: ExecutionConfig{
			PythonBinary:   "python3",
			Shell:          "/bin/sh",
			MaxOutputBytes: 1 << 20,
		},
		Admission: AdmissionConfig{
			MaxRequestsPerClient: 100,
		},
		Throttle: ThrottleConfig{
			RPS:   0,
			Burst: 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			LedgerBuffer:    1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "app.log",
			MaxSizeMB:  1,
			MaxBackups: 1,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// ApplyEnv overrides fields from the environment: PORT and DATABASE_URL.
func (c *Config) ApplyEnv() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number: %w", port, err)
		}
		c.Server.Port = p
	}
	return c.Validate()
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Execution.PythonBinary == "" {
		return fmt.Errorf("execution.python_binary is required")
	}
	if c.Execution.Shell == "" {
		return fmt.Errorf("execution.shell is required")
	}
	if c.Execution.MaxOutputBytes < 1024 {
		return fmt.Errorf("execution.max_output_bytes must be >= 1024, got %d", c.Execution.MaxOutputBytes)
	}
	if c.Execution.Timeout < 0 {
		return fmt.Errorf("execution.timeout must not be negative")
	}
	if c.Admission.MaxRequestsPerClient < 1 {
		return fmt.Errorf("admission.max_requests_per_client must be >= 1")
	}
	if c.Throttle.RPS < 0 {
		return fmt.Errorf("throttle.rps must not be negative")
	}
	if c.Throttle.RPS > 0 && c.Throttle.Burst < 1 {
		return fmt.Errorf("throttle.burst must be >= 1 when throttle.rps is set")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
