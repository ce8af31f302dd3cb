// Package config loads msgstore settings from defaults, a YAML file, a .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nainya/msgstore/internal/logger"
)

// Environment variables read by ApplyEnv.
const (
	EnvHTTPPort    = "MSGSTORE_HTTP_PORT"
	EnvGRPCPort    = "MSGSTORE_GRPC_PORT"
	EnvMetricsPort = "MSGSTORE_METRICS_PORT"
	EnvDB          = "MSGSTORE_DB"
	EnvLogLevel    = "MSGSTORE_LOG_LEVEL"
	EnvLogPretty   = "MSGSTORE_LOG_PRETTY"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener settings. A zero gRPC or metrics port disables
// that listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	GRPCPort        int           `yaml:"grpc_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig mirrors logger.Config for the fields that can be configured.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			GRPCPort:        50051,
			MetricsPort:     9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "msgstore.db"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadFile overlays the YAML file at path onto the defaults. Keys missing from
// the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the effective configuration: defaults, then the YAML file when
// path is not empty, then the environment read through getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. Empty variables are
// ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	ports := []struct {
		name string
		dst  *int
	}{
		{EnvHTTPPort, &c.Server.HTTPPort},
		{EnvGRPCPort, &c.Server.GRPCPort},
		{EnvMetricsPort, &c.Server.MetricsPort},
	}
	for _, p := range ports {
		v := getenv(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", p.name, v)
		}
		*p.dst = n
	}

	if v := getenv(EnvDB); v != "" {
		c.Database.Path = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv(EnvLogPretty); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvLogPretty, v)
		}
		c.Logging.Pretty = b
	}
	return nil
}

// Validate checks that the configuration can be used to start the server.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("server.metrics_port %d out of range", c.Server.MetricsPort))
	}

	seen := map[int]string{}
	for _, p := range []struct {
		name string
		port int
	}{
		{"http_port", c.Server.HTTPPort},
		{"grpc_port", c.Server.GRPCPort},
		{"metrics_port", c.Server.MetricsPort},
	} {
		if p.port == 0 {
			continue
		}
		if other, ok := seen[p.port]; ok {
			errs = append(errs, fmt.Errorf("server.%s and server.%s share port %d", other, p.name, p.port))
		}
		seen[p.port] = p.name
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if _, ok := logger.Levels[c.Logging.Level]; !ok {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the logging section into a logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Logging.Level, Pretty: c.Logging.Pretty}
}
