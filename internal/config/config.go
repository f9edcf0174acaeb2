// Package config loads the server configuration from YAML with environment
// overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vanitypay/vanitypay/internal/app/auth"
	"github.com/vanitypay/vanitypay/internal/database"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

// ServerConfig holds HTTP listener settings. Timeouts are in seconds.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// AuthConfig holds token signing settings and the configured users.
type AuthConfig struct {
	JWTSecret string      `yaml:"jwt_secret"`
	TokenTTL  int         `yaml:"token_ttl"` // seconds
	Users     []auth.User `yaml:"users"`
}

// HTTPConfig holds the ambient HTTP surface settings.
type HTTPConfig struct {
	RateLimitRPS   int      `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins"`
	AuditLogPath   string   `yaml:"audit_log_path"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database database.Config      `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Auth     AuthConfig           `yaml:"auth"`
	HTTP     HTTPConfig           `yaml:"http"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Auth: AuthConfig{
			TokenTTL: 86400,
		},
		HTTP: HTTPConfig{
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads config.yaml (or CONFIG_PATH) and applies environment overrides.
// A missing file is not an error; defaults are used.
func Load() (*Config, error) {
	_ = godotenv.Load() // allow .env for local runs

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.Database.DSN != "" && cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AUDIT_LOG_PATH"); v != "" {
		cfg.HTTP.AuditLogPath = v
	}
}
