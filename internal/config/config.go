package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DatabaseType identifies the SQL dialect targeted by a connection URL.
type DatabaseType int

const (
	SQLite DatabaseType = iota
	Postgres
	MySQL
)

func (dt DatabaseType) String() string {
	switch dt {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// DriverName returns the database/sql driver name for this database type.
func (dt DatabaseType) DriverName() string {
	switch dt {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// ParseDatabaseURL determines the database type from a connection URL.
// Unrecognised schemes are treated as SQLite.
func ParseDatabaseURL(url string) DatabaseType {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres
	case strings.HasPrefix(url, "mysql://"):
		return MySQL
	default:
		return SQLite
	}
}

// DSN converts a connection URL into the driver-level data source name.
// Postgres URLs pass through unchanged (pgx accepts them); the sqlite: and
// mysql:// prefixes are stripped to the form their drivers expect.
func DSN(url string) string {
	switch ParseDatabaseURL(url) {
	case Postgres:
		return url
	case MySQL:
		return strings.TrimPrefix(url, "mysql://")
	default:
		return strings.TrimPrefix(url, "sqlite:")
	}
}

// DbConfig is the declarative input for a connection pool.
type DbConfig struct {
	URL             string `yaml:"url" toml:"url"`
	MaxConnections  int    `yaml:"max_connections" toml:"max_connections"`
	MinConnections  int    `yaml:"min_connections" toml:"min_connections"`
	IdleTimeout     int    `yaml:"idle_timeout" toml:"idle_timeout"`         // seconds
	AcquireTimeout  int    `yaml:"acquire_timeout" toml:"acquire_timeout"`   // milliseconds
	PermissionsPath string `yaml:"permissions_path" toml:"permissions_path"` // optional
}

// Default returns the baseline configuration for the given URL.
func Default(url string) DbConfig {
	return DbConfig{
		URL:            url,
		MaxConnections: 5,
		MinConnections: 1,
		IdleTimeout:    300,
		AcquireTimeout: 5000,
	}
}

// IdleTimeoutDuration returns the idle timeout as a time.Duration.
func (c DbConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// AcquireTimeoutDuration returns the acquire timeout as a time.Duration.
func (c DbConfig) AcquireTimeoutDuration() time.Duration {
	return time.Duration(c.AcquireTimeout) * time.Millisecond
}

// DatabaseType returns the database type implied by the configured URL.
func (c DbConfig) DatabaseType() DatabaseType {
	return ParseDatabaseURL(c.URL)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// fileConfig wraps DbConfig under the top-level "database" key used by
// configuration files.
type fileConfig struct {
	Database DbConfig `yaml:"database" toml:"database"`
}

// LoadFile reads a YAML or TOML configuration file (selected by extension,
// defaulting to YAML) with env var substitution.
func LoadFile(path string) (DbConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DbConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	var wrapper fileConfig
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &wrapper); err != nil {
			return DbConfig{}, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &wrapper); err != nil {
			return DbConfig{}, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	if wrapper.Database.URL == "" {
		return DbConfig{}, fmt.Errorf("validating config: database.url is required")
	}
	return wrapper.Database, nil
}

// FromEnv builds a configuration from environment variables. DATABASE_URL is
// required; the DB_* variables fall back to the documented defaults.
func FromEnv() (DbConfig, error) {
	url, ok := os.LookupEnv("DATABASE_URL")
	if !ok || url == "" {
		return DbConfig{}, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := DbConfig{
		URL:             url,
		MaxConnections:  20,
		MinConnections:  5,
		IdleTimeout:     300,
		AcquireTimeout:  5000,
		PermissionsPath: os.Getenv("DB_PERMISSIONS_PATH"),
	}

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"DB_MAX_CONNECTIONS", &cfg.MaxConnections},
		{"DB_MIN_CONNECTIONS", &cfg.MinConnections},
		{"DB_IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"DB_ACQUIRE_TIMEOUT", &cfg.AcquireTimeout},
	} {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return DbConfig{}, fmt.Errorf("%s must be a valid integer: %q", v.name, raw)
		}
		*v.dst = n
	}

	return cfg, nil
}
