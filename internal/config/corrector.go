package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Correct normalises a raw configuration into a safe, applicable one. Each
// repair logs a warning; the function never fails.
func Correct(cfg DbConfig) DbConfig {
	if cfg.MinConnections > cfg.MaxConnections {
		slog.Warn("correcting min_connections > max_connections, setting min to max",
			"min", cfg.MinConnections, "max", cfg.MaxConnections)
		cfg.MinConnections = cfg.MaxConnections
	}

	if cfg.MinConnections == 0 {
		slog.Warn("correcting min_connections from 0 to 1")
		cfg.MinConnections = 1
	}

	if cfg.MaxConnections == 0 {
		slog.Warn("correcting max_connections from 0 to 10")
		cfg.MaxConnections = 10
	}

	switch {
	case cfg.AcquireTimeout == 0:
		slog.Warn("correcting acquire_timeout from 0 to 5000ms")
		cfg.AcquireTimeout = 5000
	case cfg.AcquireTimeout < 1000:
		slog.Warn("adjusting acquire_timeout to minimum 1000ms", "was", cfg.AcquireTimeout)
		cfg.AcquireTimeout = 1000
	case cfg.AcquireTimeout > 60000:
		slog.Warn("adjusting acquire_timeout to maximum 60000ms", "was", cfg.AcquireTimeout)
		cfg.AcquireTimeout = 60000
	}

	switch {
	case cfg.IdleTimeout == 0:
		slog.Warn("correcting idle_timeout from 0 to 300s")
		cfg.IdleTimeout = 300
	case cfg.IdleTimeout < 30:
		slog.Warn("adjusting idle_timeout to minimum 30s", "was", cfg.IdleTimeout)
		cfg.IdleTimeout = 30
	case cfg.IdleTimeout > 3600:
		slog.Warn("adjusting idle_timeout to maximum 3600s", "was", cfg.IdleTimeout)
		cfg.IdleTimeout = 3600
	}

	if (strings.HasPrefix(cfg.URL, "mysql://") || strings.HasPrefix(cfg.URL, "postgres://")) &&
		strings.Contains(cfg.URL, "localhost") &&
		!strings.Contains(cfg.URL, "?") && !strings.Contains(cfg.URL, ";") {
		cfg.URL += "?connect_timeout=10"
		slog.Warn("appended connect_timeout=10 to local database URL", "url", cfg.URL)
	}

	return cfg
}

// CorrectWithCapability applies Correct and then caps max_connections at 80%
// of the server's configured maximum, queried over a live connection. SQLite
// has no server-side limit and is returned unchanged.
func CorrectWithCapability(ctx context.Context, cfg DbConfig, db *sql.DB, dt DatabaseType) DbConfig {
	cfg = Correct(cfg)

	serverMax, err := queryServerMaxConnections(ctx, db, dt)
	if err != nil {
		slog.Warn("could not query server max_connections, keeping configured value", "err", err)
		return cfg
	}
	if serverMax <= 0 {
		return cfg
	}

	allowed := serverMax * 8 / 10
	if allowed < 1 {
		allowed = 1
	}
	if cfg.MaxConnections > allowed {
		slog.Warn("capping max_connections at 80% of server limit",
			"configured", cfg.MaxConnections, "server_max", serverMax, "capped", allowed)
		cfg.MaxConnections = allowed
		if cfg.MinConnections > cfg.MaxConnections {
			cfg.MinConnections = cfg.MaxConnections
		}
	}

	return cfg
}

func queryServerMaxConnections(ctx context.Context, db *sql.DB, dt DatabaseType) (int, error) {
	switch dt {
	case Postgres:
		var v string
		if err := db.QueryRowContext(ctx, "SHOW max_connections").Scan(&v); err != nil {
			return 0, err
		}
		return strconv.Atoi(v)
	case MySQL:
		var v int
		if err := db.QueryRowContext(ctx, "SELECT @@max_connections").Scan(&v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return 0, fmt.Errorf("no server connection limit for %s", dt)
	}
}

// Validate returns every violation found in the configuration. It is the
// strict counterpart of Correct for callers that want to reject bad input
// instead of repairing it.
func Validate(cfg DbConfig) []error {
	var errs []error

	if cfg.URL == "" {
		errs = append(errs, fmt.Errorf("database URL cannot be empty"))
	}
	if cfg.MaxConnections == 0 {
		errs = append(errs, fmt.Errorf("max_connections must be greater than 0"))
	}
	if cfg.MinConnections > cfg.MaxConnections {
		errs = append(errs, fmt.Errorf("min_connections cannot be greater than max_connections"))
	}
	if cfg.AcquireTimeout == 0 {
		errs = append(errs, fmt.Errorf("acquire_timeout must be greater than 0"))
	}
	if cfg.IdleTimeout == 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must be greater than 0"))
	}

	return errs
}
