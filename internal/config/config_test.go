package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDatabaseURL(t *testing.T) {
	cases := []struct {
		url  string
		want DatabaseType
	}{
		{"sqlite::memory:", SQLite},
		{"sqlite:/tmp/test.db", SQLite},
		{"postgres://localhost/test", Postgres},
		{"postgresql://localhost/test", Postgres},
		{"mysql://localhost/test", MySQL},
		{"unknown://localhost/test", SQLite},
	}

	for _, tc := range cases {
		if got := ParseDatabaseURL(tc.url); got != tc.want {
			t.Errorf("ParseDatabaseURL(%q) = %s, want %s", tc.url, got, tc.want)
		}
	}
}

func TestDSN(t *testing.T) {
	if got := DSN("sqlite::memory:"); got != ":memory:" {
		t.Errorf("sqlite DSN = %q, want :memory:", got)
	}
	if got := DSN("mysql://user:pw@tcp(localhost:3306)/db"); got != "user:pw@tcp(localhost:3306)/db" {
		t.Errorf("mysql DSN = %q", got)
	}
	if got := DSN("postgres://localhost/test"); got != "postgres://localhost/test" {
		t.Errorf("postgres DSN should pass through, got %q", got)
	}
}

func TestDriverNames(t *testing.T) {
	if SQLite.DriverName() != "sqlite" {
		t.Errorf("sqlite driver = %q", SQLite.DriverName())
	}
	if Postgres.DriverName() != "pgx" {
		t.Errorf("postgres driver = %q", Postgres.DriverName())
	}
	if MySQL.DriverName() != "mysql" {
		t.Errorf("mysql driver = %q", MySQL.DriverName())
	}
}

func TestCorrectScenario(t *testing.T) {
	// min > max, idle below bound, zero acquire timeout, bare local MySQL URL
	cfg := Correct(DbConfig{
		URL:            "mysql://localhost/db",
		MaxConnections: 5,
		MinConnections: 10,
		IdleTimeout:    10,
		AcquireTimeout: 0,
	})

	if cfg.MaxConnections != 5 {
		t.Errorf("max = %d, want 5", cfg.MaxConnections)
	}
	if cfg.MinConnections != 5 {
		t.Errorf("min = %d, want 5", cfg.MinConnections)
	}
	if cfg.IdleTimeout != 30 {
		t.Errorf("idle_timeout = %d, want 30", cfg.IdleTimeout)
	}
	if cfg.AcquireTimeout != 5000 {
		t.Errorf("acquire_timeout = %d, want 5000", cfg.AcquireTimeout)
	}
	if cfg.URL != "mysql://localhost/db?connect_timeout=10" {
		t.Errorf("url = %q", cfg.URL)
	}
}

func TestCorrectZeroValues(t *testing.T) {
	cfg := Correct(DbConfig{URL: "sqlite::memory:"})

	if cfg.MaxConnections != 10 {
		t.Errorf("max = %d, want 10", cfg.MaxConnections)
	}
	if cfg.MinConnections != 1 {
		t.Errorf("min = %d, want 1", cfg.MinConnections)
	}
	if cfg.IdleTimeout != 300 {
		t.Errorf("idle_timeout = %d, want 300", cfg.IdleTimeout)
	}
	if cfg.AcquireTimeout != 5000 {
		t.Errorf("acquire_timeout = %d, want 5000", cfg.AcquireTimeout)
	}
}

func TestCorrectBounds(t *testing.T) {
	cfg := Correct(DbConfig{
		URL:            "sqlite::memory:",
		MaxConnections: 10,
		MinConnections: 5,
		IdleTimeout:    9999,
		AcquireTimeout: 50000,
	})

	if cfg.IdleTimeout != 3600 {
		t.Errorf("idle_timeout = %d, want 3600", cfg.IdleTimeout)
	}
	if cfg.AcquireTimeout != 50000 {
		t.Errorf("acquire_timeout = %d, should stay 50000", cfg.AcquireTimeout)
	}
}

func TestCorrectURLNotTouchedWithParams(t *testing.T) {
	url := "postgres://localhost/db?sslmode=disable"
	cfg := Correct(Default(url))
	if cfg.URL != url {
		t.Errorf("url with params was modified: %q", cfg.URL)
	}

	url = "postgres://db.example.com/db"
	cfg = Correct(Default(url))
	if cfg.URL != url {
		t.Errorf("non-local url was modified: %q", cfg.URL)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(DbConfig{})
	// empty URL, zero max, zero acquire, zero idle
	if len(errs) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(errs), errs)
	}

	errs = Validate(DbConfig{
		URL:            "sqlite::memory:",
		MaxConnections: 2,
		MinConnections: 5,
		IdleTimeout:    300,
		AcquireTimeout: 5000,
	})
	if len(errs) != 1 {
		t.Fatalf("expected 1 violation for min > max, got %d: %v", len(errs), errs)
	}

	if errs := Validate(Default("sqlite::memory:")); len(errs) != 0 {
		t.Errorf("default config should validate, got %v", errs)
	}
}

func TestDurations(t *testing.T) {
	cfg := DbConfig{IdleTimeout: 300, AcquireTimeout: 5000}
	if cfg.IdleTimeoutDuration() != 300*time.Second {
		t.Errorf("idle duration = %s", cfg.IdleTimeoutDuration())
	}
	if cfg.AcquireTimeoutDuration() != 5000*time.Millisecond {
		t.Errorf("acquire duration = %s", cfg.AcquireTimeoutDuration())
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("TEST_DB_URL", "sqlite::memory:")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `database:
  url: "${TEST_DB_URL}"
  max_connections: 20
  min_connections: 5
  idle_timeout: 300
  acquire_timeout: 5000
  permissions_path: "perms.yaml"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.URL != "sqlite::memory:" {
		t.Errorf("env substitution failed, url = %q", cfg.URL)
	}
	if cfg.MaxConnections != 20 || cfg.MinConnections != 5 {
		t.Errorf("connections = %d/%d", cfg.MinConnections, cfg.MaxConnections)
	}
	if cfg.PermissionsPath != "perms.yaml" {
		t.Errorf("permissions_path = %q", cfg.PermissionsPath)
	}
}

func TestLoadFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `[database]
url = "sqlite::memory:"
max_connections = 20
min_connections = 5
idle_timeout = 300
acquire_timeout = 5000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.URL != "sqlite::memory:" || cfg.MaxConnections != 20 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFileMissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  max_connections: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for missing database.url")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("DB_MAX_CONNECTIONS", "30")
	t.Setenv("DB_MIN_CONNECTIONS", "3")
	t.Setenv("DB_IDLE_TIMEOUT", "120")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "2000")
	t.Setenv("DB_PERMISSIONS_PATH", "/etc/dbnexus/perms.yaml")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.URL != "postgres://localhost/app" {
		t.Errorf("url = %q", cfg.URL)
	}
	if cfg.MaxConnections != 30 || cfg.MinConnections != 3 {
		t.Errorf("connections = %d/%d", cfg.MinConnections, cfg.MaxConnections)
	}
	if cfg.IdleTimeout != 120 || cfg.AcquireTimeout != 2000 {
		t.Errorf("timeouts = %d/%d", cfg.IdleTimeout, cfg.AcquireTimeout)
	}
	if cfg.PermissionsPath != "/etc/dbnexus/perms.yaml" {
		t.Errorf("permissions_path = %q", cfg.PermissionsPath)
	}
}

func TestFromEnvInvalidInteger(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("DB_MAX_CONNECTIONS", "lots")

	if _, err := FromEnv(); err == nil {
		t.Error("expected error for non-integer DB_MAX_CONNECTIONS")
	}
}
