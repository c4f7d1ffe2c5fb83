package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dbnexus/dbnexus/internal/config"
	"github.com/dbnexus/dbnexus/internal/metrics"
	"github.com/dbnexus/dbnexus/internal/pool"
)

func testServer(t *testing.T, apiKey string) *Server {
	t.Helper()

	cfg := config.DbConfig{
		URL:            "sqlite:" + filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 3,
		MinConnections: 1,
		IdleTimeout:    300,
		AcquireTimeout: 1000,
	}
	p, err := pool.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	t.Cleanup(p.Close)

	return NewServer(p, nil, metrics.New(), apiKey)
}

func TestStatusHandler(t *testing.T) {
	s := testServer(t, "")

	rec := httptest.NewRecorder()
	s.statusHandler(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.DatabaseType != "sqlite" {
		t.Errorf("database_type = %q", resp.DatabaseType)
	}
	if resp.Pool.MaxConns != 3 {
		t.Errorf("pool max = %d", resp.Pool.MaxConns)
	}
}

func TestHealthHandlerWithoutChecker(t *testing.T) {
	s := testServer(t, "")

	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d", rec.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	s := testServer(t, "")

	rec := httptest.NewRecorder()
	s.readyHandler(rec, httptest.NewRequest("GET", "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("ready = %d with warm pool", rec.Code)
	}
}

func TestPermissionsHandler(t *testing.T) {
	s := testServer(t, "")

	rec := httptest.NewRecorder()
	s.permissionsHandler(rec, httptest.NewRequest("GET", "/permissions/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var stats struct {
		CachedRoles int `json:"cached_roles"`
		Capacity    int `json:"capacity"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Capacity == 0 {
		t.Error("capacity should be reported")
	}
}

func TestRequireKey(t *testing.T) {
	s := testServer(t, "secret")

	handler := s.requireKey(s.statusHandler)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("X-API-Key", "secret")
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key = %d, want 200", rec.Code)
	}
}
