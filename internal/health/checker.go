// Package health runs periodic maintenance against a pool: probing idle
// connections, recreating the minimum set, and tracking overall status.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dbnexus/dbnexus/internal/metrics"
	"github.com/dbnexus/dbnexus/internal/pool"
)

// Status represents the database's health as seen by the checker.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Snapshot is the checker's current view.
type Snapshot struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	CleanedConnections  int       `json:"cleaned_connections"`
}

// Checker performs periodic health checks and idle-connection maintenance.
type Checker struct {
	mu       sync.RWMutex
	snapshot Snapshot

	pool    *pool.Pool
	metrics *metrics.Collector

	interval         time.Duration
	failureThreshold int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a checker over the given pool.
func NewChecker(p *pool.Pool, m *metrics.Collector, interval time.Duration, failureThreshold int) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Checker{
		pool:             p,
		metrics:          m,
		interval:         interval,
		failureThreshold: failureThreshold,
		stopCh:           make(chan struct{}),
	}
}

// Start begins periodic checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started", "interval", c.interval, "threshold", c.failureThreshold)
}

// Stop stops the checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	// Run immediately on start
	c.checkOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkOnce()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	cleaned := c.pool.ValidateAndRecreate(ctx)

	start := time.Now()
	healthy, probeErr := c.probe(ctx)
	if c.metrics != nil {
		c.metrics.HealthCheckCompleted(time.Since(start), healthy)
		st := c.pool.Status()
		c.metrics.UpdatePoolStats(st.Active, st.Idle, st.Total, st.Waiting)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.LastCheck = time.Now()
	c.snapshot.CleanedConnections += cleaned

	if healthy {
		if c.snapshot.ConsecutiveFailures > 0 {
			slog.Info("database recovered", "failures", c.snapshot.ConsecutiveFailures)
		}
		c.snapshot.Status = StatusHealthy
		c.snapshot.ConsecutiveFailures = 0
		c.snapshot.LastError = ""
		return
	}

	c.snapshot.ConsecutiveFailures++
	if probeErr != "" {
		c.snapshot.LastError = probeErr
	}
	if c.snapshot.ConsecutiveFailures >= c.failureThreshold {
		if c.snapshot.Status != StatusUnhealthy {
			slog.Warn("database marked unhealthy",
				"failures", c.snapshot.ConsecutiveFailures, "error", c.snapshot.LastError)
		}
		c.snapshot.Status = StatusUnhealthy
	}
}

// probe borrows a session and runs the pool's SELECT 1 health check through
// the full acquire path.
func (c *Checker) probe(ctx context.Context) (bool, string) {
	s, err := c.pool.GetSession(ctx, "health")
	if err != nil {
		return false, "acquire for health check: " + err.Error()
	}
	defer s.Close()

	if !c.pool.CheckHealth(ctx, s) {
		return false, "health check query failed"
	}
	return true, ""
}

// Current returns the checker's latest snapshot.
func (c *Checker) Current() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// IsHealthy reports whether the database is healthy or not yet checked.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Status != StatusUnhealthy
}
