// Package pool owns a bounded set of live database connections and lends
// them out one at a time as role-scoped sessions.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/dbnexus/dbnexus/internal/audit"
	"github.com/dbnexus/dbnexus/internal/config"
	"github.com/dbnexus/dbnexus/internal/metrics"
	"github.com/dbnexus/dbnexus/internal/permission"
)

const (
	healthCheckTimeout      = 5 * time.Second
	maintenanceProbeTimeout = 2 * time.Second
	reapInterval            = 30 * time.Second
)

// Status is a snapshot of the pool's counters.
type Status struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Idle     int `json:"idle"`
	Waiting  int `json:"waiting"`
	MaxConns int `json:"max_connections"`
	MinConns int `json:"min_connections"`
}

// Pool manages connections for a single database.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond // signalled once per released connection

	cfg    config.DbConfig
	dbType config.DatabaseType
	db     *sql.DB

	idle    []*pooledConn
	active  int
	total   int
	waiting int

	permissions *permission.Cache
	permConfig  *permission.Config

	metrics *metrics.Collector
	audit   *audit.Logger

	closed bool
	stopCh chan struct{}
}

// New builds a pool from a raw configuration: the config is corrected, a
// probe connection capability-adjusts it, the minimum connections are created
// concurrently, and the permission cache is preloaded.
func New(ctx context.Context, cfg config.DbConfig) (*Pool, error) {
	cfg = config.Correct(cfg)
	dbType := cfg.DatabaseType()

	db, err := sql.Open(dbType.DriverName(), config.DSN(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The inner database/sql pool is disabled: this pool is the only
	// pooling layer, so a discarded connection really closes.
	db.SetMaxIdleConns(0)

	probeCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeoutDuration())
	err = db.PingContext(probeCtx)
	cancel()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("probing database: %w", err)
	}

	cfg = config.CorrectWithCapability(ctx, cfg, db, dbType)
	db.SetMaxOpenConns(cfg.MaxConnections)

	p := &Pool{
		cfg:         cfg,
		dbType:      dbType,
		db:          db,
		permissions: permission.NewCache(permission.DefaultCacheCapacity),
		stopCh:      make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.warmUp(ctx)
	p.loadPermissions()

	go p.reapLoop()

	slog.Info("connection pool initialized",
		"db_type", dbType.String(), "min", cfg.MinConnections, "max", cfg.MaxConnections)
	return p, nil
}

// warmUp creates the minimum connections concurrently. Individual failures
// are logged and skipped; the pool may start below min_connections.
func (p *Pool) warmUp(ctx context.Context) {
	var g errgroup.Group
	conns := make([]*sql.Conn, p.cfg.MinConnections)

	for i := range conns {
		g.Go(func() error {
			conn, err := p.db.Conn(ctx)
			if err != nil {
				slog.Warn("warm-up connection failed", "err", err)
				return nil
			}
			conns[i] = conn
			return nil
		})
	}
	g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		p.idle = append(p.idle, newPooledConn(conn))
		p.total++
	}
}

// loadPermissions reads the policy document named by the configuration and
// preloads every role into the cache. Without a document all gated checks
// fail closed.
func (p *Pool) loadPermissions() {
	if p.cfg.PermissionsPath == "" {
		slog.Info("no permission config, gated statements will be denied")
		return
	}

	data, err := os.ReadFile(p.cfg.PermissionsPath)
	if err != nil {
		slog.Warn("failed to read permission config", "path", p.cfg.PermissionsPath, "err", err)
		return
	}
	permCfg, err := permission.FromYAML(data)
	if err != nil {
		slog.Warn("failed to parse permission config", "path", p.cfg.PermissionsPath, "err", err)
		return
	}
	if errs := permCfg.Validate(); len(errs) > 0 {
		slog.Warn("invalid permission config", "path", p.cfg.PermissionsPath, "err", errs[0])
		return
	}

	p.permConfig = permCfg
	p.permissions.Preload(permCfg)
}

// SetMetrics wires a metrics collector into the pool and its sessions.
func (p *Pool) SetMetrics(m *metrics.Collector) {
	p.metrics = m
}

// SetAuditLogger wires an audit logger into the pool's sessions.
func (p *Pool) SetAuditLogger(l *audit.Logger) {
	p.audit = l
}

// Config returns the corrected configuration the pool runs with.
func (p *Pool) Config() config.DbConfig {
	return p.cfg
}

// DatabaseType returns the pool's database type.
func (p *Pool) DatabaseType() config.DatabaseType {
	return p.dbType
}

// Permissions exposes the shared policy cache.
func (p *Pool) Permissions() *permission.Cache {
	return p.permissions
}

// PermissionConfig returns the loaded policy document, or nil.
func (p *Pool) PermissionConfig() *permission.Config {
	return p.permConfig
}

// DB exposes the underlying handle for collaborators that manage their own
// statements, such as the migration runner.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// GetSession borrows a connection and wraps it with the given role identity.
// When the pool is exhausted the call waits up to the configured acquire
// timeout (or the context deadline, whichever is earlier).
func (p *Pool) GetSession(ctx context.Context, role string) (*Session, error) {
	start := time.Now()
	pc, err := p.acquire(ctx)
	if p.metrics != nil {
		p.metrics.AcquireDuration(time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}
	return newSession(pc, p, role), nil
}

func (p *Pool) acquire(ctx context.Context) (*pooledConn, error) {
	deadlineAt := time.Now().Add(p.cfg.AcquireTimeoutDuration())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadlineAt) {
		deadlineAt = ctxDeadline
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			pc := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.active++
			p.mu.Unlock()
			pc.markUsed()
			return pc, nil
		}

		if p.total < p.cfg.MaxConnections {
			p.total++
			p.mu.Unlock()

			conn, err := p.db.Conn(ctx)

			p.mu.Lock()
			if err != nil {
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("creating connection: %w", err)
			}
			p.active++
			p.mu.Unlock()
			return newPooledConn(conn), nil
		}

		// Pool exhausted: wait for a release with a deadline. The timer
		// broadcast is the wakeup path for timed-out waiters; releases
		// use Signal so each one unblocks at most one waiter.
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeoutDuration())
		}

		p.waiting++
		timer := time.AfterFunc(remaining, func() {
			p.cond.Broadcast()
		})
		p.cond.Wait() // releases mu, waits, reacquires mu
		timer.Stop()
		p.waiting--

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if time.Now().After(deadlineAt) {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeoutDuration())
		}
	}
}

// release returns a connection from a closing session. The active counter
// decrements saturatingly, the connection goes back on the idle list if there
// is room, and exactly one waiter is woken.
func (p *Pool) release(pc *pooledConn) {
	p.mu.Lock()

	if p.active > 0 {
		p.active--
	} else {
		slog.Warn("active count already 0, skipping decrement")
	}

	var toClose *pooledConn
	if p.closed || len(p.idle) >= p.cfg.MaxConnections {
		toClose = pc
		p.total--
	} else {
		pc.markUsed()
		p.idle = append(p.idle, pc)
	}

	p.cond.Signal()
	p.mu.Unlock()

	if toClose != nil {
		toClose.close()
	}
}

// CheckHealth probes one borrowed connection with SELECT 1 under a 5-second
// deadline.
func (p *Pool) CheckHealth(ctx context.Context, s *Session) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	_, err := s.ExecuteRaw(ctx, "SELECT 1")
	if err != nil {
		slog.Warn("connection health check failed", "err", err)
		return false
	}
	return true
}

// probe runs SELECT 1 on an idle connection with the short maintenance
// deadline.
func (p *Pool) probe(ctx context.Context, pc *pooledConn) bool {
	ctx, cancel := context.WithTimeout(ctx, maintenanceProbeTimeout)
	defer cancel()
	_, err := pc.conn.ExecContext(ctx, "SELECT 1")
	return err == nil
}

// CleanInvalid probes every idle connection and discards the ones that fail,
// returning the number removed. Connections under probe are taken off the
// idle list so acquires are not blocked behind I/O.
func (p *Pool) CleanInvalid(ctx context.Context) int {
	p.mu.Lock()
	checking := p.idle
	p.idle = nil
	p.mu.Unlock()

	var valid []*pooledConn
	removed := 0
	for _, pc := range checking {
		if p.probe(ctx, pc) {
			valid = append(valid, pc)
		} else {
			pc.close()
			removed++
		}
	}

	p.mu.Lock()
	p.idle = append(p.idle, valid...)
	p.total -= removed
	for range valid {
		p.cond.Signal()
	}
	p.mu.Unlock()

	if removed > 0 {
		slog.Info("cleaned invalid connections", "removed", removed, "remaining_idle", len(valid))
	}
	return removed
}

// ValidateAndRecreate cleans invalid idle connections and re-creates
// connections up to the configured minimum. Returns the number recreated.
func (p *Pool) ValidateAndRecreate(ctx context.Context) int {
	p.CleanInvalid(ctx)

	recreated := 0
	for {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MinConnections {
			p.mu.Unlock()
			break
		}
		p.total++
		p.mu.Unlock()

		conn, err := p.db.Conn(ctx)

		p.mu.Lock()
		if err != nil {
			p.total--
			p.mu.Unlock()
			slog.Warn("failed to recreate connection", "err", err)
			break
		}
		p.idle = append(p.idle, newPooledConn(conn))
		p.cond.Signal()
		p.mu.Unlock()
		recreated++
	}

	if recreated > 0 {
		slog.Info("recreated connections to maintain minimum pool size", "count", recreated)
	}
	return recreated
}

// Status returns current pool counters.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Total:    p.total,
		Active:   p.active,
		Idle:     len(p.idle),
		Waiting:  p.waiting,
		MaxConns: p.cfg.MaxConnections,
		MinConns: p.cfg.MinConnections,
	}
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

// reapIdle discards idle connections past the idle timeout, keeping at least
// min_connections. The oldest entries sit at the front of the slice.
func (p *Pool) reapIdle() {
	p.mu.Lock()

	var toClose []*pooledConn
	if excess := len(p.idle) - p.cfg.MinConnections; excess > 0 {
		kept := make([]*pooledConn, 0, len(p.idle))
		for i, pc := range p.idle {
			if i < excess && pc.isIdleExpired(p.cfg.IdleTimeoutDuration()) {
				toClose = append(toClose, pc)
				p.total--
			} else {
				kept = append(kept, pc)
			}
		}
		p.idle = kept
	}
	p.mu.Unlock()

	for _, pc := range toClose {
		pc.close()
	}
	if len(toClose) > 0 {
		slog.Info("reaped idle connections", "count", len(toClose))
	}
}

// Close shuts down the pool, closing idle connections and waking every
// waiter. Active sessions close their connections on release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)

	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, pc := range idle {
		pc.close()
	}
	p.db.Close()
}
