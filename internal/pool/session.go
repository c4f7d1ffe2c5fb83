package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbnexus/dbnexus/internal/audit"
	"github.com/dbnexus/dbnexus/internal/permission"
)

// masterWindow is how long after a write a session should keep reading from
// the primary.
const masterWindow = 5 * time.Second

// Session is a scoped holder of one borrowed connection plus a role identity
// and transaction state. Every gated statement goes through the pool's
// permission cache. Sessions are not safe for concurrent use.
type Session struct {
	pc   *pooledConn
	pool *Pool
	role string

	tx        *sql.Tx
	lastWrite time.Time
	closed    bool
}

func newSession(pc *pooledConn, p *Pool, role string) *Session {
	return &Session{pc: pc, pool: p, role: role}
}

// Role returns the session's role identity.
func (s *Session) Role() string {
	return s.role
}

// CheckPermission consults the shared policy cache for the role.
func (s *Session) CheckPermission(table string, op permission.Operation) error {
	if s.pool.permissions.Check(s.role, table, op) {
		return nil
	}
	if s.pool.metrics != nil {
		s.pool.metrics.PermissionDenied(s.role, table, op.String())
	}
	return fmt.Errorf("%w: role %q does not have %s permission on table %q",
		ErrPermissionDenied, s.role, op.String(), table)
}

// IsInTransaction reports whether a transaction is open.
func (s *Session) IsInTransaction() bool {
	return s.tx != nil
}

// Begin opens a transaction. At most one may be open per session.
func (s *Session) Begin(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return ErrTransactionInProgress
	}
	tx, err := s.pc.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return ErrNoActiveTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return ErrNoActiveTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// Transaction begins a transaction, runs fn, commits on nil and rolls back on
// error. The error from fn is returned verbatim.
func (s *Session) Transaction(ctx context.Context, fn func(*Session) error) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			slog.Warn("rollback after failed transaction closure", "err", rbErr)
		}
		return err
	}
	return s.Commit()
}

// executor routes statements through the open transaction when there is one.
func (s *Session) executor() interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.pc.conn
}

// ExecuteRaw runs a statement with no permission check.
func (s *Session) ExecuteRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	res, err := s.executor().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return res, nil
}

// QueryRaw runs a query with no permission check.
func (s *Session) QueryRaw(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	rows, err := s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Execute is the gated entry point. The statement's table and operation are
// extracted from its leading DML shape; statements that cannot be parsed are
// denied. Callers with statements outside the four shapes should use
// ExecuteWithOperation.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	table, op, ok := ParseSQLOperation(query)
	if !ok {
		return nil, fmt.Errorf("%w: unable to parse SQL statement for permission check", ErrPermissionDenied)
	}
	return s.ExecuteWithOperation(ctx, query, table, op, args...)
}

// ExecuteWithOperation gates a statement with a caller-provided table and
// operation, skipping SQL parsing.
func (s *Session) ExecuteWithOperation(ctx context.Context, query, table string, op permission.Operation, args ...any) (sql.Result, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := s.CheckPermission(table, op); err != nil {
		s.recordAudit(table, op, audit.ResultDenied)
		return nil, err
	}

	start := time.Now()
	res, err := s.ExecuteRaw(ctx, query, args...)
	if s.pool.metrics != nil {
		s.pool.metrics.QueryDuration(op.String(), time.Since(start), err == nil)
	}
	if err != nil {
		s.recordAudit(table, op, audit.ResultFailure)
		return nil, err
	}

	if op.IsWrite() {
		s.lastWrite = time.Now()
	}
	s.recordAudit(table, op, audit.ResultSuccess)
	return res, nil
}

func (s *Session) recordAudit(table string, op permission.Operation, result audit.Result) {
	if s.pool.audit == nil {
		return
	}
	s.pool.audit.Record(audit.Event{
		Timestamp: time.Now().UTC(),
		Operation: op.String(),
		Table:     table,
		Role:      s.role,
		Result:    result,
	})
}

// ShouldUseMaster reports whether reads should go to the primary because a
// write happened within the last five seconds.
func (s *Session) ShouldUseMaster() bool {
	if s.lastWrite.IsZero() {
		return false
	}
	return time.Since(s.lastWrite) < masterWindow
}

// Close releases the session's connection back to the pool. An open
// transaction is rolled back with a warning first. Close is idempotent; the
// release protocol runs exactly once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.tx != nil {
		slog.Warn("session closed with open transaction, rolling back", "role", s.role)
		if err := s.tx.Rollback(); err != nil {
			slog.Warn("rollback on session close failed", "err", err)
		}
		s.tx = nil
	}

	s.pool.release(s.pc)
	return nil
}
