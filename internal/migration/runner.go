// Package migration applies schema migrations transactionally and maintains
// the persisted history table.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dbnexus/dbnexus/internal/config"
	"github.com/dbnexus/dbnexus/internal/schema"
)

// HistoryTable is the name of the persisted migration history table.
const HistoryTable = "dbnexus_migrations"

// Record is one row of the history table.
type Record struct {
	Version     uint32
	Description string
	AppliedAt   time.Time
	FilePath    string
}

// History is the ordered set of applied migrations.
type History struct {
	Applied []Record
}

// Add inserts a record, keeping the list sorted by version.
func (h *History) Add(r Record) {
	h.Applied = append(h.Applied, r)
	sort.Slice(h.Applied, func(i, j int) bool {
		return h.Applied[i].Version < h.Applied[j].Version
	})
}

// IsApplied reports whether a version has been applied.
func (h *History) IsApplied(version uint32) bool {
	for _, r := range h.Applied {
		if r.Version == version {
			return true
		}
	}
	return false
}

// LatestVersion returns the highest applied version, or 0 when none.
func (h *History) LatestVersion() uint32 {
	var latest uint32
	for _, r := range h.Applied {
		if r.Version > latest {
			latest = r.Version
		}
	}
	return latest
}

// Pending filters the given migrations down to the ones not yet applied,
// preserving input order.
func (h *History) Pending(all []schema.Migration) []schema.Migration {
	var pending []schema.Migration
	for _, m := range all {
		if !h.IsApplied(m.Version) {
			pending = append(pending, m)
		}
	}
	return pending
}

// Runner applies migrations against one database.
type Runner struct {
	db        *sql.DB
	dbType    config.DatabaseType
	generator *schema.Generator
	history   History

	// onApplied, when set, observes each successfully applied migration.
	onApplied func()
}

// NewRunner creates a runner for the database handle.
func NewRunner(db *sql.DB, dt config.DatabaseType) *Runner {
	return &Runner{
		db:        db,
		dbType:    dt,
		generator: schema.NewGenerator(dt),
	}
}

// SetOnApplied registers a hook fired after each applied migration, used for
// metrics.
func (r *Runner) SetOnApplied(fn func()) {
	r.onApplied = fn
}

// Generator returns the runner's SQL generator.
func (r *Runner) Generator() *schema.Generator {
	return r.generator
}

// History returns the last loaded history snapshot.
func (r *Runner) History() *History {
	return &r.history
}

// EnsureHistoryTable creates the history table if it does not exist.
func (r *Runner) EnsureHistoryTable(ctx context.Context) error {
	var stmt string
	switch r.dbType {
	case config.Postgres:
		stmt = `CREATE TABLE IF NOT EXISTS ` + HistoryTable + ` (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    file_path TEXT
);`
	case config.MySQL:
		stmt = `CREATE TABLE IF NOT EXISTS ` + HistoryTable + ` (
    version INT PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    file_path TEXT
);`
	default:
		stmt = `CREATE TABLE IF NOT EXISTS ` + HistoryTable + ` (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now')),
    file_path TEXT
);`
	}

	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating migration history table: %w", err)
	}
	return nil
}

// LoadHistory reads the history table into memory, creating it first if
// needed.
func (r *Runner) LoadHistory(ctx context.Context) error {
	if err := r.EnsureHistoryTable(ctx); err != nil {
		return err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT version, description, applied_at, file_path FROM "+HistoryTable+" ORDER BY version")
	if err != nil {
		return fmt.Errorf("reading migration history: %w", err)
	}
	defer rows.Close()

	r.history = History{}
	for rows.Next() {
		var (
			rec        Record
			appliedRaw any
			filePath   sql.NullString
		)
		if err := rows.Scan(&rec.Version, &rec.Description, &appliedRaw, &filePath); err != nil {
			return fmt.Errorf("scanning migration history row: %w", err)
		}
		rec.AppliedAt = parseAppliedAt(appliedRaw)
		rec.FilePath = filePath.String
		r.history.Applied = append(r.history.Applied, rec)
	}
	return rows.Err()
}

// parseAppliedAt tolerates both native timestamp columns and the text form
// SQLite stores.
func parseAppliedAt(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case []byte:
		return parseAppliedAt(string(t))
	}
	return time.Time{}
}

// IsApplied reports whether the version is recorded in the loaded history.
func (r *Runner) IsApplied(version uint32) bool {
	return r.history.IsApplied(version)
}

// Pending returns the not-yet-applied subset of all, in input order.
func (r *Runner) Pending(ctx context.Context, all []schema.Migration) ([]schema.Migration, error) {
	if err := r.LoadHistory(ctx); err != nil {
		return nil, err
	}
	return r.history.Pending(all), nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Apply renders and executes one migration inside a transaction and records
// it in the history table. On any error the transaction rolls back and the
// database shows no effect of the migration.
func (r *Runner) Apply(ctx context.Context, m schema.Migration) error {
	rendered := r.generator.MigrationSQL(m)
	return r.applySQL(ctx, m, rendered, fmt.Sprintf("migration_v%d.sql", m.Version))
}

// ApplyFile executes a parsed migration file's UP section under the same
// transactional protocol as Apply.
func (r *Runner) ApplyFile(ctx context.Context, f File, filePath string) error {
	m := schema.Migration{
		Version:     f.Version,
		Description: f.Description,
		Timestamp:   time.Now().UTC(),
	}
	return r.applySQL(ctx, m, f.Up, filePath)
}

func (r *Runner) applySQL(ctx context.Context, m schema.Migration, rendered, filePath string) error {
	if err := r.EnsureHistoryTable(ctx); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}

	if rendered != "" {
		if _, err := tx.ExecContext(ctx, rendered); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %d: %w", m.Version, err)
		}
	}

	appliedAt := m.Timestamp
	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (version, description, applied_at, file_path) VALUES (%d, '%s', '%s', '%s');",
		HistoryTable,
		m.Version,
		escapeSQLString(m.Description),
		escapeSQLString(appliedAt.Format("2006-01-02 15:04:05")),
		escapeSQLString(filePath),
	)
	if _, err := tx.ExecContext(ctx, insert); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", m.Version, err)
	}

	r.history.Add(Record{
		Version:     m.Version,
		Description: m.Description,
		AppliedAt:   appliedAt,
		FilePath:    filePath,
	})
	if r.onApplied != nil {
		r.onApplied()
	}
	slog.Info("applied migration", "version", m.Version, "description", m.Description)
	return nil
}

// ApplyPending applies every pending migration in order, stopping at the
// first failure. Returns the number applied.
func (r *Runner) ApplyPending(ctx context.Context, all []schema.Migration) (int, error) {
	pending, err := r.Pending(ctx, all)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending {
		if err := r.Apply(ctx, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
