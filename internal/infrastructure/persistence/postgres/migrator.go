package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrMigrationFailed = errors.New("postgres: migration failed")

// migrationLockID is the advisory lock key taken while migrating, so the API
// and the worker never migrate concurrently.
const migrationLockID int64 = 0x7265_6768_7562 // "reghub"

// Migration is one schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations lists the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_accounts", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_reference_data", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_registration", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_courses_and_payments", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// Migrator applies the embedded migrations, recording them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// locked runs fn in one transaction holding the migration advisory lock.
func (m *Migrator) locked(ctx context.Context, fn func(tx pgx.Tx, applied map[int]time.Time) error) error {
	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, applied)
	})
}

func appliedVersions(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	var (
		v  int
		at time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&v, &at}, func() error {
		applied[v] = at
		return nil
	})
	return applied, err
}

// Migrate applies every pending migration. All of them commit together.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		for _, mig := range m.migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return fmt.Errorf("%w: record version %d: %v", ErrMigrationFailed, mig.Version, err)
			}
		}
		return nil
	})
}

// Rollback reverts the newest applied migration. It is a no-op on an empty
// schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		if len(applied) == 0 {
			return nil
		}
		last := slices.Max(slices.Collect(maps.Keys(applied)))

		i := slices.IndexFunc(m.migrations, func(x Migration) bool { return x.Version == last })
		if i < 0 || m.migrations[i].DownSQL == "" {
			return fmt.Errorf("%w: no down migration for version %d", ErrMigrationFailed, last)
		}
		if _, err := tx.Exec(ctx, m.migrations[i].DownSQL); err != nil {
			return fmt.Errorf("%w: rollback version %d: %v", ErrMigrationFailed, last, err)
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last)
		return err
	})
}

// Status reports which migrations are applied.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.locked(ctx, func(_ pgx.Tx, applied map[int]time.Time) error {
		out = slices.Clone(m.migrations)
		for i := range out {
			out[i].AppliedAt, out[i].IsApplied = applied[out[i].Version]
		}
		return nil
	})
	return out, err
}
