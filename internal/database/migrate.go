package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

const migrationsTable = "schema_migrations"

//go:embed migrations/*.up.sql
var migrationFS embed.FS

// Migration is one schema step.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	out := make([]Migration, 0, len(entries))
	for _, path := range entries {
		body, err := migrationFS.ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Name: strings.TrimPrefix(path, "migrations/"),
			SQL:  string(body),
		})
	}
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction. It
// returns the names of the migrations it applied.
func Migrate(ctx context.Context, db *sql.DB, logger observability.Logger) ([]string, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)
	`, migrationsTable)); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return done, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		logger.Info("migration applied", observability.String("name", m.Name))
		done = append(done, m.Name)
	}
	return done, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (name) values ($1)`, migrationsTable), m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
