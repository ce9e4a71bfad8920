package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrCheckViolation  = "23514"
)

const ruleColumns = "id, role, method, path_pattern, access, created_at, updated_at"

var errNoDB = errors.New("database connection unavailable")

// SQLStore stores rules in the permission_rules table.
type SQLStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store on db. The schema is managed by package database.
func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{db: db, opts: newOptions(opts)}
}

// FindByRole implements Store.
func (s *SQLStore) FindByRole(ctx context.Context, role string) ([]PermissionRule, error) {
	if s.db == nil {
		return nil, &StoreError{Op: "find", Role: role, Err: errNoDB}
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+ruleColumns+`
		from permission_rules
		where role = $1
		order by method, path_pattern
	`, role)
	if err != nil {
		return nil, &StoreError{Op: "find", Role: role, Err: err}
	}
	defer rows.Close()

	result := make([]PermissionRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, &StoreError{Op: "find", Role: role, Err: err}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "find", Role: role, Err: err}
	}
	return result, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (PermissionRule, error) {
	if s.db == nil {
		return PermissionRule{}, &StoreError{Op: "get", ID: id, Err: errNoDB}
	}
	row := s.db.QueryRowContext(ctx, `
		select `+ruleColumns+`
		from permission_rules
		where id = $1
	`, id)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return PermissionRule{}, &StoreError{Op: "get", ID: id, Err: err}
	}
	return r, nil
}

// Upsert implements Store. The xmax system column is zero only for a row
// inserted by this statement.
func (s *SQLStore) Upsert(ctx context.Context, rule PermissionRule) (PermissionRule, bool, error) {
	rule = rule.Normalized()
	if err := rule.Validate(); err != nil {
		return PermissionRule{}, false, &StoreError{Op: "upsert", Role: rule.Role, Err: err}
	}
	if s.db == nil {
		return PermissionRule{}, false, &StoreError{Op: "upsert", Role: rule.Role, Err: errNoDB}
	}

	now := s.opts.now().UTC()
	if rule.ID == "" {
		rule.ID = NewRuleID(now)
	}

	var created bool
	row := s.db.QueryRowContext(ctx, `
		insert into permission_rules (`+ruleColumns+`)
		values ($1, $2, $3, $4, $5, $6, $6)
		on conflict (role, method, path_pattern) do update
		set access = excluded.access, updated_at = excluded.updated_at
		returning id, created_at, updated_at, (xmax = 0) as inserted
	`, rule.ID, rule.Role, rule.Method, rule.PathPattern, string(rule.Access), now)
	if err := row.Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt, &created); err != nil {
		return PermissionRule{}, false, &StoreError{Op: "upsert", Role: rule.Role, Err: translatePgError(err)}
	}
	return rule, created, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, id string) (PermissionRule, error) {
	if s.db == nil {
		return PermissionRule{}, &StoreError{Op: "delete", ID: id, Err: errNoDB}
	}
	row := s.db.QueryRowContext(ctx, `
		delete from permission_rules
		where id = $1
		returning `+ruleColumns, id)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return PermissionRule{}, &StoreError{Op: "delete", ID: id, Err: err}
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (PermissionRule, error) {
	var (
		r      PermissionRule
		access string
	)
	if err := sc.Scan(&r.ID, &r.Role, &r.Method, &r.PathPattern, &access, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return PermissionRule{}, err
	}
	r.Access = Access(access)
	return r, nil
}

func translatePgError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	case pgErrCheckViolation:
		return fmt.Errorf("%w: %s", ErrInvalidRule, pgErr.Message)
	default:
		return err
	}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
