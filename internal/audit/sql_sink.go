package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxRowsPerStatement keeps a multi-row insert well below the PostgreSQL
// limit of 65535 bind parameters.
const maxRowsPerStatement = 500

const insertColumns = "id, event_type, severity, subject, role, action, resource, result, details, created_at"

// SQLSink stores rows in the audit_events table.
type SQLSink struct {
	db *sql.DB
}

var _ Sink = (*SQLSink)(nil)

// NewSQLSink creates a sink on db. The schema is managed by package database.
func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

// Insert writes rows in one transaction, using multi-row inserts. Rows whose
// id already exists are skipped so that a retried batch is not duplicated.
func (s *SQLSink) Insert(ctx context.Context, rows []Row) (err error) {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(rows); start += maxRowsPerStatement {
		chunk := rows[start:min(start+maxRowsPerStatement, len(rows))]
		query, args := buildInsert(chunk)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert audit events: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit insert: %w", err)
	}
	return nil
}

func buildInsert(rows []Row) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(rows)*10)

	sb.WriteString("insert into audit_events (" + insertColumns + ") values ")
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)

		details := r.Details
		if len(details) == 0 {
			details = []byte("{}")
		}
		args = append(args,
			r.ID, string(r.EventType), int(r.Severity),
			r.Subject, r.Role, r.Action, r.Resource, r.Result,
			[]byte(details), r.CreatedAt.UTC(),
		)
	}
	sb.WriteString(" on conflict (id) do nothing")
	return sb.String(), args
}

// Query returns matching rows, newest first.
func (s *SQLSink) Query(ctx context.Context, f Filter) ([]Row, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	f = f.Normalize()

	where, args := buildWhere(f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`
		select %s
		from audit_events%s
		order by created_at desc, id desc
		limit $%d offset $%d
	`, insertColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	result := make([]Row, 0, f.Limit)
	for rows.Next() {
		var (
			r        Row
			typ      string
			severity int
			raw      []byte
		)
		if err := rows.Scan(&r.ID, &typ, &severity, &r.Subject, &r.Role, &r.Action,
			&r.Resource, &r.Result, &raw, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.EventType = EventType(typ)
		r.Severity = Severity(severity)
		r.Details = append([]byte(nil), raw...)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of matching rows.
func (s *SQLSink) Count(ctx context.Context, f Filter) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	where, args := buildWhere(f)

	var n int
	if err := s.db.QueryRowContext(ctx, "select count(*) from audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = arg(string(t))
		}
		conds = append(conds, "event_type in ("+strings.Join(ph, ", ")+")")
	}
	if f.MinSeverity != 0 {
		conds = append(conds, "severity >= "+arg(int(f.MinSeverity)))
	}
	if len(f.Severities) > 0 {
		ph := make([]string, len(f.Severities))
		for i, sev := range f.Severities {
			ph[i] = arg(int(sev))
		}
		conds = append(conds, "severity in ("+strings.Join(ph, ", ")+")")
	}
	if f.Subject != "" {
		conds = append(conds, "subject = "+arg(f.Subject))
	}
	if f.Role != "" {
		conds = append(conds, "role = "+arg(f.Role))
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(f.From.UTC()))
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at < "+arg(f.To.UTC()))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}
