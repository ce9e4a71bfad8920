package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{
	"id", "event_type", "severity", "subject", "role", "action", "resource", "result", "details", "created_at",
}

func testRow(id string, ts time.Time) Row {
	return Row{
		ID:        id,
		EventType: EventAccessDenied,
		Severity:  SeverityHigh,
		Subject:   "alice",
		Role:      "viewer",
		Action:    "DELETE",
		Resource:  "/api/faults/1",
		Result:    "denied",
		Details:   []byte(`{"message":"denied"}`),
		CreatedAt: ts,
	}
}

func newMock(t *testing.T) (*SQLSink, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLSink(db), mock
}

func TestSQLSink_Insert(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into audit_events \(id, event_type, .+\) values \(\$1, .+\$10\), \(\$11, .+\$20\) on conflict \(id\) do nothing`).
		WithArgs(
			"a", "AccessDenied", 3, "alice", "viewer", "DELETE", "/api/faults/1", "denied", []byte(`{"message":"denied"}`), ts,
			"b", "AccessDenied", 3, "alice", "viewer", "DELETE", "/api/faults/1", "denied", []byte(`{"message":"denied"}`), ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, sink.Insert(context.Background(), []Row{testRow("a", ts), testRow("b", ts)}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_InsertChunks(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	rows := make([]Row, maxRowsPerStatement+1)
	for i := range rows {
		rows[i] = testRow(fmt.Sprintf("id-%d", i), time.Now())
	}

	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_events").WillReturnResult(sqlmock.NewResult(0, maxRowsPerStatement))
	mock.ExpectExec("insert into audit_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Insert(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_InsertRollsBack(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_events").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := sink.Insert(context.Background(), []Row{testRow("a", time.Now())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_InsertEmpty(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	require.NoError(t, sink.Insert(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, NewSQLSink(nil).Insert(context.Background(), []Row{testRow("a", time.Now())}))
}

func TestSQLSink_Query(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)select id, event_type.+from audit_events where event_type in \(\$1\) and subject = \$2\s+order by created_at desc, id desc\s+limit \$3 offset \$4`).
		WithArgs("AccessDenied", "alice", 50, 10).
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow("b", "AccessDenied", 3, "alice", "viewer", "DELETE", "/api/faults/1", "denied", []byte(`{"message":"second"}`), ts.Add(time.Second)).
			AddRow("a", "AccessDenied", 3, "alice", "viewer", "DELETE", "/api/faults/1", "denied", []byte(`{"message":"first"}`), ts))

	rows, err := sink.Query(context.Background(), Filter{
		Types:   []EventType{EventAccessDenied},
		Subject: "alice",
		Limit:   50,
		Offset:  10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, SeverityHigh, rows[0].Severity)
	assert.Equal(t, "second", rows[0].Event().Message)
	assert.Equal(t, "/api/faults/1", rows[1].Resource)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_QueryError(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	mock.ExpectQuery(`(?s)select .+from audit_events`).WillReturnError(errors.New("relation does not exist"))

	_, err := sink.Query(context.Background(), Filter{})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Count(t *testing.T) {
	t.Parallel()

	sink, mock := newMock(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`select count\(\*\) from audit_events where severity >= \$1 and role = \$2 and created_at >= \$3 and created_at < \$4`).
		WithArgs(2, "developer", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := sink.Count(context.Background(), Filter{MinSeverity: SeverityMedium, Role: "developer", From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	t.Parallel()

	where, args := buildWhere(Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildWhere(Filter{
		Types:      []EventType{EventAccessGranted, EventAccessDenied},
		Severities: []Severity{SeverityHigh, SeverityCritical},
	})
	assert.Equal(t, " where event_type in ($1, $2) and severity in ($3, $4)", where)
	assert.Equal(t, []any{"AccessGranted", "AccessDenied", 3, 4}, args)
}
