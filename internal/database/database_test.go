package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/retry"
)

func TestMigrations_Embedded(t *testing.T) {
	t.Parallel()

	ms, err := Migrations()
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "0001_audit_events.up.sql", ms[0].Name)
	assert.Contains(t, ms[0].SQL, "create table if not exists audit_events")
	assert.Equal(t, "0002_permission_rules.up.sql", ms[1].Name)
	assert.Contains(t, ms[1].SQL, "unique (role, method, path_pattern)")
}

func TestMigrate_AppliesPending(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_audit_events.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists permission_rules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_permission_rules.up.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_permission_rules.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackFailedStep(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists audit_events").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), db, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_audit_events.up.sql")
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigure_RetriesPing(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	cfg := DefaultConfig()
	cfg.ConnectRetry = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	require.NoError(t, Configure(context.Background(), db, cfg, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigure_GivesUp(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	cfg := Config{ConnectRetry: retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}}
	err = Configure(context.Background(), db, cfg, nil)
	assert.ErrorContains(t, err, "connection refused")
}

func TestConfig(t *testing.T) {
	t.Parallel()

	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{DSN: "postgres://localhost/avauthz"}.Enabled())
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxOpenConns: -1}.Validate())
	assert.Error(t, Config{ConnMaxLifetime: -time.Second}.Validate())

	_, err := Open(context.Background(), Config{}, nil)
	assert.Error(t, err)
}
