package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func newMockSQLAdapter(t *testing.T, cfg domain.SourceConfig) (*sqlAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	a := &sqlAdapter{base: newBase(cfg, Deps{})}
	a.db = sqlx.NewDb(db, "postgres")
	return a, mock
}

func TestSQLAdapterFetchScansFirstColumnOfFirstRow(t *testing.T) {
	cfg := domain.SourceConfig{
		SourceID: "s1", Kind: domain.SourceSQL, Query: "SELECT price FROM quotes LIMIT 1",
		Timeout: time.Second, Retry: domain.DefaultSourceRetryConfig(),
	}
	a, mock := newMockSQLAdapter(t, cfg)

	rows := sqlmock.NewRows([]string{"price"}).AddRow(101.5)
	mock.ExpectQuery("SELECT price FROM quotes LIMIT 1").WillReturnRows(rows)

	dp, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101.5, dp.Numeric)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapterFetchErrorsOnEmptyResult(t *testing.T) {
	cfg := domain.SourceConfig{
		SourceID: "s1", Kind: domain.SourceSQL, Query: "SELECT price FROM quotes",
		Timeout: time.Second, Retry: domain.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1},
	}
	a, mock := newMockSQLAdapter(t, cfg)

	rows := sqlmock.NewRows([]string{"price"})
	mock.ExpectQuery("SELECT price FROM quotes").WillReturnRows(rows)

	_, err := a.Fetch(context.Background())
	assert.Error(t, err)
}

func TestSQLAdapterFetchErrorsWhenNotConnected(t *testing.T) {
	cfg := domain.SourceConfig{SourceID: "s1", Kind: domain.SourceSQL, Query: "SELECT 1"}
	a := &sqlAdapter{base: newBase(cfg, Deps{})}

	_, err := a.Fetch(context.Background())
	assert.Error(t, err)
}

func TestSQLAdapterFetchRetriesOnQueryError(t *testing.T) {
	cfg := domain.SourceConfig{
		SourceID: "s1", Kind: domain.SourceSQL, Query: "SELECT price FROM quotes",
		Timeout: time.Second,
		Retry:   domain.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 1},
	}
	a, mock := newMockSQLAdapter(t, cfg)

	mock.ExpectQuery("SELECT price FROM quotes").WillReturnError(assertSQLErr("connection reset"))
	mock.ExpectQuery("SELECT price FROM quotes").WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(9.0))

	dp, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.0, dp.Numeric)
}

type assertSQLErr string

func (e assertSQLErr) Error() string { return string(e) }
