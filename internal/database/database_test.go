package database

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/migrations"
)

func TestOpen_EmptyURL(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestWaitReady_RetriesUntilPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, waitReady(context.Background(), db, 5*time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitReady_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 50; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}

	err = waitReady(context.Background(), db, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
}

func TestConfigure(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configure(db, config.DatabaseConfig{MaxOpenConns: 7, MaxIdleConns: 2, ConnMaxLifetimeMinutes: 1})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	last := v
	for {
		next, err := src.Next(last)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		last = next
	}
	assert.Equal(t, uint(migrations.Version), last)

	// Every up migration has a matching down.
	for v := uint(1); v <= last; v++ {
		_, _, err := src.ReadDown(v)
		assert.NoError(t, err, "missing down migration %d", v)
	}
}
