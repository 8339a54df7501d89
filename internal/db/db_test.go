package db

import (
	"errors"
	"testing"

	"orderflow-be/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "localhost",
		DBUser:     "orderflow",
		DBPassword: "secret",
		DBName:     "orders",
		DBPort:     "5432",
	}

	assert.Equal(t,
		"host=localhost user=orderflow password=secret dbname=orders port=5432 sslmode=disable",
		buildDSN(cfg),
	)

	t.Run("URL takes precedence", func(t *testing.T) {
		cfg.DBURL = "postgres://u:p@db:5432/orders?sslmode=disable"
		assert.Equal(t, cfg.DBURL, buildDSN(cfg))
	})
}

func TestNewDatabase_Success(t *testing.T) {
	dsn := "db_success"
	conn, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()
	mock.ExpectPing()

	db, err := newDatabaseWithDriver(&config.Config{DBURL: dsn}, "sqlmock")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 25, db.Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDatabase_PingFailure(t *testing.T) {
	dsn := "db_ping_failure"
	conn, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	db, err := newDatabaseWithDriver(&config.Config{DBURL: dsn}, "sqlmock")

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to ping DB")
}

func TestNewDatabase_InvalidDriver(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{}, "invalid_driver_name")

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to connect to DB")
}
