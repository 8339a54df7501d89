package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderflow-be/internal/auth"
	"orderflow-be/internal/config"
	"orderflow-be/internal/session"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AppPort:          "8080",
		AppEnv:           "test",
		AppTimezone:      "UTC",
		JWTSecret:        "test-secret",
		CORSOrigin:       "http://localhost:3000",
		ChangeFeedDriver: driverLocal,
		EventsDriver:     driverNone,
		ReportCache:      driverNone,
	}
}

func newMockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewApp(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), newMockDB(t))
	require.NoError(t, err)
	defer a.Close()

	t.Run("health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "ok")
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	})

	t.Run("guest is forbidden from staff routes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/boards/kitchen", nil))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("admin reads metrics", func(t *testing.T) {
		tokens, err := auth.NewTokens("test-secret", 0)
		require.NoError(t, err)
		token, err := tokens.Issue(session.PersonaAdmin, nil)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "counters")
	})

	t.Run("preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/orders", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestNewApp_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown change feed", func(c *config.Config) { c.ChangeFeedDriver = "kafka" }},
		{"unknown events driver", func(c *config.Config) { c.EventsDriver = "sns" }},
		{"missing jwt secret", func(c *config.Config) { c.JWTSecret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			a, err := newApp(context.Background(), cfg, newMockDB(t))
			assert.Error(t, err)
			assert.Nil(t, a)
		})
	}
}

func setRunEnv(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CHANGEFEED_DRIVER", driverLocal)
}

func stubRun(t *testing.T, db func(*config.Config) (*sql.DB, error), start func(*http.Server) error) {
	origInitDB, origStart := initDBFunc, startServerFunc
	t.Cleanup(func() {
		initDBFunc, startServerFunc = origInitDB, origStart
	})
	initDBFunc, startServerFunc = db, start
}

func TestRun(t *testing.T) {
	setRunEnv(t)

	var addr string
	stubRun(t,
		func(*config.Config) (*sql.DB, error) {
			db, _, err := sqlmock.New()
			return db, err
		},
		func(srv *http.Server) error {
			addr = srv.Addr
			return http.ErrServerClosed
		},
	)

	assert.NoError(t, run())
	assert.Equal(t, ":8080", addr)
}

func TestRun_Errors(t *testing.T) {
	setRunEnv(t)

	t.Run("database unavailable", func(t *testing.T) {
		stubRun(t,
			func(*config.Config) (*sql.DB, error) { return nil, errors.New("connection refused") },
			func(*http.Server) error { return nil },
		)
		assert.EqualError(t, run(), "connection refused")
	})

	t.Run("listen failure", func(t *testing.T) {
		stubRun(t,
			func(*config.Config) (*sql.DB, error) {
				db, _, err := sqlmock.New()
				return db, err
			},
			func(*http.Server) error { return errors.New("address in use") },
		)
		assert.EqualError(t, run(), "address in use")
	})
}
