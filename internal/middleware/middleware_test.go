package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderflow-be/internal/auth"
	"orderflow-be/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCors(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS("http://localhost:3000")(nextHandler)

	t.Run("OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

type stubParser struct {
	s   session.Session
	err error
}

func (p stubParser) Parse(string) (session.Session, error) {
	return p.s, p.err
}

func TestAuth(t *testing.T) {
	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.From(r.Context())
			assert.Equal(t, session.PersonaGuest, s.Persona)
			assert.Nil(t, s.UserID)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		Auth(stubParser{err: errors.New("must not be called")})(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		Auth(stubParser{err: auth.ErrInvalidToken})(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokens, err := auth.NewTokens("test-secret", time.Hour)
		require.NoError(t, err)
		uid := int64(1)
		tokenString, err := tokens.Issue(session.PersonaStaff, &uid)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.From(r.Context())
			assert.Equal(t, session.PersonaStaff, s.Persona)
			require.NotNil(t, s.UserID)
			assert.Equal(t, int64(1), *s.UserID)
			w.WriteHeader(http.StatusOK)
		})

		Auth(tokens)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, session.PersonaGuest, session.From(r.Context()).Persona)
			w.WriteHeader(http.StatusOK)
		})

		Auth(stubParser{err: errors.New("must not be called")})(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Strict tier on order placement", func(t *testing.T) {
		handler := NewRateLimiter("").Middleware(ok)

		codes := make([]int, 0, burstStrict+1)
		for i := 0; i <= burstStrict; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		for _, c := range codes[:burstStrict] {
			assert.Equal(t, http.StatusOK, c)
		}
		assert.Equal(t, http.StatusTooManyRequests, codes[burstStrict])
	})

	t.Run("Quotas are per caller", func(t *testing.T) {
		handler := NewRateLimiter("").Middleware(ok)
		for i := 0; i < burstStrict; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Tiers", func(t *testing.T) {
		l := NewRateLimiter("svc-key")

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("X-Service-Auth", "svc-key")
		_, _, tier := l.resolveRateTier(req)
		assert.Equal(t, "internal", tier)

		req = httptest.NewRequest(http.MethodGet, "/api/boards/kitchen", nil)
		req = req.WithContext(session.WithSession(req.Context(), session.New(session.PersonaKitchen, nil)))
		_, _, tier = l.resolveRateTier(req)
		assert.Equal(t, "frontend", tier)

		req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		_, _, tier = l.resolveRateTier(req)
		assert.Equal(t, "general", tier)
	})

	t.Run("Sweep drops idle visitors", func(t *testing.T) {
		l := NewRateLimiter("")
		l.getVisitor("ip:1:general", limitGeneral, burstGeneral)
		l.getVisitor("ip:2:general", limitGeneral, burstGeneral)
		l.visitors["ip:1:general"].lastSeen = time.Now().Add(-time.Hour)

		l.sweep(time.Now())
		assert.Len(t, l.visitors, 1)
		assert.Contains(t, l.visitors, "ip:2:general")
	})
}
