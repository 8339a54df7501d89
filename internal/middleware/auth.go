package middleware

import (
	"net/http"

	"orderflow-be/internal/auth"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/session"
	"orderflow-be/internal/utils"

	"go.uber.org/zap"
)

// TokenParser turns a bearer token into a session.
type TokenParser interface {
	Parse(token string) (session.Session, error)
}

// Auth attaches the caller's session to the request context. Requests
// without a token continue as guests; a token that fails verification is
// rejected.
func Auth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.Guest()
			if token := auth.ExtractAccessToken(r); token != "" {
				parsed, err := parser.Parse(token)
				if err != nil {
					logger.FromCtx(r.Context()).Debug("rejected access token", zap.Error(err))
					utils.WriteJSONError(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}
				s = parsed
			}

			ctx := session.WithSession(r.Context(), s)
			fields := []zap.Field{zap.String("persona", string(s.Persona))}
			if s.UserID != nil {
				fields = append(fields, zap.Int64("user_id", *s.UserID))
			}
			ctx = logger.WithFields(ctx, fields...)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
