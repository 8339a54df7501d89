package auth

import (
	"errors"
	"fmt"
	"time"

	"orderflow-be/internal/session"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("JWT_SECRET is not set")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	UserID  *int64 `json:"user_id,omitempty"`
	Persona string `json:"persona"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies persona tokens with a shared HMAC secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tokens) Issue(persona session.Persona, userID *int64) (string, error) {
	if !persona.Valid() {
		return "", fmt.Errorf("unknown persona %q", persona)
	}
	now := t.now()
	claims := Claims{
		UserID:  userID,
		Persona: string(persona),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies tokenStr and returns the session it grants.
func (t *Tokens) Parse(tokenStr string) (session.Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return t.secret, nil
		},
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return session.Session{}, ErrInvalidToken
	}

	persona := session.Persona(claims.Persona)
	if !persona.Valid() {
		return session.Session{}, fmt.Errorf("%w: unknown persona %q", ErrInvalidToken, claims.Persona)
	}
	return session.New(persona, claims.UserID), nil
}
