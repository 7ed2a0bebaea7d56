package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/official-relay/internal/domain"
)

const issuer = "official-relay"

// TokenManager handles issuing and validating service bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager. An empty secret yields nil, which
// leaves the proxy API unauthenticated.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for a backend caller.
func (tm *TokenManager) GenerateToken(subject string) (string, domain.ServiceToken, error) {
	if strings.TrimSpace(subject) == "" {
		return "", domain.ServiceToken{}, errors.New("subject required")
	}
	issuedAt := tm.now()
	meta := domain.ServiceToken{
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(tm.ttl),
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(meta.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.ServiceToken{}, err
	}
	return tokenString, meta, nil
}

// ParseToken validates and returns the token metadata.
func (tm *TokenManager) ParseToken(tokenStr string) (domain.ServiceToken, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return domain.ServiceToken{}, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return domain.ServiceToken{}, errors.New("invalid token claims")
	}
	meta := domain.ServiceToken{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		meta.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		meta.IssuedAt = claims.IssuedAt.Time
	}
	return meta, nil
}
