package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/errdefs"
)

// Claims is the JWT payload for session tokens.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service from the auth configuration.
func NewTokenService(cfg config.AuthConfig) *TokenService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(cfg.SigningSecret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token carrying the user id, expiring after the
// configured TTL.
func (s *TokenService) Issue(userID int64) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode validates a token and returns the user id claim. It fails with an
// unauthenticated error on malformed tokens, bad signatures, expiry, and a
// missing user_id claim.
func (s *TokenService) Decode(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, errdefs.Unauthenticated("no token provided")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, errdefs.Unauthenticated("token expired")
		}
		return 0, errdefs.Unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, errdefs.Unauthenticated("invalid token")
	}
	if claims.UserID == 0 {
		return 0, errdefs.Unauthenticated("token missing user_id claim")
	}

	return claims.UserID, nil
}
