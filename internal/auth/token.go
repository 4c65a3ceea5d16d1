package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

var ErrSecretRequired = errors.New("auth_secret_required")

// Claims carries the authenticated principal in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenService(cfg config.Config, c clock.Clock) (*TokenService, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if c == nil {
		c = clock.New()
	}
	ttl := cfg.AuthTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		ttl:    ttl,
		clock:  c,
	}, nil
}

// Issue signs a token for principal. A zero ttl uses the configured lifetime.
func (s *TokenService) Issue(principal domain.PrincipalID, ttl time.Duration) (string, error) {
	principal, err := domain.ParsePrincipal(string(principal))
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(principal),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.secret)
}

// Authenticate verifies a raw token or an "Authorization: Bearer" value and
// returns its principal. Every failure wraps domain.ErrUnauthenticated.
func (s *TokenService) Authenticate(raw string) (domain.PrincipalID, error) {
	tokenString := strings.TrimSpace(raw)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		tokenString = strings.TrimSpace(tokenString[7:])
	}
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token has expired", domain.ErrUnauthenticated)
		}
		return "", fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token claims", domain.ErrUnauthenticated)
	}

	principal, err := domain.ParsePrincipal(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: invalid subject", domain.ErrUnauthenticated)
	}
	return principal, nil
}
