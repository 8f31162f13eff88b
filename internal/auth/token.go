package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parishdesk/member-system/internal/core/domain"
)

// Token validation failures. Externally all three surface as a single
// unauthenticated response; the distinction exists for logging.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

const tokenTypeRefresh = "refresh"

type sessionClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ,omitempty"`
}

// TokenService is a stateless issuer and validator of signed session tokens.
// The signing secret is fixed at construction and never read from ambient
// state; there is no revocation list, so invalidation is purely time-based.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService builds a token service signing with HS256. Non-positive
// lifetimes fall back to 24h for access and 30 days for refresh tokens.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source used for both issuance and validation.
// Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue returns a signed access token carrying the subject's identity and
// role at issuance time. The role claim goes stale if the role changes
// before expiry; callers needing the current role re-read the user record.
func (s *TokenService) Issue(subjectID, role string) (string, error) {
	now := s.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh returns a signed refresh token. It carries no role claim; the
// current role is read from the store when the token is redeemed.
func (s *TokenService) IssueRefresh(subjectID string) (string, error) {
	now := s.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
		TokenType: tokenTypeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry of an access token and returns its
// claims. A refresh token presented here is rejected as malformed.
func (s *TokenService) Validate(token string) (*domain.Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == tokenTypeRefresh {
		return nil, ErrTokenMalformed
	}
	return &domain.Claims{SubjectID: claims.Subject, Role: claims.Role}, nil
}

// ValidateRefresh checks a refresh token and returns the subject identity.
func (s *TokenService) ValidateRefresh(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

// parse verifies signature and expiry. Strict base64 decoding, otherwise a
// flipped trailing bit in a segment can decode to the original claims.
func (s *TokenService) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithStrictDecoding())

	switch {
	case err == nil && parsed.Valid:
		if claims.Subject == "" {
			return nil, ErrTokenMalformed
		}
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignatureInvalid
	default:
		return nil, ErrTokenMalformed
	}
}
