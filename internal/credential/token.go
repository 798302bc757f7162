package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Identity is what gets embedded into a token.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Role     string
}

// Claims represents JWT token claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenInfo struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	TokenID       string    `json:"jti"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsExpired     bool      `json:"is_expired"`
	IsBlacklisted bool      `json:"is_blacklisted"`
}

type TokenService struct {
	secret    []byte
	ttl       time.Duration
	blacklist Blacklist
	logger    *slog.Logger
	now       func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now; tests use it to cross expiry deterministically.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(secret string, ttl time.Duration, blacklist Blacklist, logger *slog.Logger, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &TokenService{
		secret:    []byte(secret),
		ttl:       ttl,
		blacklist: blacklist,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for identity and returns it with its expiry.
func (s *TokenService) Issue(identity Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks signature, expiry and revocation. A blacklist that cannot
// be consulted rejects the token.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims, err := s.parse(tokenString, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "blacklist lookup failed", "jti", claims.ID, "error", err)
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke blacklists the token's id until its natural expiry. Expired but
// correctly signed tokens can still be revoked.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) bool {
	claims, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return false
	}

	expiresAt := s.now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.blacklist.Add(ctx, claims.ID, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to blacklist token", "jti", claims.ID, "error", err)
		return false
	}
	s.logger.InfoContext(ctx, "token revoked", "user_id", claims.UserID, "jti", claims.ID)
	return true
}

// PurgeExpiredBlacklist removes entries whose tokens have expired anyway.
func (s *TokenService) PurgeExpiredBlacklist(ctx context.Context) (int, error) {
	return s.blacklist.Purge(ctx, s.now())
}

// RunPurger purges on every tick until ctx is done.
func (s *TokenService) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredBlacklist(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "blacklist purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "blacklist purged", "removed", n)
			}
		}
	}
}

// Info decodes a token for diagnostics without enforcing validity.
func (s *TokenService) Info(ctx context.Context, tokenString string) (*TokenInfo, error) {
	claims, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}

	info := &TokenInfo{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		info.IsExpired = !s.now().Before(info.ExpiresAt)
	}
	if revoked, err := s.blacklist.Contains(ctx, claims.ID); err == nil {
		info.IsBlacklisted = revoked
	}
	return info, nil
}
