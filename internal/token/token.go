package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/apperr"
)

// Type tags a token as access or refresh. Resource endpoints accept only
// access tokens; refresh tokens are good for nothing but minting new access
// tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the JWT payload. Refresh tokens additionally carry a random jti
// in RegisteredClaims.ID.
type Claims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	TokenType Type   `json:"type"`
	jwt.RegisteredClaims
}

// Pair holds a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// RefreshRecord mirrors a refresh token in the persisted ledger. Records are
// revoked on logout, never deleted.
type RefreshRecord struct {
	Token     string
	UserID    string
	Role      string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// RefreshStore is the persisted revocation/expiry ledger for refresh tokens.
// Get returns (nil, nil) for unknown tokens.
type RefreshStore interface {
	Save(ctx context.Context, rec RefreshRecord) error
	Get(ctx context.Context, token string) (*RefreshRecord, error)
	Revoke(ctx context.Context, token string) error
}

// Service issues and validates JWT pairs. Decode is pure and safe to call
// concurrently; Refresh and Revoke go through the store.
type Service struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	timeout    time.Duration
	now        func() time.Time
}

// NewService builds a token service. algorithm must name an HMAC variant
// (HS256, HS384 or HS512).
func NewService(secret, algorithm string, accessTTL, refreshTTL, storeTimeout time.Duration, store RefreshStore) (*Service, error) {
	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm %q", algorithm)
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		timeout:    storeTimeout,
		now:        time.Now,
	}, nil
}

// Issue signs a fresh access/refresh pair. It does not persist anything; the
// caller saves the refresh side of the pair via the store.
func (s *Service) Issue(userID, role string) (Pair, error) {
	now := s.now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	accessToken, err := s.sign(userID, role, TypeAccess, now, accessExp, "")
	if err != nil {
		return Pair{}, err
	}

	jti, err := newJTI()
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := s.sign(userID, role, TypeRefresh, now, refreshExp, jti)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Decode verifies signature, signing method, expiry and token type. Every
// failure mode collapses to apperr.ErrInvalidToken; malformed input never
// panics.
func (s *Service) Decode(tokenStr string, expected Type) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != s.method {
			return nil, apperr.ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Claims{}, apperr.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return Claims{}, apperr.ErrInvalidToken
	}
	if claims.TokenType != expected {
		return Claims{}, apperr.ErrInvalidToken
	}
	return *claims, nil
}

// Refresh exchanges a valid, non-revoked refresh token for a new access
// token. The refresh token itself is reused as-is: tokens are not rotated on
// use, which widens the replay window if one leaks but keeps the client flow
// stateless. Revocation via logout is the mitigation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.Decode(refreshToken, TypeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.Get(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, apperr.ErrUnavailable
	}
	if rec == nil || rec.IsRevoked || !rec.ExpiresAt.After(s.now()) {
		return "", time.Time{}, apperr.ErrInvalidToken
	}

	now := s.now()
	exp := now.Add(s.accessTTL)
	accessToken, err := s.sign(claims.UserID, claims.Role, TypeAccess, now, exp, "")
	if err != nil {
		return "", time.Time{}, err
	}
	return accessToken, exp, nil
}

// Revoke marks the persisted record revoked. Revoking twice, or revoking a
// token that was never saved, is a no-op success.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Revoke(ctx, refreshToken); err != nil {
		return apperr.ErrUnavailable
	}
	return nil
}

// RecordFor builds the ledger entry for the refresh side of a pair.
func (s *Service) RecordFor(pair Pair, userID, role string) RefreshRecord {
	return RefreshRecord{
		Token:     pair.RefreshToken,
		UserID:    userID,
		Role:      role,
		ExpiresAt: pair.RefreshExp,
		CreatedAt: s.now(),
	}
}

func (s *Service) sign(userID, role string, typ Type, now, exp time.Time, jti string) (string, error) {
	claims := Claims{
		UserID:    userID,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// newJTI returns 32 bytes of entropy, URL-safe encoded.
func newJTI() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
