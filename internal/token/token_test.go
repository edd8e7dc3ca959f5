package token

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]RefreshRecord
	fail bool
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]RefreshRecord{}}
}

func (m *memStore) Save(_ context.Context, rec RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.recs[rec.Token] = rec
	return nil
}

func (m *memStore) Get(_ context.Context, tokenStr string) (*RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("connection refused")
	}
	rec, ok := m.recs[tokenStr]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) Revoke(_ context.Context, tokenStr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	if rec, ok := m.recs[tokenStr]; ok {
		rec.IsRevoked = true
		m.recs[tokenStr] = rec
	}
	return nil
}

func newTestService(t *testing.T, store RefreshStore) *Service {
	t.Helper()
	svc, err := NewService("test-secret", "HS256", 15*time.Minute, 7*24*time.Hour, time.Second, store)
	require.NoError(t, err)
	return svc
}

func TestIssueAndDecode(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil)

	pair, err := svc.Issue("alice", "student")
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := svc.Decode(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, "alice", access.UserID)
	require.Equal(t, "student", access.Role)
	require.Equal(t, TypeAccess, access.TokenType)

	refresh, err := svc.Decode(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	require.Equal(t, TypeRefresh, refresh.TokenType)

	// Refresh tokens carry 32 bytes of entropy in the jti.
	jti, err := base64.RawURLEncoding.DecodeString(refresh.ID)
	require.NoError(t, err)
	require.Len(t, jti, 32)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil)

	pair, err := svc.Issue("alice", "student")
	require.NoError(t, err)

	_, err = svc.Decode(pair.RefreshToken, TypeAccess)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
	_, err = svc.Decode(pair.AccessToken, TypeRefresh)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestDecodeRejectsExpired(t *testing.T) {
	t.Parallel()
	svc, err := NewService("test-secret", "HS256", -time.Minute, 7*24*time.Hour, time.Second, nil)
	require.NoError(t, err)

	pair, err := svc.Issue("alice", "student")
	require.NoError(t, err)

	_, err = svc.Decode(pair.AccessToken, TypeAccess)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestDecodeRejectsForeignSignatures(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil)
	other, err := NewService("other-secret", "HS256", 15*time.Minute, 7*24*time.Hour, time.Second, nil)
	require.NoError(t, err)

	pair, err := other.Issue("alice", "student")
	require.NoError(t, err)

	_, err = svc.Decode(pair.AccessToken, TypeAccess)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestDecodeRejectsAlgorithmMismatch(t *testing.T) {
	t.Parallel()
	hs512, err := NewService("test-secret", "HS512", 15*time.Minute, 7*24*time.Hour, time.Second, nil)
	require.NoError(t, err)
	svc := newTestService(t, nil)

	pair, err := hs512.Issue("alice", "student")
	require.NoError(t, err)

	_, err = svc.Decode(pair.AccessToken, TypeAccess)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestDecodeMalformedInput(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil)

	for _, input := range []string{"", "garbage", "a.b.c", "ey.ey.ey"} {
		_, err := svc.Decode(input, TypeAccess)
		require.ErrorIs(t, err, apperr.ErrInvalidToken, "input %q", input)
	}
}

func TestNewServiceRejectsNonHMAC(t *testing.T) {
	t.Parallel()
	_, err := NewService("test-secret", "RS256", time.Minute, time.Hour, time.Second, nil)
	require.Error(t, err)
}

func TestRefreshExchange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid refresh token mints a new access token", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store)

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, svc.RecordFor(pair, "bob", "faculty")))

		accessToken, exp, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.True(t, exp.After(time.Now()))

		claims, err := svc.Decode(accessToken, TypeAccess)
		require.NoError(t, err)
		require.Equal(t, "bob", claims.UserID)
		require.Equal(t, "faculty", claims.Role)
	})

	t.Run("access token is not accepted", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store)

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, svc.RecordFor(pair, "bob", "faculty")))

		_, _, err = svc.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		svc := newTestService(t, newMemStore())

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("revoked token fails", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store)

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, svc.RecordFor(pair, "bob", "faculty")))
		require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("expired ledger entry fails even with a valid signature", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(t, store)

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)
		rec := svc.RecordFor(pair, "bob", "faculty")
		rec.ExpiresAt = time.Now().Add(-time.Hour)
		require.NoError(t, store.Save(ctx, rec))

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("store failure surfaces as unavailable", func(t *testing.T) {
		store := newMemStore()
		store.fail = true
		svc := newTestService(t, store)

		pair, err := svc.Issue("bob", "faculty")
		require.NoError(t, err)

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, apperr.ErrUnavailable)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	pair, err := svc.Issue("bob", "faculty")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, svc.RecordFor(pair, "bob", "faculty")))

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, "never-issued"))
}
