package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/jwt"
	"github.com/smartbrief/core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users map[string]*models.UserModel
	err   error
}

func (f *fakeUsers) FindUser(_ context.Context, id string) (*models.UserModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func newUser(id string, role models.Role) *models.UserModel {
	u := &models.UserModel{Role: role, IsActive: true}
	u.ID = id
	return u
}

func TestAuthenticate(t *testing.T) {
	tokens := jwt.New("test-secret")
	users := &fakeUsers{users: map[string]*models.UserModel{
		"u-editor":   newUser("u-editor", models.RoleEditor),
		"u-disabled": {Role: models.RoleUser},
		"u-odd":      newUser("u-odd", models.Role("owner")),
	}}
	gate := NewGate(users, tokens)

	sign := func(id string, ttl time.Duration) string {
		tok, err := tokens.Sign(id, ttl)
		require.NoError(t, err)
		return tok
	}

	t.Run("bearer token resolves role", func(t *testing.T) {
		id, err := gate.Authenticate(context.Background(), "Bearer "+sign("u-editor", time.Hour))
		require.NoError(t, err)
		assert.Equal(t, Identity{UserID: "u-editor", Role: models.RoleEditor}, id)
	})

	t.Run("unknown role degrades to user", func(t *testing.T) {
		id, err := gate.Authenticate(context.Background(), sign("u-odd", time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, id.Role)
	})

	cases := []struct {
		name    string
		raw     string
		message string
	}{
		{name: "missing", raw: "  ", message: "Access token required"},
		{name: "garbage", raw: "Bearer not.a.jwt", message: "Invalid token"},
		{name: "expired", raw: sign("u-editor", -time.Minute), message: "Token expired"},
		{name: "wrong secret", raw: func() string {
			tok, _ := jwt.New("other").Sign("u-editor", time.Hour)
			return tok
		}(), message: "Invalid token"},
		{name: "deleted user", raw: sign("u-gone", time.Hour), message: "Invalid token"},
		{name: "disabled user", raw: sign("u-disabled", time.Hour), message: "Account is disabled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate.Authenticate(context.Background(), tc.raw)
			require.ErrorIs(t, err, apperr.ErrUnauthenticated)
			e, _ := apperr.As(err)
			assert.Equal(t, tc.message, e.Message)
		})
	}
}

func TestAuthenticateStoreFailureIsAuthError(t *testing.T) {
	tokens := jwt.New("test-secret")
	gate := NewGate(&fakeUsers{err: errors.New("connection refused")}, tokens)

	tok, err := tokens.Sign("u1", time.Hour)
	require.NoError(t, err)

	_, err = gate.Authenticate(context.Background(), tok)
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.NotErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestHasAnyRole(t *testing.T) {
	assert.True(t, HasAnyRole(models.RoleAdmin, models.RoleEditor, models.RoleAdmin))
	assert.False(t, HasAnyRole(models.RoleReviewer, models.RoleEditor, models.RoleAdmin))
	assert.False(t, HasAnyRole(models.RoleUser))
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  bearer   abc "))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken("Bearer "))
}
