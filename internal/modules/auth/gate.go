package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/pkg/apperr"
	"github.com/smartbrief/core/internal/pkg/jwt"
	"github.com/smartbrief/core/internal/store"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID string
	Role   models.Role
}

// UserFinder loads accounts by id. store.UserStore satisfies it.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (*models.UserModel, error)
}

// Gate turns bearer credentials into identities.
type Gate struct {
	users  UserFinder
	tokens *jwt.Manager
}

func NewGate(users UserFinder, tokens *jwt.Manager) *Gate {
	return &Gate{users: users, tokens: tokens}
}

// Authenticate verifies raw (with or without the Bearer prefix) and loads
// the user's current role. Bad credentials yield Unauthenticated; only a
// failing identity store yields Auth.
func (g *Gate) Authenticate(ctx context.Context, raw string) (Identity, error) {
	token := NormalizeToken(raw)
	if token == "" {
		return Identity{}, apperr.Unauthenticated("Access token required")
	}

	claims, err := g.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Identity{}, apperr.Unauthenticated("Token expired")
		}
		return Identity{}, apperr.Unauthenticated("Invalid token")
	}

	user, err := g.users.FindUser(ctx, claims.UserID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return Identity{}, apperr.Unauthenticated("Invalid token")
	case err != nil:
		return Identity{}, apperr.Auth(err)
	}
	if !user.IsActive {
		return Identity{}, apperr.Unauthenticated("Account is disabled")
	}

	role := user.Role
	if !role.Valid() {
		role = models.RoleUser
	}
	return Identity{UserID: user.ID, Role: role}, nil
}

// HasAnyRole reports whether role is one of allowed.
func HasAnyRole(role models.Role, allowed ...models.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 6 && strings.EqualFold(token[:6], "bearer") && (len(token) == 6 || token[6] == ' ') {
		return strings.TrimSpace(token[6:])
	}
	return token
}
