package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"outlay/internal/core"
)

// ErrInvalidToken is returned when a presented token matches no user.
var ErrInvalidToken = errors.New("invalid token")

// Store is the subset of the repository the directory needs.
type Store interface {
	UserByToken(ctx context.Context, token string) (core.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
}

// Directory resolves API tokens and user ids to users. Every request
// is attributed to a user through it; services only ever see ids that
// came out of here or that they re-check with Exists.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Authenticate resolves a bearer token to its user.
func (d *Directory) Authenticate(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, ErrInvalidToken
	}
	user, err := d.store.UserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, ErrInvalidToken
		}
		return core.User{}, err
	}
	return user, nil
}

// Exists reports whether the user id belongs to a known user.
// Unknown ids fail with core.ErrNotFound.
func (d *Directory) Exists(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return core.ErrNotFound
	}
	_, err := d.store.UserByID(ctx, id)
	return err
}

type contextKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom extracts the authenticated user from the context.
func UserFrom(ctx context.Context) (core.User, bool) {
	user, ok := ctx.Value(contextKey{}).(core.User)
	return user, ok
}
