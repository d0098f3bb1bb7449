package auth

import (
	"context"
	"errors"
)

// Identity is the verified admin behind a request.
type Identity struct {
	UserID   string
	ChurchID string
	Role     string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, userID, churchID, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, ChurchID: churchID, Role: role})
}

// IdentityFrom returns the identity attached by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) (string, error) {
	id, _ := IdentityFrom(ctx)
	return nonEmpty(id.UserID, "user_id")
}

func ChurchID(ctx context.Context) (string, error) {
	id, _ := IdentityFrom(ctx)
	return nonEmpty(id.ChurchID, "church_id")
}

func Role(ctx context.Context) (string, error) {
	id, _ := IdentityFrom(ctx)
	return nonEmpty(id.Role, "role")
}

func nonEmpty(v, name string) (string, error) {
	if v == "" {
		return "", errors.New(name + " not in context")
	}
	return v, nil
}
