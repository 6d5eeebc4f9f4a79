package server

import (
	"context"

	"github.com/pawfound/sighting-wizard/internal/model"
)

type contextKey int

const (
	ctxKeyUser contextKey = iota
	ctxKeyRequestID
)

func withUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// UserFromContext returns the authenticated user from the context, or nil.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKeyUser).(*model.User)
	return u
}
