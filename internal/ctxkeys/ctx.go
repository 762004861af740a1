package ctxkeys

import (
	"context"

	"github.com/ecofood/foodshare/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	ActorKey contextKey = "actor"
)

// Actor returns the authenticated caller, if the auth middleware set one.
func Actor(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(model.Actor)
	return actor, ok
}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}
