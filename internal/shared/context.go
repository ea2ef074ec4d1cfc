package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user's ID in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user's ID from context.
// Returns 0 when no actor is attached.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
