package shared

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// ContextWithActor records who triggers the writes made with ctx. Audit
// entries without an explicit actor pick it up.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext returns the actor stored by ContextWithActor, if any.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
