package api

import (
	"context"
	"net/http"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
)

type ctxKey string

const ctxKeyActor ctxKey = "actor"

func WithActor(ctx context.Context, a actor.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// ActorFromContext returns the authenticated staff member, if any.
func ActorFromContext(ctx context.Context) (actor.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(actor.Actor)
	return a, ok
}

// RequireActor writes a 401 and reports false when the request carries no staff identity.
func RequireActor(w http.ResponseWriter, r *http.Request) (actor.Actor, bool) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		WriteErr(w, apperr.Unauthorized("missing staff identity"))
	}
	return a, ok
}
