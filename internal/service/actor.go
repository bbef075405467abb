package service

import (
	"context"

	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
)

type actorKey struct{}

// WithActor attaches who is making the call so published events carry it.
func WithActor(ctx context.Context, actor model.AuditActor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) model.AuditActor {
	actor, _ := ctx.Value(actorKey{}).(model.AuditActor)
	return actor
}

func publish(ctx context.Context, bus event.Publisher, t event.Type, outcome string, subjectID string, payload map[string]any) {
	if bus == nil {
		return
	}

	actor := ActorFromContext(ctx)
	e := event.New(t, outcome, actor.UserID, subjectID).WithOrigin(actor.IP, actor.UserAgent)
	for k, v := range payload {
		e = e.With(k, v)
	}
	bus.Publish(e)
}
