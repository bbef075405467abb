package handler

import (
	"context"
	"net/http"

	"go-news-cms/internal/middleware"
	"go-news-cms/internal/model"
	"go-news-cms/internal/service"
)

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	if principal, ok := middleware.PrincipalFromContext(r.Context()); ok {
		actor.UserID = principal.User.ID
	}

	return actor
}

// actorContext is the request context tagged with who is calling, so the
// service layer can stamp its events.
func actorContext(r *http.Request) context.Context {
	return service.WithActor(r.Context(), actorFromRequest(r))
}
