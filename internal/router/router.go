package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-news-cms/internal/config"
	"go-news-cms/internal/handler"
	"go-news-cms/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Audit  *handler.AuditHandler
	Docs   *handler.DocsHandler
	Health *handler.HealthHandler
}

// Limiters throttle the unauthenticated endpoints that are worth brute forcing.
type Limiters struct {
	Login    middleware.WindowLimiter
	Register middleware.WindowLimiter
}

const (
	roleSuperAdmin = "super_admin"
	roleAdmin      = "admin"

	permUserRead  = "user.read"
	permAuditRead = "audit.read"
)

func New(cfg *config.Config, authMW *middleware.AuthMiddleware, h Handlers, limiters Limiters) http.Handler {
	r := chi.NewRouter()
	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM)

	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimit.Handler)

	r.Get("/health", h.Health.Check)
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/swagger", h.Docs.SwaggerUI)

	adminOnly := authMW.RequireRole(roleSuperAdmin, roleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(middleware.Throttle(limiters.Login, "login")).Post("/login", h.Auth.Login)
			auth.With(middleware.Throttle(limiters.Register, "register")).Post("/register", h.Auth.Register)
			auth.Post("/refresh", h.Auth.Refresh)

			auth.Group(func(private chi.Router) {
				private.Use(authMW.Authenticate)
				private.Post("/logout", h.Auth.Logout)
				private.Post("/change-password", h.Auth.ChangePassword)
				private.Get("/me", h.Auth.Me)
				private.Get("/sessions", h.Auth.Sessions)
			})
		})

		api.Route("/users", func(users chi.Router) {
			users.Use(authMW.Authenticate)

			users.With(authMW.RequirePermission(permUserRead)).Get("/", h.User.List)
			users.Patch("/me", h.User.UpdateMe)
			users.Get("/{id}", h.User.Get)

			users.Group(func(admin chi.Router) {
				admin.Use(adminOnly)
				admin.Post("/{id}/suspend", h.User.Suspend)
				admin.Post("/{id}/activate", h.User.Activate)
				admin.Delete("/{id}", h.User.Delete)
				admin.Post("/{id}/roles", h.User.AssignRole)
				admin.Delete("/{id}/roles/{role}", h.User.RevokeRole)
			})
		})

		api.With(authMW.Authenticate).Get("/roles", h.User.Roles)
		api.With(authMW.Authenticate, authMW.RequirePermission(permAuditRead)).Get("/audit", h.Audit.List)
	})

	return r
}
