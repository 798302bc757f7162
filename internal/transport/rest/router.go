package rest

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/assistant-guard/internal/dispatch"
	"github.com/frahmantamala/assistant-guard/internal/guard"
	"github.com/frahmantamala/assistant-guard/internal/identity"
	"github.com/frahmantamala/assistant-guard/internal/metrics"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/internal/risk"
	"github.com/frahmantamala/assistant-guard/internal/transport"
	"github.com/frahmantamala/assistant-guard/internal/transport/middleware"
	"github.com/frahmantamala/assistant-guard/internal/transport/swagger"
)

// Handlers collects everything the router mounts. Metrics may be nil.
type Handlers struct {
	Base        *transport.BaseHandler
	Health      *HealthHandler
	Guard       *guard.Guard
	RBAC        *permission.RBACAuthorization
	Identity    *identity.Handler
	Permission  *permission.Handler
	Risk        *risk.Handler
	Dispatch    *dispatch.Handler
	Metrics     *metrics.Metrics
	MetricsPath string
	OpenAPI     []byte
}

func RegisterAllRoutes(router *chi.Mux, h Handlers) {
	router.Use(middleware.RequestID)
	if h.Metrics != nil {
		router.Use(h.Metrics.Instrument)
	}
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery(h.Base))

	router.Get(swagger.SpecURL, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(h.OpenAPI)
	})
	router.Handle("/swagger/*", swagger.Handler())
	if h.Metrics != nil {
		path := h.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, h.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", h.Health.Ping)
		r.Get("/health", h.Health.Health)

		r.With(h.Guard.Throttle).Post("/auth/login", h.Identity.Login)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Guard.Authenticate)
			rbac := h.RBAC.Middleware

			pr.Post("/auth/logout", h.Identity.Logout)

			pr.Get("/users/me", h.Identity.Me)
			pr.Get("/users/me/permissions", h.Permission.MyPermissions)
			pr.Get("/users/me/activity", h.Identity.GetActivity)
			pr.Get("/users/me/export", h.Identity.Export)

			pr.With(rbac(permission.UserView)).Get("/users", h.Identity.ListUsers)
			pr.With(rbac(permission.UserManagement)).Post("/users", h.Identity.CreateUser)
			pr.With(rbac(permission.UserView)).Get("/users/stats", h.Identity.Stats)
			pr.With(rbac(permission.UserView)).Get("/users/{id}", h.Identity.GetUser)
			pr.With(rbac(permission.UserManagement)).Patch("/users/{id}", h.Identity.UpdateUser)
			pr.With(rbac(permission.UserManagement)).Delete("/users/{id}", h.Identity.DeleteUser)
			pr.With(rbac(permission.AuditLogs)).Get("/users/{id}/activity", h.Identity.GetActivity)
			pr.With(rbac(permission.UserManagement)).Get("/users/{id}/export", h.Identity.Export)

			// The permission service checks role_management on the acting identity.
			pr.Post("/users/{id}/permissions", h.Permission.GrantPermission)
			pr.Delete("/users/{id}/permissions/{permission}", h.Permission.RevokePermission)
			pr.Put("/users/{id}/role", h.Permission.ChangeRole)

			pr.Get("/roles", h.Permission.ListRoles)
			pr.Get("/permissions", h.Permission.ListPermissions)

			pr.Get("/commands/available", h.Dispatch.Available)
			pr.Post("/commands/execute", h.Dispatch.Execute)

			pr.Route("/risk", func(rr chi.Router) {
				rr.Use(rbac(permission.SecurityView))
				rr.Post("/assess", h.Risk.Assess)
				rr.Get("/events", h.Risk.ListEvents)
				rr.Get("/statistics", h.Risk.Statistics)
			})

			pr.With(rbac(permission.SecurityManagement)).Get("/security/stats", h.Guard.StatsHandler)
		})
	})
}
