// routes.go — таблица маршрутов REST API.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/flagadmin/internal/api/middleware"
	"github.com/bigkaa/flagadmin/internal/domain/rbac"
)

// Routes регистрирует маршруты /api/v1. Проверка JWT выполняется выше по цепочке,
// здесь назначаются требуемые роли. openapiSpec отдаётся без проверки роли.
func (h *APIHandler) Routes(r chi.Router, openapiSpec []byte) {
	read := middleware.RequireRole(rbac.RoleReadonly)
	admin := middleware.RequireRole(rbac.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(openapiSpec)
		})

		r.Route("/groups", func(r chi.Router) {
			r.With(read).Get("/", h.ListGroups)
			r.With(admin).Post("/", h.CreateGroup)
			r.With(admin).Post("/validate", h.ValidateGroup)
			r.With(read).Get("/{id}", h.GetGroup)
			r.With(admin).Put("/{id}", h.UpdateGroup)
			r.With(admin).Delete("/{id}", h.DeleteGroup)
		})

		r.With(read).Get("/project-groups", h.ListAllProjectGroups)
		r.Route("/projects/{project}", func(r chi.Router) {
			r.With(read).Get("/groups", h.ListProjectGroups)
			r.With(read).Get("/roles", h.ListProjectRoles)
			r.With(admin).Post("/groups/{id}/roles/{roleId}", h.AddGroupToRole)
			r.With(admin).Delete("/groups/{id}/roles/{roleId}", h.RemoveGroupFromRole)
		})
		r.With(read).Get("/roles", h.ListRoles)

		r.Route("/users", func(r chi.Router) {
			r.With(read).Get("/", h.ListUsers)
			r.With(read).Get("/{id}", h.GetUser)
			r.With(read).Get("/{id}/groups", h.ListUserGroups)
			r.With(admin).Post("/{id}/sync-groups", h.SyncUserGroups)
			r.With(admin).Post("/{id}/external-groups", h.SyncExternalGroups)
		})

		r.With(admin).Get("/idp/status", h.GetIdpStatus)
		r.With(admin).Post("/idp/sync-groups", h.SyncAllGroups)
		r.With(admin).Get("/events", h.ListEvents)
	})
}

// Routes регистрирует probes и метрики.
func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)
}
