// projects.go — роли групп в проектах.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/flagadmin/internal/api/errors"
	"github.com/bigkaa/flagadmin/internal/api/middleware"
)

// ListProjectGroups — GET /api/v1/projects/{project}/groups.
func (h *APIHandler) ListProjectGroups(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	h.writeProjectGroups(w, r, &project)
}

// ListAllProjectGroups — GET /api/v1/project-groups.
func (h *APIHandler) ListAllProjectGroups(w http.ResponseWriter, r *http.Request) {
	h.writeProjectGroups(w, r, nil)
}

func (h *APIHandler) writeProjectGroups(w http.ResponseWriter, r *http.Request, project *string) {
	groups, err := h.groups.GetProjectGroups(r.Context(), project)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения групп проекта", err)
		return
	}
	writeJSON(w, http.StatusOK, mapProjectGroups(groups))
}

// ListProjectRoles — GET /api/v1/projects/{project}/roles.
func (h *APIHandler) ListProjectRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.groups.GetRolesForProject(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения ролей проекта", err)
		return
	}
	writeJSON(w, http.StatusOK, mapGroupRoles(roles))
}

// AddGroupToRole — POST /api/v1/projects/{project}/groups/{id}/roles/{roleId}.
func (h *APIHandler) AddGroupToRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}

	err := h.groups.AddGroupToRole(r.Context(), chi.URLParam(r, "id"), roleID,
		chi.URLParam(r, "project"), middleware.ActorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка назначения роли группе", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveGroupFromRole — DELETE /api/v1/projects/{project}/groups/{id}/roles/{roleId}.
func (h *APIHandler) RemoveGroupFromRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}

	err := h.groups.RemoveGroupFromRole(r.Context(), chi.URLParam(r, "id"), roleID,
		chi.URLParam(r, "project"), middleware.ActorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка снятия роли с группы", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoles — GET /api/v1/roles.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.groups.ListRoles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения ролей", err)
		return
	}

	items := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		items = append(items, roleResponse{
			ID:          role.ID,
			Name:        role.Name,
			Type:        role.Type,
			Description: role.Description,
		})
	}
	writeJSON(w, http.StatusOK, roleListResponse{Roles: items})
}

func roleIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	roleID, err := strconv.Atoi(chi.URLParam(r, "roleId"))
	if err != nil || roleID < 1 {
		apierrors.ValidationError(w, "roleId должен быть положительным целым числом")
		return 0, false
	}
	return roleID, true
}
