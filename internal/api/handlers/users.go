// users.go — пользователи и их членство в группах.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/flagadmin/internal/api/errors"
	"github.com/bigkaa/flagadmin/internal/api/middleware"
)

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	users, total, err := h.accounts.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения пользователей", err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, mapUser(u))
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения пользователя", err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// ListUserGroups — GET /api/v1/users/{id}/groups.
func (h *APIHandler) ListUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.GetGroupsForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения групп пользователя", err)
		return
	}
	writeJSON(w, http.StatusOK, groupListResponse{Groups: mapGroups(groups)})
}

// SyncUserGroups — POST /api/v1/users/{id}/sync-groups.
// Приводит членство к группам пользователя в Keycloak.
func (h *APIHandler) SyncUserGroups(w http.ResponseWriter, r *http.Request) {
	change, err := h.idp.SyncUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка синхронизации групп пользователя", err)
		return
	}
	writeJSON(w, http.StatusOK, mapMembershipChange(change))
}

// SyncExternalGroups — POST /api/v1/users/{id}/external-groups.
// Приводит членство к переданному списку внешних групп.
func (h *APIHandler) SyncExternalGroups(w http.ResponseWriter, r *http.Request) {
	var req externalGroupsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Groups == nil {
		apierrors.ValidationError(w, "Поле groups обязательно")
		return
	}

	change, err := h.groups.SyncExternalGroups(r.Context(), chi.URLParam(r, "id"), req.Groups,
		middleware.ActorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка синхронизации внешних групп", err)
		return
	}
	writeJSON(w, http.StatusOK, mapMembershipChange(change))
}
