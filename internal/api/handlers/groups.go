// groups.go — обработчики /api/v1/groups.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/flagadmin/internal/api/middleware"
)

// ListGroups — GET /api/v1/groups.
func (h *APIHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.GetAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения групп", err)
		return
	}
	writeJSON(w, http.StatusOK, groupListResponse{Groups: mapGroups(groups)})
}

// GetGroup — GET /api/v1/groups/{id}.
func (h *APIHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.groups.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения группы", err)
		return
	}
	writeJSON(w, http.StatusOK, mapGroup(group))
}

// CreateGroup — POST /api/v1/groups.
func (h *APIHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), req.toInput(""), middleware.ActorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "Ошибка создания группы", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapGroup(group))
}

// UpdateGroup — PUT /api/v1/groups/{id}.
func (h *APIHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.groups.UpdateGroup(r.Context(), req.toInput(id), middleware.ActorFromContext(r.Context())); err != nil {
		h.writeServiceError(w, r, "Ошибка обновления группы", err)
		return
	}

	// Ответ — группа с пересчитанными участниками
	group, err := h.groups.GetGroup(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения группы", err)
		return
	}
	writeJSON(w, http.StatusOK, mapGroup(group))
}

// DeleteGroup — DELETE /api/v1/groups/{id}.
func (h *APIHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.DeleteGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "Ошибка удаления группы", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateGroup — POST /api/v1/groups/validate.
// Проверяет данные новой группы без сохранения.
func (h *APIHandler) ValidateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.groups.ValidateGroup(r.Context(), req.toInput(""), nil); err != nil {
		h.writeServiceError(w, r, "Ошибка проверки группы", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
