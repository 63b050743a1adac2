// idp.go — статус Keycloak и синхронизация групп.
package handlers

import "net/http"

// GetIdpStatus — GET /api/v1/idp/status.
func (h *APIHandler) GetIdpStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mapIDPStatus(h.idp.GetStatus(r.Context())))
}

// SyncAllGroups — POST /api/v1/idp/sync-groups.
func (h *APIHandler) SyncAllGroups(w http.ResponseWriter, r *http.Request) {
	result, err := h.idp.SyncGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Ошибка синхронизации групп", err)
		return
	}

	writeJSON(w, http.StatusOK, groupSyncResultResponse{
		TotalUsers:         result.TotalUsers,
		UsersSynced:        result.UsersSynced,
		UsersFailed:        result.UsersFailed,
		MembershipsAdded:   result.MembershipsAdded,
		MembershipsRemoved: result.MembershipsRemoved,
		SyncedAt:           result.SyncedAt,
	})
}
