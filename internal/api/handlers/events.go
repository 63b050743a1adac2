// events.go — журнал событий.
package handlers

import "net/http"

// ListEvents — GET /api/v1/events?type=&limit=&offset=.
func (h *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var eventType *string
	if t := r.URL.Query().Get("type"); t != "" {
		eventType = &t
	}

	events, total, err := h.accounts.ListEvents(r.Context(), eventType, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "Ошибка получения журнала событий", err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, eventResponse{
			ID:        e.ID,
			Type:      e.Type,
			CreatedBy: e.CreatedBy,
			Data:      e.Data,
			PreData:   e.PreData,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, eventListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}
