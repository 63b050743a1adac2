package model

import "time"

// Типы событий журнала.
const (
	EventGroupCreated     = "group-created"
	EventGroupUpdated     = "group-updated"
	EventGroupRoleAdded   = "group-role-added"
	EventGroupRoleRemoved = "group-role-removed"
)

// Event — запись журнала событий (append-only).
// Хранится в таблице events.
type Event struct {
	ID        int64
	Type      string
	CreatedBy string
	// Data — новое состояние или входные данные (сериализуется в JSONB)
	Data any
	// PreData — прежнее состояние (только для изменений)
	PreData   any
	CreatedAt time.Time
}
