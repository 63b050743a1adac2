package model

import "time"

// SyncState — состояние синхронизации (одна строка в БД).
// Хранится в таблице sync_state (id = 1).
type SyncState struct {
	// ID — всегда 1
	ID int
	// LastGroupSyncAt — время последней синхронизации групп с Keycloak
	LastGroupSyncAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GroupSyncResult — результат синхронизации групп с Keycloak.
type GroupSyncResult struct {
	// TotalUsers — пользователей получено из Keycloak
	TotalUsers int
	// UsersSynced — пользователей обработано без ошибок
	UsersSynced int
	// UsersFailed — пользователей, обработка которых завершилась ошибкой
	UsersFailed int
	// MembershipsAdded — добавлено записей членства
	MembershipsAdded int
	// MembershipsRemoved — удалено записей членства
	MembershipsRemoved int
	SyncedAt           time.Time
}
