package model

import "time"

// Источники учётных записей.
const (
	AccountSourceLocal    = "local"
	AccountSourceKeycloak = "keycloak"
)

// Account — учётная запись пользователя.
// Хранится в таблице users, ID совпадает с Keycloak subject.
type Account struct {
	ID       string
	Username string
	// Name — отображаемое имя
	Name *string
	// Email — адрес электронной почты (опционально)
	Email *string
	// Source — откуда пришла запись (local, keycloak)
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
