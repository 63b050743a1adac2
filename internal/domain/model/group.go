// Пакет model — доменные модели flag-admin.
package model

import "time"

// Group — группа пользователей.
// Хранится в таблице groups.
type Group struct {
	// ID — UUID группы
	ID string
	// Name — уникальное имя группы
	Name string
	// Description — описание (опционально)
	Description *string
	// MappingsSSO — имена внешних групп IdP, подразумевающих членство
	MappingsSSO []string
	// RootRole — ID корневой роли (nil, если не назначена)
	RootRole *int
	// CreatedBy — кто создал группу
	CreatedBy *string
	// CreatedAt — время создания
	CreatedAt time.Time
	// Users — участники (заполняется только в представлениях)
	Users []GroupMember
	// Projects — проекты, в которых у группы есть роли (только в представлениях)
	Projects []string
}

// GroupInput — данные для создания или изменения группы.
type GroupInput struct {
	// ID — UUID группы (пусто при создании)
	ID          string
	Name        string
	Description *string
	MappingsSSO []string
	RootRole    *int
	// UserIDs — желаемый состав участников
	UserIDs []string
}

// GroupUser — строка членства пользователя в группе.
// Хранится в таблице group_user, пара (GroupID, UserID) уникальна.
type GroupUser struct {
	GroupID string
	UserID  string
	// CreatedBy — кто добавил пользователя
	CreatedBy *string
	// JoinedAt — время добавления
	JoinedAt time.Time
}

// GroupMember — участник группы с данными аккаунта.
type GroupMember struct {
	User      Account
	JoinedAt  time.Time
	CreatedBy *string
}

// GroupProject — пара (группа, проект), вычисляется из group_role.
type GroupProject struct {
	GroupID string
	Project string
}

// GroupRole — роль группы в проекте.
// Хранится в таблице group_role.
type GroupRole struct {
	GroupID   string
	RoleID    int
	Project   string
	CreatedBy *string
	CreatedAt time.Time
}

// ProjectGroup — группа с ролью в проекте и участниками.
type ProjectGroup struct {
	Group
	// Project — проект, к которому относится роль
	Project string
	// RoleID — роль группы в проекте
	RoleID int
	// AddedAt — когда группа получила роль
	AddedAt time.Time
}

// MembershipChange — итог пересчёта членства пользователя.
type MembershipChange struct {
	// Added — ID групп, в которые пользователь добавлен
	Added []string
	// Removed — ID групп, из которых пользователь удалён
	Removed []string
}

// Empty сообщает, что изменений не было.
func (c MembershipChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}
