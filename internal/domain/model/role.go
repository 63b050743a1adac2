package model

// Типы ролей.
const (
	RoleTypeRoot       = "root"
	RoleTypeRootCustom = "root-custom"
	RoleTypeProject    = "project"
	RoleTypeCustom     = "custom"
)

// Role — роль доступа к ресурсам платформы.
// Хранится в таблице roles.
type Role struct {
	ID          int
	Name        string
	Type        string
	Description *string
}

// IsProjectScoped сообщает, что роль назначается в рамках проекта.
func (r Role) IsProjectScoped() bool {
	return r.Type == RoleTypeProject || r.Type == RoleTypeCustom
}
