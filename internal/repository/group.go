package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/flagadmin/internal/domain/model"
)

// GroupRepository — группы, членство пользователей и роли групп в проектах.
type GroupRepository interface {
	// GetAll возвращает все группы, отсортированные по имени.
	GetAll(ctx context.Context) ([]*model.Group, error)
	// GetAllWithID возвращает группы с указанными ID.
	GetAllWithID(ctx context.Context, ids []string) ([]*model.Group, error)
	// GetSSOMapped возвращает группы с непустым mappings_sso.
	GetSSOMapped(ctx context.Context) ([]*model.Group, error)
	// Get возвращает группу по ID.
	Get(ctx context.Context, id string) (*model.Group, error)
	// Create создаёт группу. ID и CreatedAt заполняются при пустых значениях.
	Create(ctx context.Context, g *model.Group) error
	// Update обновляет имя, описание, mappings_sso и корневую роль.
	Update(ctx context.Context, g *model.Group) error
	// Delete удаляет группу вместе с членством и ролями (ON DELETE CASCADE).
	Delete(ctx context.Context, id string) error
	// ExistsWithName проверяет, занято ли имя.
	ExistsWithName(ctx context.Context, name string) (bool, error)
	// HasProjectRole проверяет, есть ли у группы роль хотя бы в одном проекте.
	HasProjectRole(ctx context.Context, groupID string) (bool, error)

	// GetAllUsersByGroups возвращает строки членства для набора групп.
	GetAllUsersByGroups(ctx context.Context, groupIDs []string) ([]model.GroupUser, error)
	// GetGroupProjects возвращает пары (группа, проект) для набора групп.
	GetGroupProjects(ctx context.Context, groupIDs []string) ([]model.GroupProject, error)
	// GetProjectGroupRoles возвращает роли групп в проекте или во всех проектах (project == nil).
	GetProjectGroupRoles(ctx context.Context, project *string) ([]model.GroupRole, error)
	// GetRolesForProject возвращает роли групп в проекте.
	GetRolesForProject(ctx context.Context, project string) ([]model.GroupRole, error)
	// GetGroupsForUser возвращает группы, в которых состоит пользователь.
	GetGroupsForUser(ctx context.Context, userID string) ([]*model.Group, error)

	// Операции членства возвращают число фактически вставленных или удалённых строк.

	// AddUsersToGroup добавляет пользователей в группу. Повторное добавление игнорируется.
	AddUsersToGroup(ctx context.Context, groupID string, userIDs []string, actor string) (int64, error)
	// DeleteUsersFromGroup удаляет пользователей из группы.
	DeleteUsersFromGroup(ctx context.Context, groupID string, userIDs []string) (int64, error)
	// AddUserToGroups добавляет пользователя в набор групп. Повторное добавление игнорируется.
	AddUserToGroups(ctx context.Context, userID string, groupIDs []string, actor string) (int64, error)
	// DeleteUserFromGroups удаляет пользователя из набора групп.
	DeleteUserFromGroups(ctx context.Context, userID string, groupIDs []string) (int64, error)

	// AddGroupToRole назначает группе роль в проекте.
	AddGroupToRole(ctx context.Context, groupID string, roleID int, project, actor string) error
	// RemoveGroupFromRole снимает с группы роль в проекте.
	RemoveGroupFromRole(ctx context.Context, groupID string, roleID int, project string) error
}

// groupRepo — реализация GroupRepository.
type groupRepo struct {
	db DBTX
}

// NewGroupRepository создаёт репозиторий групп.
func NewGroupRepository(db DBTX) GroupRepository {
	return &groupRepo{db: db}
}

const groupColumns = `id, name, description, mappings_sso, root_role_id, created_by, created_at`

// scanGroup сканирует строку результата в модель Group.
func scanGroup(row pgx.Row) (*model.Group, error) {
	g := &model.Group{}
	err := row.Scan(
		&g.ID, &g.Name, &g.Description, &g.MappingsSSO, &g.RootRole, &g.CreatedBy, &g.CreatedAt,
	)
	return g, err
}

func (r *groupRepo) queryGroups(ctx context.Context, query string, args ...any) ([]*model.Group, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения групп: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования группы: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (r *groupRepo) GetAll(ctx context.Context) ([]*model.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups ORDER BY name`, groupColumns)
	return r.queryGroups(ctx, query)
}

func (r *groupRepo) GetAllWithID(ctx context.Context, ids []string) ([]*model.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = ANY($1) ORDER BY name`, groupColumns)
	return r.queryGroups(ctx, query, parseUUIDs(ids))
}

func (r *groupRepo) GetSSOMapped(ctx context.Context) ([]*model.Group, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM groups
		WHERE jsonb_array_length(mappings_sso) > 0
		ORDER BY name`, groupColumns)
	return r.queryGroups(ctx, query)
}

func (r *groupRepo) Get(ctx context.Context, id string) (*model.Group, error) {
	gid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1`, groupColumns)
	g, err := scanGroup(r.db.QueryRow(ctx, query, gid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения группы: %w", err)
	}
	return g, nil
}

func (r *groupRepo) Create(ctx context.Context, g *model.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}

	query := `
		INSERT INTO groups (id, name, description, mappings_sso, root_role_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		g.ID, g.Name, g.Description, nonNilStrings(g.MappingsSSO), g.RootRole, g.CreatedBy,
	).Scan(&g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: группа %q уже существует", ErrConflict, g.Name)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: роль %v", ErrNotFound, derefInt(g.RootRole))
		}
		return fmt.Errorf("ошибка создания группы: %w", err)
	}
	return nil
}

func (r *groupRepo) Update(ctx context.Context, g *model.Group) error {
	gid, err := uuid.Parse(g.ID)
	if err != nil {
		return ErrNotFound
	}

	query := `
		UPDATE groups
		SET name = $2, description = $3, mappings_sso = $4, root_role_id = $5
		WHERE id = $1
		RETURNING created_by, created_at`

	err = r.db.QueryRow(ctx, query,
		gid, g.Name, g.Description, nonNilStrings(g.MappingsSSO), g.RootRole,
	).Scan(&g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: группа %q уже существует", ErrConflict, g.Name)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: роль %v", ErrNotFound, derefInt(g.RootRole))
		}
		return fmt.Errorf("ошибка обновления группы: %w", err)
	}
	return nil
}

func (r *groupRepo) Delete(ctx context.Context, id string) error {
	gid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, gid)
	if err != nil {
		return fmt.Errorf("ошибка удаления группы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *groupRepo) ExistsWithName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки имени группы: %w", err)
	}
	return exists, nil
}

func (r *groupRepo) HasProjectRole(ctx context.Context, groupID string) (bool, error) {
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return false, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_role WHERE group_id = $1)`, gid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки ролей группы: %w", err)
	}
	return exists, nil
}

func (r *groupRepo) GetAllUsersByGroups(ctx context.Context, groupIDs []string) ([]model.GroupUser, error) {
	query := `
		SELECT group_id, user_id, created_by, created_at
		FROM group_user
		WHERE group_id = ANY($1)
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, parseUUIDs(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участников групп: %w", err)
	}
	defer rows.Close()

	result := make([]model.GroupUser, 0)
	for rows.Next() {
		var gu model.GroupUser
		if err := rows.Scan(&gu.GroupID, &gu.UserID, &gu.CreatedBy, &gu.JoinedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника группы: %w", err)
		}
		result = append(result, gu)
	}
	return result, rows.Err()
}

func (r *groupRepo) GetGroupProjects(ctx context.Context, groupIDs []string) ([]model.GroupProject, error) {
	query := `
		SELECT DISTINCT group_id, project
		FROM group_role
		WHERE group_id = ANY($1)
		ORDER BY project`

	rows, err := r.db.Query(ctx, query, parseUUIDs(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения проектов групп: %w", err)
	}
	defer rows.Close()

	result := make([]model.GroupProject, 0)
	for rows.Next() {
		var gp model.GroupProject
		if err := rows.Scan(&gp.GroupID, &gp.Project); err != nil {
			return nil, fmt.Errorf("ошибка сканирования проекта группы: %w", err)
		}
		result = append(result, gp)
	}
	return result, rows.Err()
}

func (r *groupRepo) GetProjectGroupRoles(ctx context.Context, project *string) ([]model.GroupRole, error) {
	query := `
		SELECT group_id, role_id, project, created_by, created_at
		FROM group_role
		WHERE $1::text IS NULL OR project = $1
		ORDER BY project, created_at`

	rows, err := r.db.Query(ctx, query, project)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей групп: %w", err)
	}
	defer rows.Close()

	result := make([]model.GroupRole, 0)
	for rows.Next() {
		var gr model.GroupRole
		if err := rows.Scan(&gr.GroupID, &gr.RoleID, &gr.Project, &gr.CreatedBy, &gr.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли группы: %w", err)
		}
		result = append(result, gr)
	}
	return result, rows.Err()
}

func (r *groupRepo) GetRolesForProject(ctx context.Context, project string) ([]model.GroupRole, error) {
	return r.GetProjectGroupRoles(ctx, &project)
}

func (r *groupRepo) GetGroupsForUser(ctx context.Context, userID string) ([]*model.Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.mappings_sso, g.root_role_id, g.created_by, g.created_at
		FROM groups g
		JOIN group_user gu ON gu.group_id = g.id
		WHERE gu.user_id = $1
		ORDER BY g.name`
	return r.queryGroups(ctx, query, userID)
}

func (r *groupRepo) AddUsersToGroup(ctx context.Context, groupID string, userIDs []string, actor string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return 0, ErrNotFound
	}

	query := `
		INSERT INTO group_user (group_id, user_id, created_by)
		SELECT $1::uuid, unnest($2::text[]), $3::varchar
		ON CONFLICT (group_id, user_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, gid, userIDs, actor)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: группа или пользователь", ErrNotFound)
		}
		return 0, fmt.Errorf("ошибка добавления пользователей в группу: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *groupRepo) DeleteUsersFromGroup(ctx context.Context, groupID string, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return 0, ErrNotFound
	}

	query := `DELETE FROM group_user WHERE group_id = $1 AND user_id = ANY($2::text[])`
	tag, err := r.db.Exec(ctx, query, gid, userIDs)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления пользователей из группы: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *groupRepo) AddUserToGroups(ctx context.Context, userID string, groupIDs []string, actor string) (int64, error) {
	ids := parseUUIDs(groupIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO group_user (group_id, user_id, created_by)
		SELECT unnest($1::uuid[]), $2::varchar, $3::varchar
		ON CONFLICT (group_id, user_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, ids, userID, actor)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: группа или пользователь", ErrNotFound)
		}
		return 0, fmt.Errorf("ошибка добавления пользователя в группы: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *groupRepo) DeleteUserFromGroups(ctx context.Context, userID string, groupIDs []string) (int64, error) {
	ids := parseUUIDs(groupIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM group_user WHERE user_id = $1 AND group_id = ANY($2::uuid[])`
	tag, err := r.db.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления пользователя из групп: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *groupRepo) AddGroupToRole(ctx context.Context, groupID string, roleID int, project, actor string) error {
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return ErrNotFound
	}

	query := `
		INSERT INTO group_role (group_id, role_id, project, created_by)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, gid, roleID, project, actor); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: роль %d уже назначена группе в проекте %q", ErrConflict, roleID, project)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: группа или роль", ErrNotFound)
		}
		return fmt.Errorf("ошибка назначения роли группе: %w", err)
	}
	return nil
}

func (r *groupRepo) RemoveGroupFromRole(ctx context.Context, groupID string, roleID int, project string) error {
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM group_role WHERE group_id = $1 AND role_id = $2 AND project = $3`,
		gid, roleID, project,
	)
	if err != nil {
		return fmt.Errorf("ошибка снятия роли с группы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
