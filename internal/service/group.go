// Пакет service — бизнес-логика flag-admin.
// group.go — сервис групп: CRUD, пересчёт членства, роли групп в проектах,
// синхронизация членства по внешним группам IdP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/repository"
)

// Prometheus-метрики изменений членства.
var membershipChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flag_admin_group_membership_changes_total",
	Help: "Количество добавленных и удалённых записей членства в группах",
}, []string{"operation", "source"})

// Источники изменений членства (label source).
const (
	membershipSourceManual   = "manual"
	membershipSourceExternal = "external"
)

// GroupService — сервис управления группами.
type GroupService struct {
	groups   repository.GroupRepository
	accounts repository.AccountRepository
	events   repository.EventRepository
	roles    repository.RoleRepository
	logger   *slog.Logger
}

// NewGroupService создаёт сервис групп.
func NewGroupService(
	groups repository.GroupRepository,
	accounts repository.AccountRepository,
	events repository.EventRepository,
	roles repository.RoleRepository,
	logger *slog.Logger,
) *GroupService {
	return &GroupService{
		groups:   groups,
		accounts: accounts,
		events:   events,
		roles:    roles,
		logger:   logger.With(slog.String("component", "group_service")),
	}
}

// GetAll возвращает все группы с участниками и проектами.
func (s *GroupService) GetAll(ctx context.Context) ([]*model.Group, error) {
	groups, err := s.groups.GetAll(ctx)
	if err != nil {
		return nil, storeError("получение групп", err)
	}
	if err := s.attachMembers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup возвращает группу с участниками и проектами.
func (s *GroupService) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	group, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, storeError("получение группы", err)
	}
	if err := s.attachMembers(ctx, []*model.Group{group}); err != nil {
		return nil, err
	}
	return group, nil
}

// attachMembers заполняет Users и Projects групп.
// Членство и проекты привязываются строго по ID группы.
func (s *GroupService) attachMembers(ctx context.Context, groups []*model.Group) error {
	if len(groups) == 0 {
		return nil
	}

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	rows, err := s.groups.GetAllUsersByGroups(ctx, ids)
	if err != nil {
		return storeError("получение участников групп", err)
	}

	userIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.UserID)
	}
	accounts, err := s.accounts.GetAllWithID(ctx, uniqueStrings(userIDs))
	if err != nil {
		return storeError("получение пользователей", err)
	}

	projects, err := s.groups.GetGroupProjects(ctx, ids)
	if err != nil {
		return storeError("получение проектов групп", err)
	}

	accountByID := make(map[string]*model.Account, len(accounts))
	for _, a := range accounts {
		accountByID[a.ID] = a
	}

	usersByGroup := make(map[string][]model.GroupMember, len(groups))
	for _, row := range rows {
		account, ok := accountByID[row.UserID]
		if !ok {
			continue
		}
		usersByGroup[row.GroupID] = append(usersByGroup[row.GroupID], model.GroupMember{
			User:      *account,
			JoinedAt:  row.JoinedAt,
			CreatedBy: row.CreatedBy,
		})
	}

	projectsByGroup := make(map[string][]string, len(groups))
	for _, p := range projects {
		projectsByGroup[p.GroupID] = append(projectsByGroup[p.GroupID], p.Project)
	}

	for _, g := range groups {
		g.Users = usersByGroup[g.ID]
		if g.Users == nil {
			g.Users = []model.GroupMember{}
		}
		g.Projects = projectsByGroup[g.ID]
		if g.Projects == nil {
			g.Projects = []string{}
		}
	}
	return nil
}

// CreateGroup проверяет и создаёт группу, добавляет участников от имени actor
// и записывает событие group-created.
func (s *GroupService) CreateGroup(ctx context.Context, input model.GroupInput, actor string) (*model.Group, error) {
	if err := s.ValidateGroup(ctx, input, nil); err != nil {
		return nil, err
	}

	group := &model.Group{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		MappingsSSO: uniqueStrings(input.MappingsSSO),
		RootRole:    input.RootRole,
		CreatedBy:   &actor,
	}

	if err := s.groups.Create(ctx, group); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %q", ErrNameExists, group.Name)
		}
		return nil, storeError("создание группы", err)
	}

	userIDs := uniqueStrings(input.UserIDs)
	added, err := s.groups.AddUsersToGroup(ctx, group.ID, userIDs, actor)
	if err != nil {
		return nil, storeError("добавление участников", err)
	}
	membershipChangesTotal.WithLabelValues("added", membershipSourceManual).Add(float64(added))

	input.ID = group.ID
	if err := s.storeEvent(ctx, &model.Event{
		Type:      model.EventGroupCreated,
		CreatedBy: actor,
		Data:      newGroupPayload(input),
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Группа создана",
		slog.String("group_id", group.ID),
		slog.String("name", group.Name),
		slog.Int("users", len(userIDs)),
		slog.String("actor", actor),
	)

	return group, nil
}

// UpdateGroup проверяет изменения относительно текущего состояния, сохраняет группу,
// применяет разницу членства (сначала добавления, затем удаления)
// и записывает событие group-updated с прежним состоянием.
// input.UserIDs == nil оставляет состав без изменений.
func (s *GroupService) UpdateGroup(ctx context.Context, input model.GroupInput, actor string) (*model.Group, error) {
	existing, err := s.groups.Get(ctx, input.ID)
	if err != nil {
		return nil, storeError("получение группы", err)
	}

	if err := s.ValidateGroup(ctx, input, existing); err != nil {
		return nil, err
	}

	rows, err := s.groups.GetAllUsersByGroups(ctx, []string{existing.ID})
	if err != nil {
		return nil, storeError("получение участников группы", err)
	}
	currentUsers := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.GroupID == existing.ID {
			currentUsers = append(currentUsers, row.UserID)
		}
	}
	preData := groupPayloadFrom(existing, currentUsers)

	group := &model.Group{
		ID:          existing.ID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		MappingsSSO: uniqueStrings(input.MappingsSSO),
		RootRole:    input.RootRole,
	}
	if err := s.groups.Update(ctx, group); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %q", ErrNameExists, group.Name)
		}
		return nil, storeError("обновление группы", err)
	}

	finalUsers := currentUsers
	if input.UserIDs != nil {
		add, remove := diffMembers(currentUsers, input.UserIDs)
		added, err := s.groups.AddUsersToGroup(ctx, group.ID, add, actor)
		if err != nil {
			return nil, storeError("добавление участников", err)
		}
		membershipChangesTotal.WithLabelValues("added", membershipSourceManual).Add(float64(added))

		removed, err := s.groups.DeleteUsersFromGroup(ctx, group.ID, remove)
		if err != nil {
			return nil, storeError("удаление участников", err)
		}
		membershipChangesTotal.WithLabelValues("removed", membershipSourceManual).Add(float64(removed))

		finalUsers = uniqueStrings(input.UserIDs)
		s.logger.Debug("Состав группы пересчитан",
			slog.String("group_id", group.ID),
			slog.Int("added", len(add)),
			slog.Int("removed", len(remove)),
		)
	}

	if err := s.storeEvent(ctx, &model.Event{
		Type:      model.EventGroupUpdated,
		CreatedBy: actor,
		Data:      groupPayloadFrom(group, finalUsers),
		PreData:   preData,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Группа обновлена",
		slog.String("group_id", group.ID),
		slog.String("name", group.Name),
		slog.String("actor", actor),
	)

	return group, nil
}

// ValidateGroup проверяет данные группы до любых изменений.
// existing == nil — создание; иначе изменение существующей группы.
func (s *GroupService) ValidateGroup(ctx context.Context, input model.GroupInput, existing *model.Group) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return fmt.Errorf("%w: имя группы обязательно", ErrValidation)
	}

	if existing == nil || existing.Name != name {
		exists, err := s.groups.ExistsWithName(ctx, name)
		if err != nil {
			return storeError("проверка имени группы", err)
		}
		if exists {
			return fmt.Errorf("%w: %q", ErrNameExists, name)
		}
	}

	if input.RootRole != nil {
		role, err := s.roles.Get(ctx, *input.RootRole)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: роль %d не существует", ErrValidation, *input.RootRole)
			}
			return storeError("получение роли", err)
		}
		if role.IsProjectScoped() {
			return fmt.Errorf("%w: роль %q не является корневой", ErrValidation, role.Name)
		}

		if existing != nil {
			hasProjectRole, err := s.groups.HasProjectRole(ctx, existing.ID)
			if err != nil {
				return storeError("проверка ролей группы", err)
			}
			if hasProjectRole {
				return fmt.Errorf("%w: группа с ролью в проекте не может получить корневую роль", ErrValidation)
			}
		}
	}

	return nil
}

// GetProjectGroups возвращает группы с ролями в проекте (project == nil — во всех проектах).
// Одна запись на каждое назначение роли; без назначений — пустой срез.
func (s *GroupService) GetProjectGroups(ctx context.Context, project *string) ([]*model.ProjectGroup, error) {
	groupRoles, err := s.groups.GetProjectGroupRoles(ctx, project)
	if err != nil {
		return nil, storeError("получение ролей групп", err)
	}
	if len(groupRoles) == 0 {
		return []*model.ProjectGroup{}, nil
	}

	ids := make([]string, 0, len(groupRoles))
	for _, gr := range groupRoles {
		ids = append(ids, gr.GroupID)
	}
	groups, err := s.groups.GetAllWithID(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, storeError("получение групп", err)
	}
	if err := s.attachMembers(ctx, groups); err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	result := make([]*model.ProjectGroup, 0, len(groupRoles))
	for _, gr := range groupRoles {
		g, ok := byID[gr.GroupID]
		if !ok {
			continue
		}
		result = append(result, &model.ProjectGroup{
			Group:   *g,
			Project: gr.Project,
			RoleID:  gr.RoleID,
			AddedAt: gr.CreatedAt,
		})
	}
	return result, nil
}

// DeleteGroup удаляет группу. Членство и роли удаляет хранилище.
func (s *GroupService) DeleteGroup(ctx context.Context, id string) error {
	if err := s.groups.Delete(ctx, id); err != nil {
		return storeError("удаление группы", err)
	}
	s.logger.Info("Группа удалена", slog.String("group_id", id))
	return nil
}

// GetRolesForProject возвращает назначения ролей групп в проекте.
func (s *GroupService) GetRolesForProject(ctx context.Context, project string) ([]model.GroupRole, error) {
	roles, err := s.groups.GetRolesForProject(ctx, project)
	if err != nil {
		return nil, storeError("получение ролей проекта", err)
	}
	return roles, nil
}

// ListRoles возвращает все роли.
func (s *GroupService) ListRoles(ctx context.Context) ([]*model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, storeError("получение ролей", err)
	}
	return roles, nil
}

// GetGroupsForUser возвращает группы, в которых состоит пользователь.
func (s *GroupService) GetGroupsForUser(ctx context.Context, userID string) ([]*model.Group, error) {
	groups, err := s.groups.GetGroupsForUser(ctx, userID)
	if err != nil {
		return nil, storeError("получение групп пользователя", err)
	}
	return groups, nil
}

// SyncExternalGroups приводит членство пользователя в SSO-группах к списку внешних групп.
// externalGroups == nil — ничего не делает; пустой список убирает пользователя из всех SSO-групп.
// Повторный вызов с тем же списком изменений не вносит.
func (s *GroupService) SyncExternalGroups(
	ctx context.Context, userID string, externalGroups []string, actor string,
) (model.MembershipChange, error) {
	var change model.MembershipChange
	if externalGroups == nil {
		return change, nil
	}

	current, err := s.groups.GetGroupsForUser(ctx, userID)
	if err != nil {
		return change, storeError("получение групп пользователя", err)
	}
	mapped, err := s.groups.GetSSOMapped(ctx)
	if err != nil {
		return change, storeError("получение SSO-групп", err)
	}

	add, remove := externalGroupsDiff(current, mapped, externalGroups)

	added, err := s.groups.AddUserToGroups(ctx, userID, add, actor)
	if err != nil {
		return change, storeError("добавление пользователя в группы", err)
	}
	change.Added = add
	membershipChangesTotal.WithLabelValues("added", membershipSourceExternal).Add(float64(added))

	removed, err := s.groups.DeleteUserFromGroups(ctx, userID, remove)
	if err != nil {
		return change, storeError("удаление пользователя из групп", err)
	}
	change.Removed = remove
	membershipChangesTotal.WithLabelValues("removed", membershipSourceExternal).Add(float64(removed))

	if !change.Empty() {
		s.logger.Info("Членство пользователя синхронизировано с внешними группами",
			slog.String("user_id", userID),
			slog.Int("added", len(add)),
			slog.Int("removed", len(remove)),
		)
	}

	return change, nil
}

// AddGroupToRole назначает группе проектную роль.
// Группа с корневой ролью не может получить роль в проекте.
func (s *GroupService) AddGroupToRole(ctx context.Context, groupID string, roleID int, project, actor string) error {
	project = strings.TrimSpace(project)
	if project == "" {
		return fmt.Errorf("%w: проект обязателен", ErrValidation)
	}

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return storeError("получение группы", err)
	}

	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		return storeError("получение роли", err)
	}
	if !role.IsProjectScoped() {
		return fmt.Errorf("%w: роль %q не является проектной", ErrValidation, role.Name)
	}
	if group.RootRole != nil {
		return fmt.Errorf("%w: группа с корневой ролью не может получить роль в проекте", ErrValidation)
	}

	if err := s.groups.AddGroupToRole(ctx, groupID, roleID, project, actor); err != nil {
		return storeError("назначение роли группе", err)
	}

	return s.storeEvent(ctx, &model.Event{
		Type:      model.EventGroupRoleAdded,
		CreatedBy: actor,
		Data:      groupRolePayload{GroupID: groupID, GroupName: group.Name, RoleID: roleID, Project: project},
	})
}

// RemoveGroupFromRole снимает с группы роль в проекте.
func (s *GroupService) RemoveGroupFromRole(ctx context.Context, groupID string, roleID int, project, actor string) error {
	if err := s.groups.RemoveGroupFromRole(ctx, groupID, roleID, project); err != nil {
		return storeError("снятие роли с группы", err)
	}

	return s.storeEvent(ctx, &model.Event{
		Type:      model.EventGroupRoleRemoved,
		CreatedBy: actor,
		PreData:   groupRolePayload{GroupID: groupID, RoleID: roleID, Project: project},
	})
}

func (s *GroupService) storeEvent(ctx context.Context, e *model.Event) error {
	if err := s.events.Store(ctx, e); err != nil {
		return fmt.Errorf("запись события %s: %w", e.Type, err)
	}
	return nil
}

// groupPayload — представление группы в журнале событий.
type groupPayload struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	MappingsSSO []string `json:"mappingsSSO"`
	RootRole    *int     `json:"rootRole,omitempty"`
	Users       []string `json:"users"`
}

func newGroupPayload(input model.GroupInput) groupPayload {
	return groupPayload{
		ID:          input.ID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		MappingsSSO: nonNil(uniqueStrings(input.MappingsSSO)),
		RootRole:    input.RootRole,
		Users:       nonNil(uniqueStrings(input.UserIDs)),
	}
}

func groupPayloadFrom(g *model.Group, users []string) groupPayload {
	return groupPayload{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		MappingsSSO: nonNil(g.MappingsSSO),
		RootRole:    g.RootRole,
		Users:       nonNil(users),
	}
}

// groupRolePayload — назначение роли группе в журнале событий.
type groupRolePayload struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName,omitempty"`
	RoleID    int    `json:"roleId"`
	Project   string `json:"project"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
