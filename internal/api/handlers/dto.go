// dto.go — JSON-представления ресурсов API и их преобразование из доменной модели.
package handlers

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/service"
)

// groupRequest — тело POST/PUT /api/v1/groups и POST /api/v1/groups/validate.
// Отсутствующий users при обновлении оставляет состав без изменений.
type groupRequest struct {
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	MappingsSSO []string       `json:"mappingsSSO"`
	RootRole    *int           `json:"rootRole"`
	Users       []groupUserRef `json:"users"`
}

type groupUserRef struct {
	ID string `json:"id"`
}

func (req groupRequest) toInput(id string) model.GroupInput {
	input := model.GroupInput{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		MappingsSSO: req.MappingsSSO,
		RootRole:    req.RootRole,
	}
	if req.Users != nil {
		input.UserIDs = make([]string, 0, len(req.Users))
		for _, u := range req.Users {
			input.UserIDs = append(input.UserIDs, u.ID)
		}
	}
	return input
}

type externalGroupsRequest struct {
	Groups []string `json:"groups"`
}

type userResponse struct {
	ID        string               `json:"id"`
	Username  string               `json:"username"`
	Name      *string              `json:"name"`
	Email     *openapi_types.Email `json:"email"`
	Source    string               `json:"source"`
	CreatedAt time.Time            `json:"createdAt"`
}

func mapUser(a *model.Account) userResponse {
	resp := userResponse{
		ID:        a.ID,
		Username:  a.Username,
		Name:      a.Name,
		Source:    a.Source,
		CreatedAt: a.CreatedAt,
	}
	resp.Email = mapEmail(a.Email)
	return resp
}

// mapEmail возвращает адрес в формате схемы API.
// Адрес, не проходящий проверку формата email (например, заведённый в Keycloak
// как "admin@localhost"), отдаётся как null, чтобы не ломать сериализацию ответа.
func mapEmail(raw *string) *openapi_types.Email {
	if raw == nil {
		return nil
	}
	email := openapi_types.Email(*raw)
	if _, err := email.MarshalJSON(); err != nil {
		return nil
	}
	return &email
}

type memberResponse struct {
	User      userResponse `json:"user"`
	JoinedAt  time.Time    `json:"joinedAt"`
	CreatedBy *string      `json:"createdBy"`
}

type groupResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description *string          `json:"description"`
	MappingsSSO []string         `json:"mappingsSSO"`
	RootRole    *int             `json:"rootRole"`
	CreatedBy   *string          `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	Users       []memberResponse `json:"users"`
	Projects    []string         `json:"projects"`
}

func mapGroup(g *model.Group) groupResponse {
	resp := groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		MappingsSSO: g.MappingsSSO,
		RootRole:    g.RootRole,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		Projects:    g.Projects,
	}
	if resp.MappingsSSO == nil {
		resp.MappingsSSO = []string{}
	}
	if resp.Projects == nil {
		resp.Projects = []string{}
	}
	resp.Users = make([]memberResponse, 0, len(g.Users))
	for i := range g.Users {
		m := &g.Users[i]
		resp.Users = append(resp.Users, memberResponse{
			User:      mapUser(&m.User),
			JoinedAt:  m.JoinedAt,
			CreatedBy: m.CreatedBy,
		})
	}
	return resp
}

func mapGroups(groups []*model.Group) []groupResponse {
	items := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		items = append(items, mapGroup(g))
	}
	return items
}

type groupListResponse struct {
	Groups []groupResponse `json:"groups"`
}

type projectGroupResponse struct {
	groupResponse
	Project string    `json:"project"`
	RoleID  int       `json:"roleId"`
	AddedAt time.Time `json:"addedAt"`
}

type projectGroupListResponse struct {
	Groups []projectGroupResponse `json:"groups"`
}

func mapProjectGroups(groups []*model.ProjectGroup) projectGroupListResponse {
	items := make([]projectGroupResponse, 0, len(groups))
	for _, pg := range groups {
		items = append(items, projectGroupResponse{
			groupResponse: mapGroup(&pg.Group),
			Project:       pg.Project,
			RoleID:        pg.RoleID,
			AddedAt:       pg.AddedAt,
		})
	}
	return projectGroupListResponse{Groups: items}
}

type groupRoleResponse struct {
	GroupID   string    `json:"groupId"`
	RoleID    int       `json:"roleId"`
	Project   string    `json:"project"`
	CreatedBy *string   `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type groupRoleListResponse struct {
	Roles []groupRoleResponse `json:"roles"`
}

func mapGroupRoles(roles []model.GroupRole) groupRoleListResponse {
	items := make([]groupRoleResponse, 0, len(roles))
	for _, gr := range roles {
		items = append(items, groupRoleResponse{
			GroupID:   gr.GroupID,
			RoleID:    gr.RoleID,
			Project:   gr.Project,
			CreatedBy: gr.CreatedBy,
			CreatedAt: gr.CreatedAt,
		})
	}
	return groupRoleListResponse{Roles: items}
}

type roleResponse struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description"`
}

type roleListResponse struct {
	Roles []roleResponse `json:"roles"`
}

type userListResponse struct {
	Items   []userResponse `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"hasMore"`
}

type membershipChangeResponse struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func mapMembershipChange(c model.MembershipChange) membershipChangeResponse {
	resp := membershipChangeResponse{Added: c.Added, Removed: c.Removed}
	if resp.Added == nil {
		resp.Added = []string{}
	}
	if resp.Removed == nil {
		resp.Removed = []string{}
	}
	return resp
}

type idpStatusResponse struct {
	Connected       bool       `json:"connected"`
	Realm           string     `json:"realm"`
	KeycloakURL     string     `json:"keycloakUrl"`
	UsersCount      *int       `json:"usersCount"`
	LastGroupSyncAt *time.Time `json:"lastGroupSyncAt"`
	Error           *string    `json:"error"`
}

func mapIDPStatus(s *service.IDPStatus) idpStatusResponse {
	return idpStatusResponse{
		Connected:       s.Connected,
		Realm:           s.Realm,
		KeycloakURL:     s.KeycloakURL,
		UsersCount:      s.UsersCount,
		LastGroupSyncAt: s.LastGroupSyncAt,
		Error:           s.Error,
	}
}

type groupSyncResultResponse struct {
	TotalUsers         int       `json:"totalUsers"`
	UsersSynced        int       `json:"usersSynced"`
	UsersFailed        int       `json:"usersFailed"`
	MembershipsAdded   int       `json:"membershipsAdded"`
	MembershipsRemoved int       `json:"membershipsRemoved"`
	SyncedAt           time.Time `json:"syncedAt"`
}

type eventResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	CreatedBy string    `json:"createdBy"`
	Data      any       `json:"data"`
	PreData   any       `json:"preData"`
	CreatedAt time.Time `json:"createdAt"`
}

type eventListResponse struct {
	Items   []eventResponse `json:"items"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"hasMore"`
}
