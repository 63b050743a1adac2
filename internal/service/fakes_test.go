package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/keycloak"
	"github.com/bigkaa/flagadmin/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// --- GroupRepository в памяти ---

// fakeGroupRepo хранит группы, членство и роли в памяти
// и записывает все изменяющие вызовы в writes.
type fakeGroupRepo struct {
	mu      sync.Mutex
	groups  []*model.Group
	members []model.GroupUser
	roles   []model.GroupRole
	writes  []string

	// errDeleteUsers — ошибка, возвращаемая удалением участников
	errDeleteUsers error
	// raceMembers вставляются перед первой следующей операцией добавления,
	// имитируя параллельную запись между чтением состава и вставкой
	raceMembers []model.GroupUser
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{}
}

func copyGroup(g *model.Group) *model.Group {
	c := *g
	c.MappingsSSO = append([]string(nil), g.MappingsSSO...)
	c.Users = nil
	c.Projects = nil
	return &c
}

func (r *fakeGroupRepo) find(id string) *model.Group {
	for _, g := range r.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (r *fakeGroupRepo) isMember(groupID, userID string) bool {
	for _, m := range r.members {
		if m.GroupID == groupID && m.UserID == userID {
			return true
		}
	}
	return false
}

// addGroup добавляет группу напрямую, минуя сервис.
func (r *fakeGroupRepo) addGroup(id, name string, mappings ...string) *model.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &model.Group{ID: id, Name: name, MappingsSSO: mappings, CreatedAt: time.Now()}
	r.groups = append(r.groups, g)
	return g
}

func (r *fakeGroupRepo) addMember(groupID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, model.GroupUser{GroupID: groupID, UserID: userID, JoinedAt: time.Now()})
}

func (r *fakeGroupRepo) addRole(groupID string, roleID int, project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, model.GroupRole{GroupID: groupID, RoleID: roleID, Project: project, CreatedAt: time.Now()})
}

// memberIDs возвращает отсортированных участников группы.
func (r *fakeGroupRepo) memberIDs(groupID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, m := range r.members {
		if m.GroupID == groupID {
			ids = append(ids, m.UserID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *fakeGroupRepo) writeLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func (r *fakeGroupRepo) GetAll(_ context.Context) ([]*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.Group, 0, len(r.groups))
	for _, g := range r.groups {
		result = append(result, copyGroup(g))
	}
	return result, nil
}

func (r *fakeGroupRepo) GetAllWithID(_ context.Context, ids []string) ([]*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := toSet(ids)
	result := make([]*model.Group, 0)
	for _, g := range r.groups {
		if want[g.ID] {
			result = append(result, copyGroup(g))
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) GetSSOMapped(_ context.Context) ([]*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.Group, 0)
	for _, g := range r.groups {
		if len(g.MappingsSSO) > 0 {
			result = append(result, copyGroup(g))
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) Get(_ context.Context, id string) (*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.find(id)
	if g == nil {
		return nil, repository.ErrNotFound
	}
	return copyGroup(g), nil
}

func (r *fakeGroupRepo) Create(_ context.Context, g *model.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.groups {
		if existing.Name == g.Name {
			return repository.ErrConflict
		}
	}
	g.CreatedAt = time.Now()
	r.groups = append(r.groups, copyGroup(g))
	r.writes = append(r.writes, "create:"+g.Name)
	return nil
}

func (r *fakeGroupRepo) Update(_ context.Context, g *model.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.find(g.ID)
	if stored == nil {
		return repository.ErrNotFound
	}
	stored.Name = g.Name
	stored.Description = g.Description
	stored.MappingsSSO = g.MappingsSSO
	stored.RootRole = g.RootRole
	g.CreatedBy = stored.CreatedBy
	g.CreatedAt = stored.CreatedAt
	r.writes = append(r.writes, "update:"+g.Name)
	return nil
}

func (r *fakeGroupRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.groups {
		if g.ID == id {
			r.groups = append(r.groups[:i], r.groups[i+1:]...)
			r.writes = append(r.writes, "delete:"+id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeGroupRepo) ExistsWithName(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeGroupRepo) HasProjectRole(_ context.Context, groupID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gr := range r.roles {
		if gr.GroupID == groupID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeGroupRepo) GetAllUsersByGroups(_ context.Context, groupIDs []string) ([]model.GroupUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := toSet(groupIDs)
	result := make([]model.GroupUser, 0)
	for _, m := range r.members {
		if want[m.GroupID] {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) GetGroupProjects(_ context.Context, groupIDs []string) ([]model.GroupProject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := toSet(groupIDs)
	seen := make(map[model.GroupProject]bool)
	result := make([]model.GroupProject, 0)
	for _, gr := range r.roles {
		gp := model.GroupProject{GroupID: gr.GroupID, Project: gr.Project}
		if want[gr.GroupID] && !seen[gp] {
			seen[gp] = true
			result = append(result, gp)
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) GetProjectGroupRoles(_ context.Context, project *string) ([]model.GroupRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]model.GroupRole, 0)
	for _, gr := range r.roles {
		if project == nil || gr.Project == *project {
			result = append(result, gr)
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) GetRolesForProject(ctx context.Context, project string) ([]model.GroupRole, error) {
	return r.GetProjectGroupRoles(ctx, &project)
}

func (r *fakeGroupRepo) GetGroupsForUser(_ context.Context, userID string) ([]*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.Group, 0)
	for _, g := range r.groups {
		if r.isMember(g.ID, userID) {
			result = append(result, copyGroup(g))
		}
	}
	return result, nil
}

func (r *fakeGroupRepo) applyRace() {
	r.members = append(r.members, r.raceMembers...)
	r.raceMembers = nil
}

func (r *fakeGroupRepo) AddUsersToGroup(_ context.Context, groupID string, userIDs []string, actor string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyRace()
	var n int64
	for _, u := range userIDs {
		if r.isMember(groupID, u) {
			continue
		}
		r.members = append(r.members, model.GroupUser{GroupID: groupID, UserID: u, CreatedBy: &actor, JoinedAt: time.Now()})
		r.writes = append(r.writes, "add:"+groupID+":"+u)
		n++
	}
	return n, nil
}

func (r *fakeGroupRepo) DeleteUsersFromGroup(_ context.Context, groupID string, userIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(userIDs) == 0 {
		return 0, nil
	}
	if r.errDeleteUsers != nil {
		return 0, r.errDeleteUsers
	}
	remove := toSet(userIDs)
	var n int64
	kept := r.members[:0]
	for _, m := range r.members {
		if m.GroupID == groupID && remove[m.UserID] {
			r.writes = append(r.writes, "remove:"+groupID+":"+m.UserID)
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.members = kept
	return n, nil
}

func (r *fakeGroupRepo) AddUserToGroups(_ context.Context, userID string, groupIDs []string, actor string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyRace()
	var n int64
	for _, gid := range groupIDs {
		if r.isMember(gid, userID) {
			continue
		}
		r.members = append(r.members, model.GroupUser{GroupID: gid, UserID: userID, CreatedBy: &actor, JoinedAt: time.Now()})
		r.writes = append(r.writes, "add:"+gid+":"+userID)
		n++
	}
	return n, nil
}

func (r *fakeGroupRepo) DeleteUserFromGroups(_ context.Context, userID string, groupIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remove := toSet(groupIDs)
	var n int64
	kept := r.members[:0]
	for _, m := range r.members {
		if m.UserID == userID && remove[m.GroupID] {
			r.writes = append(r.writes, "remove:"+m.GroupID+":"+userID)
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.members = kept
	return n, nil
}

func (r *fakeGroupRepo) AddGroupToRole(_ context.Context, groupID string, roleID int, project, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gr := range r.roles {
		if gr.GroupID == groupID && gr.RoleID == roleID && gr.Project == project {
			return repository.ErrConflict
		}
	}
	r.roles = append(r.roles, model.GroupRole{GroupID: groupID, RoleID: roleID, Project: project, CreatedBy: &actor, CreatedAt: time.Now()})
	r.writes = append(r.writes, "role-add:"+groupID)
	return nil
}

func (r *fakeGroupRepo) RemoveGroupFromRole(_ context.Context, groupID string, roleID int, project string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, gr := range r.roles {
		if gr.GroupID == groupID && gr.RoleID == roleID && gr.Project == project {
			r.roles = append(r.roles[:i], r.roles[i+1:]...)
			r.writes = append(r.writes, "role-remove:"+groupID)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- AccountRepository в памяти ---

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	order    []string
}

func newFakeAccountRepo(ids ...string) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]*model.Account)}
	for _, id := range ids {
		_ = r.Upsert(context.Background(), &model.Account{ID: id, Username: "user-" + id})
	}
	return r
}

func (r *fakeAccountRepo) GetAllWithID(_ context.Context, ids []string) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok {
			c := *a
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r *fakeAccountRepo) Get(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *fakeAccountRepo) Upsert(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Source == "" {
		a.Source = model.AccountSourceLocal
	}
	if _, ok := r.accounts[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	c := *a
	r.accounts[a.ID] = &c
	return nil
}

func (r *fakeAccountRepo) List(_ context.Context, limit, offset int) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*model.Account, 0)
	for i := offset; i < len(r.order) && len(result) < limit; i++ {
		c := *r.accounts[r.order[i]]
		result = append(result, &c)
	}
	return result, nil
}

func (r *fakeAccountRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts), nil
}

// --- EventRepository в памяти ---

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *fakeEventRepo) Store(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(len(r.events) + 1)
	e.CreatedAt = time.Now()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) List(_ context.Context, eventType *string, limit, offset int) ([]*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var filtered []*model.Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if eventType == nil || r.events[i].Type == *eventType {
			filtered = append(filtered, r.events[i])
		}
	}
	result := make([]*model.Event, 0)
	for i := offset; i < len(filtered) && len(result) < limit; i++ {
		result = append(result, filtered[i])
	}
	return result, nil
}

func (r *fakeEventRepo) Count(ctx context.Context, eventType *string) (int, error) {
	list, _ := r.List(ctx, eventType, 1<<30, 0)
	return len(list), nil
}

func (r *fakeEventRepo) all() []*model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Event(nil), r.events...)
}

// --- RoleRepository с предустановленными ролями ---

type fakeRoleRepo struct{}

var seededRoles = []*model.Role{
	{ID: 1, Name: "Admin", Type: model.RoleTypeRoot},
	{ID: 2, Name: "Editor", Type: model.RoleTypeRoot},
	{ID: 3, Name: "Viewer", Type: model.RoleTypeRoot},
	{ID: 4, Name: "Owner", Type: model.RoleTypeProject},
	{ID: 5, Name: "Member", Type: model.RoleTypeProject},
}

func (fakeRoleRepo) Get(_ context.Context, id int) (*model.Role, error) {
	for _, r := range seededRoles {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (fakeRoleRepo) List(_ context.Context) ([]*model.Role, error) {
	return seededRoles, nil
}

// --- SyncStateRepository в памяти ---

type fakeSyncStateRepo struct {
	mu   sync.Mutex
	last *time.Time
}

func (r *fakeSyncStateRepo) Get(_ context.Context) (*model.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.SyncState{ID: 1, LastGroupSyncAt: r.last}, nil
}

func (r *fakeSyncStateRepo) UpdateGroupSyncAt(_ context.Context, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &t
	return nil
}

// --- UserDirectory (Keycloak) в памяти ---

type fakeDirectory struct {
	mu     sync.Mutex
	users  []keycloak.KeycloakUser
	groups map[string][]string
	// failGroups — пользователи, для которых GetUserGroups возвращает ошибку
	failGroups map[string]bool
	errList    error
	// listCalls — запрошенные страницы (first)
	listCalls []int
}

func (d *fakeDirectory) ListUsers(_ context.Context, _ string, first, max int) ([]keycloak.KeycloakUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls = append(d.listCalls, first)
	if d.errList != nil {
		return nil, d.errList
	}
	if first >= len(d.users) {
		return []keycloak.KeycloakUser{}, nil
	}
	end := first + max
	if end > len(d.users) {
		end = len(d.users)
	}
	return append([]keycloak.KeycloakUser(nil), d.users[first:end]...), nil
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (*keycloak.KeycloakUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.ID == id {
			c := u
			return &c, nil
		}
	}
	return nil, keycloak.ErrNotFound
}

func (d *fakeDirectory) GetUserGroups(_ context.Context, userID string) ([]keycloak.KeycloakGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failGroups[userID] {
		return nil, io.ErrUnexpectedEOF
	}
	var groups []keycloak.KeycloakGroup
	for _, name := range d.groups[userID] {
		groups = append(groups, keycloak.KeycloakGroup{ID: "kc-" + name, Name: name, Path: "/" + name})
	}
	return groups, nil
}

func (d *fakeDirectory) RealmInfo(_ context.Context) (*keycloak.RealmRepresentation, error) {
	if d.errList != nil {
		return nil, d.errList
	}
	return &keycloak.RealmRepresentation{Realm: "flagadmin", Enabled: true}, nil
}

func (d *fakeDirectory) CountUsers(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users), nil
}
