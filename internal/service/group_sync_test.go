package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/keycloak"
)

type syncFixture struct {
	groups    *fakeGroupRepo
	accounts  *fakeAccountRepo
	syncState *fakeSyncStateRepo
	directory *fakeDirectory
	svc       *ExternalGroupSyncService
}

func newSyncFixture(pageSize int, users ...keycloak.KeycloakUser) *syncFixture {
	f := &syncFixture{
		groups:    newFakeGroupRepo(),
		accounts:  newFakeAccountRepo(),
		syncState: &fakeSyncStateRepo{},
		directory: &fakeDirectory{users: users, groups: map[string][]string{}, failGroups: map[string]bool{}},
	}
	groupSvc := NewGroupService(f.groups, f.accounts, &fakeEventRepo{}, fakeRoleRepo{}, testLogger())
	f.svc = NewExternalGroupSyncService(f.directory, groupSvc, f.accounts, f.syncState,
		"group-sync", pageSize, time.Hour, testLogger())

	f.groups.addGroup("g-dev", "developers", "kc-dev")
	f.groups.addGroup("g-ops", "operations", "kc-ops")
	return f
}

func kcUsers(n int) []keycloak.KeycloakUser {
	users := make([]keycloak.KeycloakUser, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, keycloak.KeycloakUser{
			ID:       fmt.Sprintf("kc-%d", i),
			Username: fmt.Sprintf("user%d", i),
			Enabled:  true,
		})
	}
	return users
}

func TestSyncNow_Paging(t *testing.T) {
	tests := []struct {
		name      string
		users     int
		pageSize  int
		wantPages []int
	}{
		{name: "неполная последняя страница", users: 5, pageSize: 2, wantPages: []int{0, 2, 4}},
		{name: "полная последняя страница", users: 4, pageSize: 2, wantPages: []int{0, 2, 4}},
		{name: "пустой realm", users: 0, pageSize: 10, wantPages: []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(tt.pageSize, kcUsers(tt.users)...)

			result, err := f.svc.SyncNow(context.Background())
			if err != nil {
				t.Fatalf("SyncNow() ошибка: %v", err)
			}
			if result.TotalUsers != tt.users || result.UsersSynced != tt.users {
				t.Errorf("TotalUsers = %d, UsersSynced = %d, ожидалось %d", result.TotalUsers, result.UsersSynced, tt.users)
			}
			if !reflect.DeepEqual(f.directory.listCalls, tt.wantPages) {
				t.Errorf("запрошенные страницы = %v, ожидались %v", f.directory.listCalls, tt.wantPages)
			}
			if n, _ := f.accounts.Count(context.Background()); n != tt.users {
				t.Errorf("сохранено пользователей = %d, ожидалось %d", n, tt.users)
			}
		})
	}
}

func TestSyncNow_Memberships(t *testing.T) {
	f := newSyncFixture(10, kcUsers(3)...)
	f.directory.groups["kc-1"] = []string{"kc-dev"}
	f.directory.groups["kc-2"] = []string{"kc-dev", "kc-ops"}
	f.groups.addMember("g-ops", "kc-3")

	result, err := f.svc.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() ошибка: %v", err)
	}
	if result.MembershipsAdded != 3 || result.MembershipsRemoved != 1 {
		t.Errorf("добавлено %d, удалено %d, ожидалось 3 и 1", result.MembershipsAdded, result.MembershipsRemoved)
	}
	if got := f.groups.memberIDs("g-dev"); !reflect.DeepEqual(got, []string{"kc-1", "kc-2"}) {
		t.Errorf("участники developers = %v", got)
	}
	if got := f.groups.memberIDs("g-ops"); !reflect.DeepEqual(got, []string{"kc-2"}) {
		t.Errorf("участники operations = %v", got)
	}
	if f.syncState.last == nil || !f.syncState.last.Equal(result.SyncedAt) {
		t.Errorf("last_group_sync_at = %v, ожидалось %v", f.syncState.last, result.SyncedAt)
	}

	account, err := f.accounts.Get(context.Background(), "kc-1")
	if err != nil {
		t.Fatalf("аккаунт kc-1 не сохранён: %v", err)
	}
	if account.Source != model.AccountSourceKeycloak || account.Username != "user1" {
		t.Errorf("аккаунт = %+v", account)
	}

	// Повторная синхронизация ничего не меняет
	again, err := f.svc.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("повторный SyncNow() ошибка: %v", err)
	}
	if again.MembershipsAdded != 0 || again.MembershipsRemoved != 0 {
		t.Errorf("повторная синхронизация: добавлено %d, удалено %d", again.MembershipsAdded, again.MembershipsRemoved)
	}
}

func TestSyncNow_UserFailureDoesNotAbort(t *testing.T) {
	f := newSyncFixture(10, kcUsers(3)...)
	f.directory.groups["kc-1"] = []string{"kc-dev"}
	f.directory.groups["kc-3"] = []string{"kc-dev"}
	f.directory.failGroups["kc-2"] = true

	result, err := f.svc.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() ошибка: %v", err)
	}
	if result.UsersFailed != 1 || result.UsersSynced != 2 {
		t.Errorf("UsersFailed = %d, UsersSynced = %d, ожидалось 1 и 2", result.UsersFailed, result.UsersSynced)
	}
	if got := f.groups.memberIDs("g-dev"); !reflect.DeepEqual(got, []string{"kc-1", "kc-3"}) {
		t.Errorf("участники developers = %v", got)
	}
}

func TestSyncNow_DirectoryUnavailable(t *testing.T) {
	f := newSyncFixture(10, kcUsers(2)...)
	f.directory.errList = errors.New("connection refused")

	_, err := f.svc.SyncNow(context.Background())
	if !errors.Is(err, ErrIDPUnavailable) {
		t.Fatalf("SyncNow() ошибка = %v, ожидалась ErrIDPUnavailable", err)
	}
	if f.syncState.last != nil {
		t.Error("last_group_sync_at обновлён при недоступном Keycloak")
	}
}

func TestSyncNow_AlreadyRunning(t *testing.T) {
	f := newSyncFixture(10)

	f.svc.running.Lock()
	_, err := f.svc.SyncNow(context.Background())
	f.svc.running.Unlock()

	if !errors.Is(err, ErrConflict) {
		t.Errorf("SyncNow() во время синхронизации: ошибка = %v, ожидалась ErrConflict", err)
	}
}

func TestSyncUser(t *testing.T) {
	t.Run("пользователь есть в Keycloak", func(t *testing.T) {
		f := newSyncFixture(10, kcUsers(1)...)
		f.directory.groups["kc-1"] = []string{"kc-ops"}

		change, err := f.svc.SyncUser(context.Background(), "kc-1")
		if err != nil {
			t.Fatalf("SyncUser() ошибка: %v", err)
		}
		if !reflect.DeepEqual(change.Added, []string{"g-ops"}) || len(change.Removed) != 0 {
			t.Errorf("изменения = %+v", change)
		}
	})

	t.Run("пользователя нет в Keycloak", func(t *testing.T) {
		f := newSyncFixture(10)
		_, err := f.svc.SyncUser(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("SyncUser(missing) ошибка = %v, ожидалась ErrNotFound", err)
		}
	})

	t.Run("ошибка получения групп", func(t *testing.T) {
		f := newSyncFixture(10, kcUsers(1)...)
		f.directory.failGroups["kc-1"] = true

		_, err := f.svc.SyncUser(context.Background(), "kc-1")
		if !errors.Is(err, ErrIDPUnavailable) {
			t.Errorf("SyncUser() ошибка = %v, ожидалась ErrIDPUnavailable", err)
		}
	})
}

func TestStartStop(t *testing.T) {
	f := newSyncFixture(10, kcUsers(1)...)
	f.svc.interval = 10 * time.Millisecond

	f.svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		state, _ := f.syncState.Get(context.Background())
		if state.LastGroupSyncAt != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("периодическая синхронизация не выполнилась")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.svc.Stop()
}

func TestAccountFromKeycloak(t *testing.T) {
	a := accountFromKeycloak(&keycloak.KeycloakUser{
		ID: "kc-1", Username: "ann", Email: "ann@example.com", FirstName: "Ann", LastName: "Smith",
	})
	if a.Name == nil || *a.Name != "Ann Smith" || a.Email == nil || *a.Email != "ann@example.com" {
		t.Errorf("accountFromKeycloak() = %+v", a)
	}

	bare := accountFromKeycloak(&keycloak.KeycloakUser{ID: "kc-2", Username: "bob"})
	if bare.Name != nil || bare.Email != nil {
		t.Errorf("пустые имя и email должны давать nil: %+v", bare)
	}
}
