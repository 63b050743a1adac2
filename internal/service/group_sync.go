// group_sync.go — синхронизация членства в группах с Keycloak.
//
// ExternalGroupSyncService запускает фоновую горутину с ticker (FA_GROUP_SYNC_INTERVAL)
// и по запросу синхронизирует отдельного пользователя или весь realm.
//
// Синхронизация realm:
//  1. Постранично получить пользователей Keycloak (FA_GROUP_SYNC_PAGE_SIZE)
//  2. Сохранить каждого в таблицу users (source=keycloak)
//  3. Получить группы пользователя в Keycloak
//  4. GroupService.SyncExternalGroups — добавить в подразумеваемые группы, убрать из остальных SSO-групп
//
// Ошибка по одному пользователю не прерывает синхронизацию: она логируется и учитывается в UsersFailed.
//
// Prometheus-метрики:
//   - flag_admin_group_sync_duration_seconds — длительность синхронизации realm
//   - flag_admin_group_sync_users_total — обработанные пользователи по результату
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/keycloak"
	"github.com/bigkaa/flagadmin/internal/repository"
)

var (
	groupSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flag_admin_group_sync_duration_seconds",
		Help:    "Длительность синхронизации групп с Keycloak",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s … ~51s
	})
	groupSyncUsersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flag_admin_group_sync_users_total",
		Help: "Пользователи, обработанные синхронизацией групп",
	}, []string{"result"})
)

// UserDirectory — источник пользователей и их внешних групп (Keycloak).
type UserDirectory interface {
	ListUsers(ctx context.Context, query string, first, max int) ([]keycloak.KeycloakUser, error)
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
	GetUserGroups(ctx context.Context, userID string) ([]keycloak.KeycloakGroup, error)
}

// ExternalGroupSyncService — синхронизация членства в группах с Keycloak.
type ExternalGroupSyncService struct {
	directory     UserDirectory
	groupSvc      *GroupService
	accounts      repository.AccountRepository
	syncStateRepo repository.SyncStateRepository
	actor         string
	pageSize      int
	interval      time.Duration
	logger        *slog.Logger

	// running исключает параллельные синхронизации realm (ticker и ручной запуск)
	running sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewExternalGroupSyncService создаёт сервис синхронизации групп.
func NewExternalGroupSyncService(
	directory UserDirectory,
	groupSvc *GroupService,
	accounts repository.AccountRepository,
	syncStateRepo repository.SyncStateRepository,
	actor string,
	pageSize int,
	interval time.Duration,
	logger *slog.Logger,
) *ExternalGroupSyncService {
	return &ExternalGroupSyncService{
		directory:     directory,
		groupSvc:      groupSvc,
		accounts:      accounts,
		syncStateRepo: syncStateRepo,
		actor:         actor,
		pageSize:      pageSize,
		interval:      interval,
		logger:        logger.With(slog.String("component", "group_sync")),
	}
}

// Start запускает фоновую горутину с периодической синхронизацией.
func (s *ExternalGroupSyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация групп запущена",
			slog.String("interval", s.interval.String()),
			slog.Int("page_size", s.pageSize),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация групп остановлена")
				return
			case <-ticker.C:
				result, err := s.SyncNow(ctx)
				if err != nil {
					s.logger.Error("Ошибка периодической синхронизации групп",
						slog.String("error", err.Error()),
					)
					continue
				}
				s.logger.Info("Периодическая синхронизация групп завершена",
					slog.Int("total_users", result.TotalUsers),
					slog.Int("users_failed", result.UsersFailed),
					slog.Int("added", result.MembershipsAdded),
					slog.Int("removed", result.MembershipsRemoved),
				)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *ExternalGroupSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncUser синхронизирует членство одного пользователя по его группам в Keycloak.
func (s *ExternalGroupSyncService) SyncUser(ctx context.Context, userID string) (model.MembershipChange, error) {
	kcUser, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, keycloak.ErrNotFound) {
			return model.MembershipChange{}, fmt.Errorf("%w: пользователь %s отсутствует в Keycloak", ErrNotFound, userID)
		}
		return model.MembershipChange{}, fmt.Errorf("%w: %w", ErrIDPUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	}

	return s.syncKeycloakUser(ctx, kcUser)
}

// SyncNow выполняет синхронизацию всех пользователей realm.
// Возвращает ErrConflict, если синхронизация уже выполняется.
func (s *ExternalGroupSyncService) SyncNow(ctx context.Context) (*model.GroupSyncResult, error) {
	if !s.running.TryLock() {
		return nil, fmt.Errorf("%w: синхронизация групп уже выполняется", ErrConflict)
	}
	defer s.running.Unlock()

	startedAt := time.Now().UTC()
	result := &model.GroupSyncResult{}

	for first := 0; ; first += s.pageSize {
		users, err := s.directory.ListUsers(ctx, "", first, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: получение пользователей: %w", ErrIDPUnavailable, err) //nolint:errorlint // намеренный двойной wrap
		}

		for i := range users {
			result.TotalUsers++
			change, err := s.syncKeycloakUser(ctx, &users[i])
			if err != nil {
				result.UsersFailed++
				groupSyncUsersTotal.WithLabelValues("failed").Inc()
				s.logger.Warn("Ошибка синхронизации групп пользователя",
					slog.String("user_id", users[i].ID),
					slog.String("username", users[i].Username),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.UsersSynced++
			result.MembershipsAdded += len(change.Added)
			result.MembershipsRemoved += len(change.Removed)
			groupSyncUsersTotal.WithLabelValues("synced").Inc()
		}

		if len(users) < s.pageSize {
			break
		}
	}

	result.SyncedAt = time.Now().UTC()
	if err := s.syncStateRepo.UpdateGroupSyncAt(ctx, result.SyncedAt); err != nil {
		s.logger.Warn("Ошибка обновления last_group_sync_at", slog.String("error", err.Error()))
	}

	groupSyncDuration.Observe(result.SyncedAt.Sub(startedAt).Seconds())

	return result, nil
}

// syncKeycloakUser сохраняет аккаунт и приводит его членство к группам Keycloak.
func (s *ExternalGroupSyncService) syncKeycloakUser(ctx context.Context, kcUser *keycloak.KeycloakUser) (model.MembershipChange, error) {
	account := accountFromKeycloak(kcUser)
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return model.MembershipChange{}, storeError("сохранение пользователя", err)
	}

	groups, err := s.directory.GetUserGroups(ctx, kcUser.ID)
	if err != nil {
		return model.MembershipChange{}, fmt.Errorf("%w: группы пользователя: %w", ErrIDPUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	}

	return s.groupSvc.SyncExternalGroups(ctx, kcUser.ID, keycloak.GroupNames(groups), s.actor)
}

func accountFromKeycloak(u *keycloak.KeycloakUser) *model.Account {
	a := &model.Account{
		ID:       u.ID,
		Username: u.Username,
		Source:   model.AccountSourceKeycloak,
	}
	if name := u.DisplayName(); name != "" {
		a.Name = &name
	}
	if u.Email != "" {
		email := u.Email
		a.Email = &email
	}
	return a
}
