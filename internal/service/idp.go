// idp.go — сервис статуса Identity Provider (Keycloak).
// GetStatus — проверка подключения, RealmInfo, подсчёт пользователей.
// SyncGroups — принудительная синхронизация групп через ExternalGroupSyncService.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/keycloak"
	"github.com/bigkaa/flagadmin/internal/repository"
)

// RealmInspector — сведения о realm Keycloak.
type RealmInspector interface {
	RealmInfo(ctx context.Context) (*keycloak.RealmRepresentation, error)
	CountUsers(ctx context.Context) (int, error)
}

// IDPService — сервис статуса Identity Provider.
type IDPService struct {
	realm         RealmInspector
	syncStateRepo repository.SyncStateRepository
	groupSyncSvc  *ExternalGroupSyncService
	keycloakURL   string
	realmName     string
	logger        *slog.Logger
}

// IDPStatus — статус подключения к Keycloak.
type IDPStatus struct {
	Connected       bool
	Realm           string
	KeycloakURL     string
	UsersCount      *int
	LastGroupSyncAt *time.Time
	Error           *string
}

// NewIDPService создаёт сервис статуса IdP.
func NewIDPService(
	realm RealmInspector,
	syncStateRepo repository.SyncStateRepository,
	groupSyncSvc *ExternalGroupSyncService,
	keycloakURL, realmName string,
	logger *slog.Logger,
) *IDPService {
	return &IDPService{
		realm:         realm,
		syncStateRepo: syncStateRepo,
		groupSyncSvc:  groupSyncSvc,
		keycloakURL:   keycloakURL,
		realmName:     realmName,
		logger:        logger.With(slog.String("component", "idp_service")),
	}
}

// GetStatus возвращает статус подключения к Keycloak.
func (s *IDPService) GetStatus(ctx context.Context) *IDPStatus {
	status := &IDPStatus{
		Realm:       s.realmName,
		KeycloakURL: s.keycloakURL,
	}

	if syncState, err := s.syncStateRepo.Get(ctx); err != nil {
		s.logger.Warn("Ошибка получения sync state", slog.String("error", err.Error()))
	} else {
		status.LastGroupSyncAt = syncState.LastGroupSyncAt
	}

	if _, err := s.realm.RealmInfo(ctx); err != nil {
		errMsg := fmt.Sprintf("Keycloak недоступен: %v", err)
		status.Error = &errMsg
		return status
	}
	status.Connected = true

	usersCount, err := s.realm.CountUsers(ctx)
	if err != nil {
		s.logger.Warn("Ошибка подсчёта пользователей", slog.String("error", err.Error()))
	} else {
		status.UsersCount = &usersCount
	}

	return status
}

// SyncGroups выполняет принудительную синхронизацию групп всех пользователей realm.
func (s *IDPService) SyncGroups(ctx context.Context) (*model.GroupSyncResult, error) {
	s.logger.Info("Принудительная синхронизация групп запущена")

	result, err := s.groupSyncSvc.SyncNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("синхронизация групп: %w", err)
	}

	s.logger.Info("Принудительная синхронизация групп завершена",
		slog.Int("total_users", result.TotalUsers),
		slog.Int("users_synced", result.UsersSynced),
		slog.Int("users_failed", result.UsersFailed),
		slog.Int("added", result.MembershipsAdded),
		slog.Int("removed", result.MembershipsRemoved),
	)

	return result, nil
}

// SyncUser синхронизирует группы одного пользователя.
func (s *IDPService) SyncUser(ctx context.Context, userID string) (model.MembershipChange, error) {
	return s.groupSyncSvc.SyncUser(ctx, userID)
}
