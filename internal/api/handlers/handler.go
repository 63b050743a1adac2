// handler.go — основной обработчик API flag-admin.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/flagadmin/internal/api/errors"
	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/service"
)

// GroupManager — операции с группами (service.GroupService).
type GroupManager interface {
	GetAll(ctx context.Context) ([]*model.Group, error)
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	CreateGroup(ctx context.Context, input model.GroupInput, actor string) (*model.Group, error)
	UpdateGroup(ctx context.Context, input model.GroupInput, actor string) (*model.Group, error)
	ValidateGroup(ctx context.Context, input model.GroupInput, existing *model.Group) error
	DeleteGroup(ctx context.Context, id string) error
	GetProjectGroups(ctx context.Context, project *string) ([]*model.ProjectGroup, error)
	GetRolesForProject(ctx context.Context, project string) ([]model.GroupRole, error)
	GetGroupsForUser(ctx context.Context, userID string) ([]*model.Group, error)
	SyncExternalGroups(ctx context.Context, userID string, externalGroups []string, actor string) (model.MembershipChange, error)
	AddGroupToRole(ctx context.Context, groupID string, roleID int, project, actor string) error
	RemoveGroupFromRole(ctx context.Context, groupID string, roleID int, project, actor string) error
	ListRoles(ctx context.Context) ([]*model.Role, error)
}

// IDPManager — статус Keycloak и синхронизация групп (service.IDPService).
type IDPManager interface {
	GetStatus(ctx context.Context) *service.IDPStatus
	SyncGroups(ctx context.Context) (*model.GroupSyncResult, error)
	SyncUser(ctx context.Context, userID string) (model.MembershipChange, error)
}

// AccountReader — пользователи и журнал событий (service.AccountService).
type AccountReader interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*model.Account, int, error)
	GetUser(ctx context.Context, id string) (*model.Account, error)
	ListEvents(ctx context.Context, eventType *string, limit, offset int) ([]*model.Event, int, error)
}

// APIHandler — обработчик REST API.
type APIHandler struct {
	groups   GroupManager
	idp      IDPManager
	accounts AccountReader
	logger   *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(groups GroupManager, idp IDPManager, accounts AccountReader, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		groups:   groups,
		idp:      idp,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
// Ответ сериализуется до записи заголовка: при ошибке клиент получает 500, а не пустой 200.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("Ошибка сериализации ответа", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// writeServiceError выбирает HTTP-ответ по категории ошибки сервиса.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNameExists):
		apierrors.NameExists(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Warn(op, slog.String("error", err.Error()), slog.String("path", r.URL.Path))
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	default:
		h.logger.Error(op, slog.String("error", err.Error()), slog.String("path", r.URL.Path))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// decodeJSON разбирает тело запроса; при ошибке отвечает 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return false
	}
	return true
}

// pagination читает limit и offset из query. Границы проверяет OpenAPI-валидатор,
// здесь значения дополнительно ограничиваются на случай вызова без него.
func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 100, 0
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = min(max(v, 1), 1000)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		offset = max(v, 0)
	}
	return limit, offset
}
