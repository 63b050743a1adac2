// accounts.go — чтение учётных записей и журнала событий для API.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/repository"
)

// AccountService — список пользователей и журнал событий.
type AccountService struct {
	accounts repository.AccountRepository
	events   repository.EventRepository
	logger   *slog.Logger
}

// NewAccountService создаёт сервис пользователей.
func NewAccountService(
	accounts repository.AccountRepository,
	events repository.EventRepository,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		events:   events,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// ListUsers возвращает страницу пользователей и их общее количество.
func (s *AccountService) ListUsers(ctx context.Context, limit, offset int) ([]*model.Account, int, error) {
	users, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, storeError("получение пользователей", err)
	}
	total, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, 0, storeError("подсчёт пользователей", err)
	}
	return users, total, nil
}

// GetUser возвращает пользователя по ID.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.Account, error) {
	user, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, storeError("получение пользователя", err)
	}
	return user, nil
}

// ListEvents возвращает страницу журнала событий (новые первыми) и общее количество.
func (s *AccountService) ListEvents(ctx context.Context, eventType *string, limit, offset int) ([]*model.Event, int, error) {
	events, err := s.events.List(ctx, eventType, limit, offset)
	if err != nil {
		return nil, 0, storeError("получение событий", err)
	}
	total, err := s.events.Count(ctx, eventType)
	if err != nil {
		return nil, 0, storeError("подсчёт событий", err)
	}
	return events, total, nil
}
