package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/flagadmin/internal/domain/model"
)

// AccountRepository — учётные записи пользователей (таблица users).
type AccountRepository interface {
	// GetAllWithID возвращает аккаунты по набору ID одним запросом.
	GetAllWithID(ctx context.Context, ids []string) ([]*model.Account, error)
	// Get возвращает аккаунт по ID.
	Get(ctx context.Context, id string) (*model.Account, error)
	// Upsert создаёт аккаунт или обновляет username, name, email и source.
	Upsert(ctx context.Context, a *model.Account) error
	// List возвращает страницу аккаунтов, отсортированных по username.
	List(ctx context.Context, limit, offset int) ([]*model.Account, error)
	// Count возвращает количество аккаунтов.
	Count(ctx context.Context) (int, error)
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий аккаунтов.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `id, username, name, email, source, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Username, &a.Name, &a.Email, &a.Source, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *accountRepo) queryAccounts(ctx context.Context, query string, args ...any) ([]*model.Account, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *accountRepo) GetAllWithID(ctx context.Context, ids []string) ([]*model.Account, error) {
	if len(ids) == 0 {
		return []*model.Account{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = ANY($1::text[])`, accountColumns)
	return r.queryAccounts(ctx, query, ids)
}

func (r *accountRepo) Get(ctx context.Context, id string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, accountColumns)
	a, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return a, nil
}

func (r *accountRepo) Upsert(ctx context.Context, a *model.Account) error {
	if a.Source == "" {
		a.Source = model.AccountSourceLocal
	}

	query := `
		INSERT INTO users (id, username, name, email, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, name = EXCLUDED.name,
			email = EXCLUDED.email, source = EXCLUDED.source
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.Username, a.Name, a.Email, a.Source).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (r *accountRepo) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		ORDER BY username, id
		LIMIT $1 OFFSET $2`, accountColumns)
	return r.queryAccounts(ctx, query, limit, offset)
}

func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}
