package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/flagadmin/internal/domain/model"
)

// RoleRepository — справочник ролей (только чтение).
type RoleRepository interface {
	// Get возвращает роль по ID.
	Get(ctx context.Context, id int) (*model.Role, error)
	// List возвращает все роли, отсортированные по ID.
	List(ctx context.Context) ([]*model.Role, error)
}

// roleRepo — реализация RoleRepository.
type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) Get(ctx context.Context, id int) (*model.Role, error) {
	role := &model.Role{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, type, description FROM roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Type, &role.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения роли: %w", err)
	}
	return role, nil
}

func (r *roleRepo) List(ctx context.Context) ([]*model.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, type, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Role, 0)
	for rows.Next() {
		role := &model.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Type, &role.Description); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		result = append(result, role)
	}
	return result, rows.Err()
}
