package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/flagadmin/internal/domain/model"
)

// EventRepository — журнал событий (append-only).
type EventRepository interface {
	// Store добавляет событие. ID и CreatedAt заполняются из БД.
	Store(ctx context.Context, e *model.Event) error
	// List возвращает страницу событий, новые первыми. eventType == nil — все типы.
	List(ctx context.Context, eventType *string, limit, offset int) ([]*model.Event, error)
	// Count возвращает количество событий.
	Count(ctx context.Context, eventType *string) (int, error)
}

// eventRepo — реализация EventRepository.
type eventRepo struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий журнала событий.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Store(ctx context.Context, e *model.Event) error {
	data, err := marshalPayload(e.Data)
	if err != nil {
		return fmt.Errorf("ошибка сериализации data события: %w", err)
	}
	preData, err := marshalPayload(e.PreData)
	if err != nil {
		return fmt.Errorf("ошибка сериализации pre_data события: %w", err)
	}

	query := `
		INSERT INTO events (type, created_by, data, pre_data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	if err := r.db.QueryRow(ctx, query, e.Type, e.CreatedBy, data, preData).
		Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("ошибка записи события %s: %w", e.Type, err)
	}
	return nil
}

func (r *eventRepo) List(ctx context.Context, eventType *string, limit, offset int) ([]*model.Event, error) {
	query := `
		SELECT id, type, created_by, data, pre_data, created_at
		FROM events
		WHERE $1::text IS NULL OR type = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Event, 0)
	for rows.Next() {
		e := &model.Event{}
		var data, preData []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.CreatedBy, &data, &preData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		if e.Data, err = unmarshalPayload(data); err != nil {
			return nil, fmt.Errorf("ошибка разбора data события %d: %w", e.ID, err)
		}
		if e.PreData, err = unmarshalPayload(preData); err != nil {
			return nil, fmt.Errorf("ошибка разбора pre_data события %d: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *eventRepo) Count(ctx context.Context, eventType *string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE $1::text IS NULL OR type = $1`, eventType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта событий: %w", err)
	}
	return count, nil
}

// marshalPayload сериализует полезную нагрузку события; nil остаётся NULL.
func marshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalPayload(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
