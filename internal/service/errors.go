// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/flagadmin/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNameExists — имя группы уже занято.
	ErrNameExists = errors.New("группа с таким именем уже существует")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)

// storeError сохраняет исходную ошибку хранилища и добавляет к ней
// сервисную категорию, чтобы HTTP-слой мог выбрать код ответа.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err) //nolint:errorlint // намеренный двойной wrap
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err) //nolint:errorlint // намеренный двойной wrap
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
