package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — сохранённое определение CI-конвейера.
//
// Pipeline — это "рецепт" сборки: YAML-описание триггеров, прав доступа,
// джобов, матрицы и шагов. Каждый запуск (Run) получает снимок исходника
// на момент запуска, поэтому последующие правки не меняют историю.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя pipeline (например, "build-main", "nightly").
	// Используется для удобной идентификации пользователем.
	Name string `json:"name"`

	// Source — YAML-исходник определения.
	// Парсится заново при каждом запуске; значения секретов здесь
	// не встречаются никогда, только имена.
	Source string `json:"source"`

	// IsActive — флаг активности. Неактивные pipelines не запускаются
	// по расписанию; ручной запуск остаётся доступным.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания pipeline.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения исходника.
	UpdatedAt time.Time `json:"updated_at"`
}
