package domain

import "strings"

// EventKind — вид события, породившего запуск.
type EventKind string

const (
	// EventPush — push в репозиторий (ветка или тег).
	EventPush EventKind = "push"

	// EventPullRequest — открытие или обновление pull request.
	EventPullRequest EventKind = "pull_request"

	// EventSchedule — запуск по расписанию.
	EventSchedule EventKind = "schedule"

	// EventManual — ручной запуск через API или CLI.
	// Всегда разрешён, независимо от объявленных триггеров.
	EventManual EventKind = "manual"
)

// Valid возвращает true, если вид события известен системе.
func (e EventKind) Valid() bool {
	switch e {
	case EventPush, EventPullRequest, EventSchedule, EventManual:
		return true
	default:
		return false
	}
}

// Permission — область доступа pipeline к метаданным репозитория.
type Permission string

const (
	// PermissionRead — доступ только на чтение.
	PermissionRead Permission = "read"

	// PermissionWrite — доступ на чтение и запись.
	PermissionWrite Permission = "write"
)

// Valid возвращает true, если область доступа известна системе.
func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// TagRefPrefix — префикс ref'а, по которому распознаётся тег.
const TagRefPrefix = "refs/tags/"

// RunContext — неизменяемые метаданные запуска.
//
// Доступен условиям шагов и шаблонам. Содержит только то, что известно
// в момент триггера: вид события и ref. Выходы шагов сюда не попадают,
// поэтому условия не могут связывать ячейки между собой.
type RunContext struct {
	// Event — вид события, породившего запуск.
	Event EventKind `json:"event"`

	// Ref — полный ref (например, "refs/heads/main", "refs/tags/v1.2.3").
	Ref string `json:"ref"`
}

// TagRef возвращает true, если ref указывает на тег.
func (c RunContext) TagRef() bool {
	return strings.HasPrefix(c.Ref, TagRefPrefix)
}
