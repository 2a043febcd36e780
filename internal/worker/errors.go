package worker

import "errors"

// Ошибки воркера.
var (
	// ErrCellNotFound — ячейка не найдена в БД.
	ErrCellNotFound = errors.New("cell not found")

	// ErrCellNotQueued — ячейка не в статусе QUEUED.
	ErrCellNotQueued = errors.New("cell is not in QUEUED status")

	// ErrRunNotFound — run ячейки не найден в БД.
	ErrRunNotFound = errors.New("run not found")
)
