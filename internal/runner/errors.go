package runner

import "errors"

// Ошибки раннера.
var (
	// ErrUnknownJob — ячейка ссылается на джоб, которого нет в определении.
	ErrUnknownJob = errors.New("job not found in definition")

	// ErrEventNotAllowed — событие запуска не объявлено в триггерах
	// определения.
	ErrEventNotAllowed = errors.New("event is not declared in pipeline triggers")
)
