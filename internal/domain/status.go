package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (только из PENDING)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — ячейки run'а выполняются воркерами.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все ячейки прошли успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы одна ячейка упала, либо определение
	// не удалось разобрать.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён пользователем до начала выполнения.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// CellStatus — статус выполнения ячейки матрицы.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → PASSED
//	                 ↘ FAILED
//	       ↘ SKIPPED (needs-зависимость упала, ячейка не выполнялась)
type CellStatus string

const (
	// CellStatusQueued — ячейка в очереди, ожидает воркера.
	CellStatusQueued CellStatus = "QUEUED"

	// CellStatusRunning — ячейка выполняется воркером.
	CellStatusRunning CellStatus = "RUNNING"

	// CellStatusPassed — все выполненные шаги ячейки прошли.
	CellStatusPassed CellStatus = "PASSED"

	// CellStatusFailed — хотя бы один выполненный шаг ячейки упал.
	CellStatusFailed CellStatus = "FAILED"

	// CellStatusSkipped — ячейка не выполнялась из-за упавшей зависимости.
	// Не несёт сигнала pass/fail.
	CellStatusSkipped CellStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s CellStatus) IsTerminal() bool {
	switch s {
	case CellStatusPassed, CellStatusFailed, CellStatusSkipped:
		return true
	default:
		return false
	}
}

// StepOutcome — исход отдельного шага внутри ячейки.
type StepOutcome string

const (
	// StepOutcomePassed — шаг выполнен успешно.
	StepOutcomePassed StepOutcome = "PASSED"

	// StepOutcomeFailed — шаг завершился с ошибкой.
	StepOutcomeFailed StepOutcome = "FAILED"

	// StepOutcomeSkipped — условие шага не выполнилось; шаг пропущен
	// и не влияет на статус ячейки.
	StepOutcomeSkipped StepOutcome = "SKIPPED"

	// StepOutcomeSkippedAfterFailure — шаг не выполнялся, потому что
	// один из предыдущих шагов ячейки упал (fail-fast).
	StepOutcomeSkippedAfterFailure StepOutcome = "SKIPPED_AFTER_FAILURE"
)

// Executed возвращает true, если шаг реально выполнялся
// (в отличие от пропущенных).
func (o StepOutcome) Executed() bool {
	return o == StepOutcomePassed || o == StepOutcomeFailed
}
