package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cell — одна комбинация значений матрицы, выполняемая как независимая
// единица работы.
//
// Cell создаётся Orchestrator'ом при разворачивании матрицы джоба
// и выполняется Worker'ом целиком: все шаги строго по порядку,
// без разделяемого состояния с соседними ячейками.
type Cell struct {
	// ID — уникальный идентификатор cell.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Job — ID джоба из определения pipeline.
	Job string `json:"job"`

	// Index — порядковый номер ячейки внутри джоба (начиная с 0).
	// Порядок детерминирован: он совпадает с порядком обхода матрицы.
	Index int `json:"index"`

	// Params — значения осей матрицы для этой ячейки.
	// Ключ — имя оси, значение — выбранное значение.
	// Пустая карта для джоба без матрицы.
	Params map[string]string `json:"params,omitempty"`

	// Status — текущий статус ячейки.
	Status CellStatus `json:"status"`

	// Steps — результаты шагов в порядке объявления.
	// Заполняется Worker'ом по завершении ячейки.
	Steps []StepResult `json:"steps,omitempty"`

	// Error — текст ошибки первого упавшего шага.
	// Значения секретов сюда не попадают.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания cell.
	CreatedAt time.Time `json:"created_at"`
}

// StepResult — исход одного шага внутри ячейки.
type StepResult struct {
	// Name — имя шага из определения.
	Name string `json:"name"`

	// Action — тип действия ("command", "checkout", "coverage-upload", ...).
	Action string `json:"action"`

	// Outcome — исход шага.
	Outcome StepOutcome `json:"outcome"`

	// Output — усечённый вывод шага (stdout+stderr или ответ сервиса).
	Output string `json:"output,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала шага. Нулевое для пропущенных шагов.
	StartedAt time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения шага. Нулевое для пропущенных шагов.
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность шага.
func (s StepResult) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Duration возвращает продолжительность выполнения ячейки.
func (c *Cell) Duration() time.Duration {
	if c.StartedAt == nil || c.FinishedAt == nil {
		return 0
	}
	return c.FinishedAt.Sub(*c.StartedAt)
}

// IsFinished возвращает true, если ячейка завершена.
func (c *Cell) IsFinished() bool {
	return c.Status.IsTerminal()
}

// MarkRunning переводит ячейку в статус RUNNING.
func (c *Cell) MarkRunning() {
	now := time.Now()
	c.Status = CellStatusRunning
	c.StartedAt = &now
}

// MarkPassed переводит ячейку в статус PASSED с результатами шагов.
func (c *Cell) MarkPassed(steps []StepResult) {
	now := time.Now()
	c.Status = CellStatusPassed
	c.FinishedAt = &now
	c.Steps = steps
}

// MarkFailed переводит ячейку в статус FAILED с результатами шагов
// и ошибкой первого упавшего шага.
func (c *Cell) MarkFailed(steps []StepResult, err string) {
	now := time.Now()
	c.Status = CellStatusFailed
	c.FinishedAt = &now
	c.Steps = steps
	c.Error = err
}

// MarkSkipped помечает ячейку пропущенной (needs-зависимость упала).
func (c *Cell) MarkSkipped() {
	now := time.Now()
	c.Status = CellStatusSkipped
	c.FinishedAt = &now
}
