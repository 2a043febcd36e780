package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
)

// RunState — состояние выполнения одного run в памяти Orchestrator.
//
// Отслеживает прогресс на уровне джобов: джоб считается завершённым,
// когда все его ячейки достигли финального статуса, и успешным,
// когда каждая из них PASSED.
type RunState struct {
	// Run — выполняемый run.
	Run *domain.Run

	// Def — разобранный снимок определения (run.Definition).
	Def *engine.Definition

	// DAG — граф зависимостей джобов.
	DAG *engine.DAG

	// Context — неизменяемый контекст запуска (event, ref).
	Context domain.RunContext

	// started — джобы, для которых ячейки уже созданы (или пропущены).
	started map[string]bool

	// pending — количество незавершённых ячеек по джобам.
	pending map[string]int

	// succeeded — джобы, все ячейки которых прошли.
	succeeded map[string]bool

	// failed — джобы, хотя бы одна ячейка которых упала.
	failed map[string]bool

	// skipped — джобы, пропущенные из-за упавшей зависимости.
	skipped map[string]bool

	// seenCells — уже учтённые завершения ячеек.
	// Защищает счётчики от повторной доставки cell.completed.
	seenCells map[uuid.UUID]bool

	mu sync.RWMutex
}

// NewRunState создаёт новое состояние run.
func NewRunState(run *domain.Run) *RunState {
	return &RunState{
		Run:       run,
		started:   make(map[string]bool),
		pending:   make(map[string]int),
		succeeded: make(map[string]bool),
		failed:    make(map[string]bool),
		skipped:   make(map[string]bool),
		seenCells: make(map[uuid.UUID]bool),
	}
}

// Initialize разбирает снимок определения и строит DAG.
//
// Возвращает ошибку, если определение невалидно или событие run
// не объявлено в триггерах. Такой run переводится в FAILED.
func (s *RunState) Initialize() error {
	def, err := engine.Parse([]byte(s.Run.Definition))
	if err != nil {
		return err
	}

	if !def.On.Allows(s.Run.Event) {
		return fmt.Errorf("%w: %s", ErrEventNotAllowed, s.Run.Event)
	}

	dag, err := engine.BuildDAG(def)
	if err != nil {
		return err
	}

	s.Def = def
	s.DAG = dag
	s.Context = s.Run.Context()

	return nil
}

// GetReadyJobs возвращает джобы, готовые к запуску:
// все needs завершились успешно, сам джоб ещё не запускался.
func (s *RunState) GetReadyJobs() []*engine.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DAG.GetReadyNodes(s.succeeded, s.started)
}

// AdoptCells регистрирует ячейки джоба — только что созданные
// или найденные в БД при повторном dispatch.
func (s *RunState) AdoptCells(jobID string, cells []domain.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(jobID, cells)
}

func (s *RunState) adoptLocked(jobID string, cells []domain.Cell) {
	s.started[jobID] = true

	pending := 0
	for i := range cells {
		cell := &cells[i]
		switch cell.Status {
		case domain.CellStatusPassed:
			s.seenCells[cell.ID] = true
		case domain.CellStatusFailed:
			s.seenCells[cell.ID] = true
			s.failed[jobID] = true
		case domain.CellStatusSkipped:
			s.seenCells[cell.ID] = true
			s.skipped[jobID] = true
		default: // QUEUED, RUNNING
			pending++
		}
	}
	s.pending[jobID] = pending

	if pending == 0 && !s.failed[jobID] && !s.skipped[jobID] {
		s.succeeded[jobID] = true
	}
}

// RestoreFromCells восстанавливает состояние из ячеек в БД.
// Используется, когда cell.completed приходит для run, которого нет
// в памяти (после рестарта Orchestrator).
func (s *RunState) RestoreFromCells(cells []domain.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byJob := make(map[string][]domain.Cell)
	for _, cell := range cells {
		byJob[cell.Job] = append(byJob[cell.Job], cell)
	}

	for jobID, jobCells := range byJob {
		s.adoptLocked(jobID, jobCells)
	}
}

// RecordCellResult учитывает завершение ячейки.
//
// Возвращает false, если ячейка уже была учтена — при повторной
// доставке сообщения или после восстановления из БД.
func (s *RunState) RecordCellResult(cellID uuid.UUID, jobID string, status domain.CellStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenCells[cellID] {
		return false
	}
	s.seenCells[cellID] = true

	if s.pending[jobID] > 0 {
		s.pending[jobID]--
	}

	if status == domain.CellStatusFailed {
		s.failed[jobID] = true
	}

	if s.started[jobID] && s.pending[jobID] == 0 && !s.failed[jobID] && !s.skipped[jobID] {
		s.succeeded[jobID] = true
	}

	return true
}

// MarkJobSkipped помечает джоб пропущенным из-за упавшей зависимости.
func (s *RunState) MarkJobSkipped(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[jobID] = true
	s.skipped[jobID] = true
	s.pending[jobID] = 0
}

// JobStarted возвращает true, если ячейки джоба уже созданы
// (или джоб пропущен).
func (s *RunState) JobStarted(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started[jobID]
}

// JobFinished возвращает true, если все ячейки джоба завершены.
func (s *RunState) JobFinished(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started[jobID] && s.pending[jobID] == 0
}

// JobFailed возвращает true, если хотя бы одна ячейка джоба упала.
func (s *RunState) JobFailed(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed[jobID]
}

// IsComplete возвращает true, если все джобы run завершены
// (успешно, с ошибкой или пропуском).
func (s *RunState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, node := range s.DAG.Order {
		if !s.started[node.ID] || s.pending[node.ID] > 0 {
			return false
		}
	}
	return true
}

// HasFailed возвращает true, если хотя бы один джоб завершился с ошибкой.
func (s *RunState) HasFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.failed) > 0
}

// FailedJobs возвращает отсортированный список ID упавших джобов.
func (s *RunState) FailedJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.failed))
	for id := range s.failed {
		jobs = append(jobs, id)
	}
	sort.Strings(jobs)
	return jobs
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.Run.ID
}

// PipelineID возвращает ID pipeline.
func (s *RunState) PipelineID() uuid.UUID {
	return s.Run.PipelineID
}

// RunStats — статистика выполнения run.
type RunStats struct {
	TotalJobs     int `json:"total_jobs"`
	SucceededJobs int `json:"succeeded_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	SkippedJobs   int `json:"skipped_jobs"`
	RunningJobs   int `json:"running_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	PendingCells  int `json:"pending_cells"`
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{TotalJobs: s.DAG.Size()}

	for _, node := range s.DAG.Order {
		id := node.ID
		switch {
		case s.succeeded[id]:
			stats.SucceededJobs++
		case s.failed[id] && s.pending[id] == 0:
			stats.FailedJobs++
		case s.skipped[id]:
			stats.SkippedJobs++
		case s.started[id]:
			stats.RunningJobs++
			stats.PendingCells += s.pending[id]
		default:
			stats.PendingJobs++
		}
	}

	return stats
}
