package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// handleRunPending обрабатывает событие о новом pending run.
func (o *Orchestrator) handleRunPending(ctx context.Context, delivery *mq.Delivery) error {
	// Парсим payload
	payload, err := mq.ParsePayload[mq.RunPendingPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse run.pending payload", "error", err)
		// Повтор не исправит битый payload; run подхватит polling
		return fmt.Errorf("%w: %v", mq.ErrReject, err)
	}

	o.logger.Debug("received run.pending event", "run_id", payload.RunID)

	// Проверяем, не обрабатывается ли уже
	if o.isRunActive(payload.RunID) {
		o.logger.Debug("run already active, skipping", "run_id", payload.RunID)
		return nil
	}

	// Обрабатываем run
	if err := o.processRun(ctx, payload.RunID); err != nil {
		// Логируем, но не возвращаем ошибку для некоторых случаев
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
			o.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		o.logger.Error("failed to process run", "run_id", payload.RunID, "error", err)
		return err
	}

	return nil
}

// handleCellCompleted обрабатывает событие о завершённой ячейке.
func (o *Orchestrator) handleCellCompleted(ctx context.Context, delivery *mq.Delivery) error {
	// Парсим payload
	payload, err := mq.ParsePayload[mq.CellCompletedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse cell.completed payload", "error", err)
		// Повтор не исправит битый payload; run доведёт pollRunning
		return fmt.Errorf("%w: %v", mq.ErrReject, err)
	}

	o.logger.Debug("received cell.completed event",
		"cell_id", payload.CellID,
		"run_id", payload.RunID,
		"job", payload.Job,
		"status", payload.Status,
	)

	// Обрабатываем завершение ячейки
	if err := o.processCellCompleted(ctx, payload); err != nil {
		o.logger.Error("failed to process cell completion",
			"cell_id", payload.CellID,
			"run_id", payload.RunID,
			"error", err,
		)
		return err
	}

	return nil
}

// processRun обрабатывает новый run.
func (o *Orchestrator) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Загружаем run из БД
	run, err := o.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	// 2. Проверяем статус
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// 3. Создаём RunState
	state := NewRunState(run)

	// 4. Инициализируем (парсинг снимка, триггеры, DAG)
	if err := state.Initialize(); err != nil {
		return o.failRun(ctx, run, fmt.Sprintf("initialization failed: %v", err))
	}

	// 5. Добавляем в активные runs
	if err := o.addActiveRun(state); err != nil {
		return err
	}

	// 6. Переводим run в RUNNING
	run.MarkRunning()
	if err := o.runRepo.Update(ctx, run); err != nil {
		o.removeActiveRun(runID)
		return fmt.Errorf("update run to running: %w", err)
	}

	o.logger.Info("run started",
		"run_id", runID,
		"pipeline_id", run.PipelineID,
		"event", run.Event,
		"ref", run.Ref,
		"jobs", state.DAG.Size(),
	)

	// 7. Запускаем джобы без зависимостей
	if err := o.dispatchReadyJobs(ctx, state); err != nil {
		o.logger.Error("failed to dispatch initial jobs", "run_id", runID, "error", err)
		// Не удаляем из активных — попробуем при следующем событии
	}

	return nil
}

// processCellCompleted обрабатывает завершение ячейки.
func (o *Orchestrator) processCellCompleted(ctx context.Context, payload mq.CellCompletedPayload) error {
	// 1. Получаем активный RunState
	state := o.getActiveRun(payload.RunID)

	// Если run не в памяти, пытаемся восстановить
	if state == nil {
		var err error
		state, err = o.restoreRunState(ctx, payload.RunID)
		if err != nil {
			return fmt.Errorf("restore run state: %w", err)
		}
		if state == nil {
			// Run уже завершён или не существует
			o.logger.Debug("run not active and cannot restore", "run_id", payload.RunID)
			return nil
		}
	}

	// 2. Учитываем результат ячейки
	status := domain.CellStatus(payload.Status)
	if state.RecordCellResult(payload.CellID, payload.Job, status) {
		if status == domain.CellStatusFailed {
			o.logger.Warn("cell failed",
				"run_id", payload.RunID,
				"cell_id", payload.CellID,
				"job", payload.Job,
				"error", payload.Error,
			)
		} else {
			o.logger.Debug("cell completed",
				"run_id", payload.RunID,
				"cell_id", payload.CellID,
				"job", payload.Job,
			)
		}
	} else {
		// Уже учтена — повторная доставка или восстановление из БД
		o.logger.Debug("cell result already recorded",
			"run_id", payload.RunID,
			"cell_id", payload.CellID,
		)
	}

	// 3. Продвигаем run: пропуски, завершение или следующие джобы
	return o.advanceRun(ctx, state)
}

// advanceRun продвигает run после изменения состояния: помечает
// зависимые упавших джобов пропущенными, завершает run, если все джобы
// закончились, иначе запускает готовые.
//
// Идемпотентен: повторный вызов на том же состоянии ничего не ломает,
// поэтому используется и из обработчика cell.completed, и при
// восстановлении run из polling.
func (o *Orchestrator) advanceRun(ctx context.Context, state *RunState) error {
	// Если джоб упал — его зависимые не выполняются
	for _, jobID := range state.FailedJobs() {
		if state.JobFinished(jobID) {
			o.skipDownstreamJobs(ctx, state, jobID)
		}
	}

	// Проверяем завершение run
	if state.IsComplete() {
		return o.completeRun(ctx, state, !state.HasFailed())
	}

	// Запускаем следующие готовые джобы
	return o.dispatchReadyJobs(ctx, state)
}

// resumeRun восстанавливает RUNNING run, потерянный после рестарта,
// и продвигает его. Закрывает случай, когда последний cell.completed
// был подтверждён до падения, а финализация не успела записаться:
// без resume такой run остался бы RUNNING навсегда.
func (o *Orchestrator) resumeRun(ctx context.Context, runID uuid.UUID) error {
	state, err := o.restoreRunState(ctx, runID)
	if err != nil {
		return err
	}
	if state == nil {
		// Run уже завершён или не существует
		return nil
	}

	return o.advanceRun(ctx, state)
}

// dispatchReadyJobs разворачивает готовые джобы в ячейки и публикует их.
func (o *Orchestrator) dispatchReadyJobs(ctx context.Context, state *RunState) error {
	readyJobs := state.GetReadyJobs()

	if len(readyJobs) == 0 {
		return nil
	}

	o.logger.Debug("dispatching ready jobs",
		"run_id", state.RunID(),
		"count", len(readyJobs),
	)

	for _, node := range readyJobs {
		if err := o.dispatchJob(ctx, state, node); err != nil {
			o.logger.Error("failed to dispatch job",
				"run_id", state.RunID(),
				"job", node.ID,
				"error", err,
			)
			// Продолжаем с другими джобами
		}
	}

	return nil
}

// dispatchJob создаёт ячейки матрицы джоба и публикует их для Worker'ов.
//
// Повторный вызов безопасен: уже созданные ячейки переиспользуются,
// недостающие досоздаются (после частичного сбоя или рестарта).
func (o *Orchestrator) dispatchJob(ctx context.Context, state *RunState, node *engine.Node) error {
	cells, err := o.cellRepo.ListByRunAndJob(ctx, state.RunID(), node.ID)
	if err != nil {
		return fmt.Errorf("list cells: %w", err)
	}

	// Разворачиваем матрицу в детерминированном порядке.
	// Ячейки создаются по Index, поэтому после частичного сбоя
	// создание продолжается с места остановки.
	combos := node.Job.Strategy.Matrix.Expand()
	for i := len(cells); i < len(combos); i++ {
		cell := domain.Cell{
			ID:        uuid.New(),
			RunID:     state.RunID(),
			Job:       node.ID,
			Index:     i,
			Params:    combos[i],
			Status:    domain.CellStatusQueued,
			CreatedAt: time.Now(),
		}
		if err := o.cellRepo.Create(ctx, &cell); err != nil {
			return fmt.Errorf("create cell %s[%d]: %w", node.ID, i, err)
		}
		cells = append(cells, cell)
	}

	// Помечаем джоб запущенным
	state.AdoptCells(node.ID, cells)

	// Публикуем события для Worker'ов
	published := 0
	for i := range cells {
		cell := &cells[i]
		if cell.IsFinished() {
			continue
		}
		if err := o.publisher.PublishCellReady(ctx, cell.ID, cell.RunID); err != nil {
			o.logger.Warn("failed to publish cell.ready",
				"cell_id", cell.ID,
				"run_id", state.RunID(),
				"error", err,
			)
			// Ячейка создана в БД — Worker может забрать через polling
			continue
		}
		published++
	}

	o.logger.Debug("job dispatched",
		"run_id", state.RunID(),
		"job", node.ID,
		"cells", len(cells),
		"published", published,
	)

	return nil
}

// skipDownstreamJobs помечает зависимые джобы упавшего джоба пропущенными.
//
// Ячейки пропущенных джобов материализуются в БД со статусом SKIPPED,
// чтобы итог run показывал полную картину матрицы.
func (o *Orchestrator) skipDownstreamJobs(ctx context.Context, state *RunState, jobID string) {
	for _, node := range state.DAG.Downstream(jobID) {
		if node.Job == nil || state.JobStarted(node.ID) {
			continue
		}

		state.MarkJobSkipped(node.ID)

		for i, params := range node.Job.Strategy.Matrix.Expand() {
			cell := domain.Cell{
				ID:        uuid.New(),
				RunID:     state.RunID(),
				Job:       node.ID,
				Index:     i,
				Params:    params,
				CreatedAt: time.Now(),
			}
			cell.MarkSkipped()
			if err := o.cellRepo.Create(ctx, &cell); err != nil {
				o.logger.Error("failed to create skipped cell",
					"run_id", state.RunID(),
					"job", node.ID,
					"index", i,
					"error", err,
				)
			}
		}

		o.logger.Debug("job skipped",
			"run_id", state.RunID(),
			"job", node.ID,
			"failed_dependency", jobID,
		)
	}
}

// completeRun завершает run (успешно или с ошибкой).
func (o *Orchestrator) completeRun(ctx context.Context, state *RunState, success bool) error {
	run := state.Run

	if success {
		run.MarkSucceeded()
		o.logger.Info("run succeeded",
			"run_id", run.ID,
			"duration", run.Duration(),
		)
	} else {
		failedJobs := state.FailedJobs()
		errMsg := fmt.Sprintf("jobs failed: %v", failedJobs)
		run.MarkFailed(errMsg)
		o.logger.Warn("run failed",
			"run_id", run.ID,
			"failed_jobs", failedJobs,
			"duration", run.Duration(),
		)
	}

	// Обновляем в БД
	if err := o.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	telemetry.RecordRunFinished(string(run.Status), run.Duration())

	// Удаляем из активных
	o.removeActiveRun(run.ID)

	return nil
}

// failRun переводит run в статус FAILED.
func (o *Orchestrator) failRun(ctx context.Context, run *domain.Run, errMsg string) error {
	run.MarkFailed(errMsg)

	if err := o.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to failed: %w", err)
	}

	telemetry.RecordRunFinished(string(run.Status), run.Duration())

	o.logger.Warn("run failed early",
		"run_id", run.ID,
		"error", errMsg,
	)

	return fmt.Errorf("run failed: %s", errMsg)
}

// restoreRunState восстанавливает RunState из БД.
// Используется когда cell.completed приходит для run, которого нет в памяти
// (после рестарта Orchestrator).
func (o *Orchestrator) restoreRunState(ctx context.Context, runID uuid.UUID) (*RunState, error) {
	// Загружаем run
	run, err := o.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil // Run не существует
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	// Если run уже завершён — ничего не делаем
	if run.IsFinished() {
		return nil, nil
	}

	// Создаём и инициализируем state
	state := NewRunState(run)
	if err := state.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize state: %w", err)
	}

	// Загружаем ячейки и восстанавливаем состояние
	cells, err := o.cellRepo.ListByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list cells: %w", err)
	}
	state.RestoreFromCells(cells)

	// Добавляем в активные
	if err := o.addActiveRun(state); err != nil {
		if errors.Is(err, ErrRunAlreadyActive) {
			// Кто-то уже восстановил — возвращаем его
			return o.getActiveRun(runID), nil
		}
		return nil, err
	}

	o.logger.Info("run state restored",
		"run_id", runID,
		"stats", state.Stats(),
	)

	return state, nil
}
