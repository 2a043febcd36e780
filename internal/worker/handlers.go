package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// handleCellReady обрабатывает событие о новой ячейке из очереди cells.ready.
func (w *Worker) handleCellReady(ctx context.Context, delivery *mq.Delivery) error {
	// Парсим payload
	payload, err := mq.ParsePayload[mq.CellReadyPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse cell.ready payload", "error", err)
		// Повтор не исправит битый payload; ячейку подхватит polling
		return fmt.Errorf("%w: %v", mq.ErrReject, err)
	}

	w.logger.Debug("received cell.ready event",
		"cell_id", payload.CellID,
		"run_id", payload.RunID,
	)

	// Обрабатываем ячейку
	if err := w.processCell(ctx, payload.CellID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrCellNotFound) || errors.Is(err, ErrCellNotQueued) {
			w.logger.Debug("cell not processed", "cell_id", payload.CellID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process cell", "cell_id", payload.CellID, "error", err)
		return err
	}

	return nil
}

// processCell загружает ячейку из БД, выполняет её шаги и сохраняет результат.
func (w *Worker) processCell(ctx context.Context, cellID uuid.UUID) error {
	// 1. Загружаем ячейку из БД
	cell, err := w.cellRepo.GetByID(ctx, cellID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCellNotFound, cellID)
		}
		return fmt.Errorf("get cell: %w", err)
	}

	// 2. Проверяем статус (защита от повторной доставки)
	if cell.Status != domain.CellStatusQueued {
		return ErrCellNotQueued
	}

	log := telemetry.WithCellID(w.logger, cell.ID.String())
	log = telemetry.WithRunID(log, cell.RunID.String())

	// 3. Загружаем run со снимком определения
	run, err := w.runRepo.GetByID(ctx, cell.RunID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, cell.RunID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	// Run уже финализирован — выполнять ячейку поздно и незачем
	if run.IsFinished() {
		log.Warn("run already finished, skipping cell", "run_status", run.Status)
		cell.MarkSkipped()
		if err := w.cellRepo.Update(ctx, cell); err != nil {
			return fmt.Errorf("update cell to skipped: %w", err)
		}
		return nil
	}

	// 4. Помечаем как running, чтобы polling не забрал ячейку повторно
	cell.MarkRunning()
	if err := w.cellRepo.Update(ctx, cell); err != nil {
		return fmt.Errorf("update cell to running: %w", err)
	}

	telemetry.IncActiveCells()
	defer telemetry.DecActiveCells()

	log.Info("cell started",
		"job", cell.Job,
		"index", cell.Index,
		"params", cell.Params,
	)

	// 5. Разбираем снимок определения.
	// Orchestrator уже валидировал его при старте run, поэтому ошибка
	// здесь — постоянная: ячейка падает без requeue.
	def, parseErr := engine.Parse([]byte(run.Definition))
	if parseErr != nil {
		cell.MarkFailed(nil, fmt.Sprintf("parse definition: %v", parseErr))
		return w.finishCell(ctx, log, cell)
	}

	// 6. Выполняем шаги ячейки.
	// Падение шагов — результат, а не ошибка: CellRunner записывает его
	// в статус и список шагов. Ошибка возвращается только если ячейку
	// невозможно было начать.
	if runErr := w.runner.Run(ctx, def, cell, run.Context()); runErr != nil {
		cell.MarkFailed(nil, runErr.Error())
	}

	// 7. Сохраняем результат и публикуем завершение
	return w.finishCell(ctx, log, cell)
}

// finishCell сохраняет финальное состояние ячейки и публикует cell.completed.
func (w *Worker) finishCell(ctx context.Context, log *slog.Logger, cell *domain.Cell) error {
	if err := w.cellRepo.Update(ctx, cell); err != nil {
		return fmt.Errorf("update cell result: %w", err)
	}

	telemetry.RecordCellFinished(string(cell.Status), cell.Duration())
	for _, step := range cell.Steps {
		if step.Outcome.Executed() {
			telemetry.RecordStepExecuted(step.Action, step.Duration())
		}
	}

	switch cell.Status {
	case domain.CellStatusPassed:
		log.Info("cell passed",
			"job", cell.Job,
			"index", cell.Index,
			"duration", cell.Duration(),
		)
	default:
		log.Warn("cell failed",
			"job", cell.Job,
			"index", cell.Index,
			"error", cell.Error,
			"duration", cell.Duration(),
		)
	}

	return w.publishCompletion(ctx, log, cell)
}

// publishCompletion публикует событие cell.completed.
func (w *Worker) publishCompletion(ctx context.Context, log *slog.Logger, cell *domain.Cell) error {
	if w.publisher == nil {
		log.Warn("publisher not available, skipping cell.completed publish")
		return nil
	}

	payload := mq.CellCompletedPayload{
		CellID: cell.ID,
		RunID:  cell.RunID,
		Job:    cell.Job,
		Status: string(cell.Status),
		Error:  cell.Error,
	}

	if err := w.publisher.PublishCellCompleted(ctx, payload); err != nil {
		log.Warn("failed to publish cell.completed", "error", err)
		// Не возвращаем ошибку — результат сохранён в БД, оркестратор
		// восстановит состояние run при следующем событии
	}

	return nil
}
