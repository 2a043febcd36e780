package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
)

// LocalConfig — конфигурация LocalRunner.
type LocalConfig struct {
	// Cells — раннер ячеек. Nil означает NewCellRunner с настройками
	// по умолчанию.
	Cells *CellRunner

	// Logger — логгер. Nil означает slog.Default().
	Logger *slog.Logger

	// MaxParallel ограничивает число одновременно выполняемых ячеек.
	// Ноль означает без ограничения.
	MaxParallel int
}

// LocalRunner выполняет конвейер целиком в одном процессе.
//
// Джобы выполняются волнами по готовности DAG: джоб стартует, когда
// все его needs завершились успешно. Ячейки готовых джобов выполняются
// параллельно, падение одной ячейки не прерывает остальные. Джобы,
// зависящие от упавшего, не выполняются: их ячейки получают статус
// SKIPPED.
//
// Используется CLI-командой локального запуска и в качестве эталона
// семантики для распределённого пути оркестратор + воркеры.
type LocalRunner struct {
	cells       *CellRunner
	log         *slog.Logger
	maxParallel int
}

// NewLocalRunner создаёт LocalRunner с заполнением значений по умолчанию.
func NewLocalRunner(cfg LocalConfig) *LocalRunner {
	if cfg.Cells == nil {
		cfg.Cells = NewCellRunner(CellConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LocalRunner{
		cells:       cfg.Cells,
		log:         cfg.Logger,
		maxParallel: cfg.MaxParallel,
	}
}

// Run выполняет все джобы определения для данного контекста запуска
// и возвращает агрегированный результат.
//
// Событие запуска должно быть объявлено в триггерах определения
// (manual разрешён всегда), иначе возвращается ErrEventNotAllowed.
func (r *LocalRunner) Run(ctx context.Context, def *engine.Definition, rc domain.RunContext) (*domain.PipelineResult, error) {
	if !def.On.Allows(rc.Event) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotAllowed, rc.Event)
	}

	dag, err := engine.BuildDAG(def)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	log := r.log.With("run_id", runID, "pipeline", def.Name)
	log.Info("run started", "event", rc.Event, "ref", rc.Ref, "jobs", dag.Size())

	cellsByJob := r.expandCells(runID, def, dag)

	succeeded := make(map[string]bool)
	started := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted: %w", err)
		}

		ready := dag.GetReadyNodes(succeeded, started)
		if len(ready) == 0 {
			break
		}

		// Ячейки всех готовых джобов выполняются одной волной.
		// errgroup без контекста: падение ячейки — результат,
		// а не причина отменять соседние.
		g := new(errgroup.Group)
		if r.maxParallel > 0 {
			g.SetLimit(r.maxParallel)
		}

		for _, node := range ready {
			started[node.ID] = true
			for _, cell := range cellsByJob[node.ID] {
				g.Go(func() error {
					return r.cells.Run(ctx, def, cell, rc)
				})
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, node := range ready {
			if allPassed(cellsByJob[node.ID]) {
				succeeded[node.ID] = true
			} else {
				log.Warn("job failed, downstream jobs will be skipped", "job", node.ID)
			}
		}
	}

	// Джобы, не дождавшиеся своих needs, не выполнялись: их ячейки
	// помечаются пропущенными.
	for _, node := range dag.Order {
		if started[node.ID] {
			continue
		}
		for _, cell := range cellsByJob[node.ID] {
			cell.MarkSkipped()
		}
	}

	cells := make([]*domain.Cell, 0, len(cellsByJob))
	for _, node := range dag.Order {
		cells = append(cells, cellsByJob[node.ID]...)
	}

	result := &domain.PipelineResult{
		Overall: domain.OverallStatus(cells),
		Cells:   cells,
	}
	log.Info("run finished", "status", result.Overall, "cells", len(cells))
	return result, nil
}

// expandCells разворачивает матрицы всех джобов в ячейки.
// Порядок ячеек внутри джоба повторяет порядок комбинаций матрицы.
func (r *LocalRunner) expandCells(runID uuid.UUID, def *engine.Definition, dag *engine.DAG) map[string][]*domain.Cell {
	cellsByJob := make(map[string][]*domain.Cell, dag.Size())
	now := time.Now()

	for _, node := range dag.Order {
		combos := node.Job.Strategy.Matrix.Expand()
		cells := make([]*domain.Cell, 0, len(combos))
		for i, params := range combos {
			cells = append(cells, &domain.Cell{
				ID:        uuid.New(),
				RunID:     runID,
				Job:       node.ID,
				Index:     i,
				Params:    params,
				Status:    domain.CellStatusQueued,
				CreatedAt: now,
			})
		}
		cellsByJob[node.ID] = cells
	}
	return cellsByJob
}

// allPassed возвращает true, если все ячейки прошли.
func allPassed(cells []*domain.Cell) bool {
	for _, c := range cells {
		if c.Status != domain.CellStatusPassed {
			return false
		}
	}
	return true
}
