package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/conveyor/internal/domain"
)

// CellRepo — репозиторий для работы с cells.
//
// Params (комбинация осей матрицы) и Steps (результаты шагов)
// хранятся JSON-колонками: их состав зависит от определения
// конвейера и не нормализуется.
type CellRepo struct {
	pool *pgxpool.Pool
}

// NewCellRepo создаёт новый CellRepo.
func NewCellRepo(pool *pgxpool.Pool) *CellRepo {
	return &CellRepo{pool: pool}
}

// Create создаёт новую cell.
func (r *CellRepo) Create(ctx context.Context, cell *domain.Cell) error {
	paramsJSON, err := json.Marshal(cell.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO cells (id, run_id, job, idx, params, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		cell.ID,
		cell.RunID,
		cell.Job,
		cell.Index,
		paramsJSON,
		cell.Status,
		cell.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cell: %w", err)
	}
	return nil
}

// GetByID возвращает cell по ID.
func (r *CellRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Cell, error) {
	query := `
		SELECT id, run_id, job, idx, params, status, steps, error,
		       started_at, finished_at, created_at
		FROM cells
		WHERE id = $1
	`
	return r.scanCell(r.pool.QueryRow(ctx, query, id))
}

// ListByRunID возвращает все cells одного run в стабильном порядке.
func (r *CellRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.Cell, error) {
	query := `
		SELECT id, run_id, job, idx, params, status, steps, error,
		       started_at, finished_at, created_at
		FROM cells
		WHERE run_id = $1
		ORDER BY job ASC, idx ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list cells by run_id: %w", err)
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		cell, err := r.scanCellFromRows(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *cell)
	}
	return cells, rows.Err()
}

// ListByRunAndJob возвращает cells конкретного джоба.
func (r *CellRepo) ListByRunAndJob(ctx context.Context, runID uuid.UUID, job string) ([]domain.Cell, error) {
	query := `
		SELECT id, run_id, job, idx, params, status, steps, error,
		       started_at, finished_at, created_at
		FROM cells
		WHERE run_id = $1 AND job = $2
		ORDER BY idx ASC
	`
	rows, err := r.pool.Query(ctx, query, runID, job)
	if err != nil {
		return nil, fmt.Errorf("list cells by job: %w", err)
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		cell, err := r.scanCellFromRows(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *cell)
	}
	return cells, rows.Err()
}

// Update обновляет cell (статус, шаги, тайминги).
func (r *CellRepo) Update(ctx context.Context, cell *domain.Cell) error {
	stepsJSON, err := json.Marshal(cell.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		UPDATE cells
		SET status = $2, steps = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		cell.ID,
		cell.Status,
		stepsJSON,
		nullString(cell.Error),
		cell.StartedAt,
		cell.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update cell: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQueued возвращает cells в статусе QUEUED (для polling fallback
// воркера, когда MQ недоступен).
func (r *CellRepo) ListQueued(ctx context.Context, limit int) ([]domain.Cell, error) {
	query := `
		SELECT id, run_id, job, idx, params, status, steps, error,
		       started_at, finished_at, created_at
		FROM cells
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued cells: %w", err)
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		cell, err := r.scanCellFromRows(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *cell)
	}
	return cells, rows.Err()
}

// CountByRunAndStatus возвращает количество cells по статусу для run.
func (r *CellRepo) CountByRunAndStatus(ctx context.Context, runID uuid.UUID, status domain.CellStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cells WHERE run_id = $1 AND status = $2
	`, runID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cells: %w", err)
	}
	return count, nil
}

// CountUnfinished возвращает количество незавершённых cells для run.
func (r *CellRepo) CountUnfinished(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cells
		WHERE run_id = $1 AND status IN ('QUEUED', 'RUNNING')
	`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unfinished cells: %w", err)
	}
	return count, nil
}

// --- Helpers ---

func (r *CellRepo) scanCell(row pgx.Row) (*domain.Cell, error) {
	var cell domain.Cell
	var paramsJSON, stepsJSON []byte
	var cellError *string

	err := row.Scan(
		&cell.ID,
		&cell.RunID,
		&cell.Job,
		&cell.Index,
		&paramsJSON,
		&cell.Status,
		&stepsJSON,
		&cellError,
		&cell.StartedAt,
		&cell.FinishedAt,
		&cell.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cell: %w", err)
	}

	if err := unmarshalCellJSON(&cell, paramsJSON, stepsJSON); err != nil {
		return nil, err
	}
	if cellError != nil {
		cell.Error = *cellError
	}

	return &cell, nil
}

func (r *CellRepo) scanCellFromRows(rows pgx.Rows) (*domain.Cell, error) {
	var cell domain.Cell
	var paramsJSON, stepsJSON []byte
	var cellError *string

	err := rows.Scan(
		&cell.ID,
		&cell.RunID,
		&cell.Job,
		&cell.Index,
		&paramsJSON,
		&cell.Status,
		&stepsJSON,
		&cellError,
		&cell.StartedAt,
		&cell.FinishedAt,
		&cell.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan cell: %w", err)
	}

	if err := unmarshalCellJSON(&cell, paramsJSON, stepsJSON); err != nil {
		return nil, err
	}
	if cellError != nil {
		cell.Error = *cellError
	}

	return &cell, nil
}

func unmarshalCellJSON(cell *domain.Cell, paramsJSON, stepsJSON []byte) error {
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &cell.Params); err != nil {
			return fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &cell.Steps); err != nil {
			return fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return nil
}
