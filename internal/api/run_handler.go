package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?pipeline_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{}

	// Парсим query параметры
	if pipelineIDStr := r.URL.Query().Get("pipeline_id"); pipelineIDStr != "" {
		pipelineID, err := uuid.Parse(pipelineIDStr)
		if err != nil {
			BadRequest(w, "invalid pipeline_id")
			return
		}
		filter.PipelineID = &pipelineID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.RunStatus(status)
	}

	filter.Limit = queryInt(r, "limit", 50)
	filter.Offset = queryInt(r, "offset", 0)

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.reqLogger(r), err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun создаёт новый run для pipeline.
// POST /api/v1/pipelines/{id}/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	pipeline, err := h.findPipeline(r)
	if HandleRepoError(w, h.reqLogger(r), err, "pipeline not found") {
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Запуск через API без события — ручной
	event := domain.EventKind(req.Event)
	if req.Event == "" {
		event = domain.EventManual
	}
	if !event.Valid() {
		BadRequest(w, fmt.Sprintf("unknown event %q", req.Event))
		return
	}

	// Проверяем триггеры до создания run: пользователь получает
	// ошибку сразу, а не FAILED run спустя секунду
	def, err := engine.Parse([]byte(pipeline.Source))
	if err != nil {
		InvalidPipeline(w, err.Error())
		return
	}
	if !def.On.Allows(event) {
		EventNotAllowed(w, fmt.Sprintf("event %q is not declared in pipeline triggers", event))
		return
	}

	// Проверяем idempotency key
	if req.IdempotencyKey != "" {
		existingRun, err := h.runRepo.GetByIdempotencyKey(r.Context(), pipeline.ID, req.IdempotencyKey)
		if err == nil && existingRun != nil {
			// Возвращаем существующий run
			Success(w, RunFromDomain(*existingRun))
			return
		}
	}

	run := &domain.Run{
		ID:             uuid.New(),
		PipelineID:     pipeline.ID,
		Event:          event,
		Ref:            req.Ref,
		Status:         domain.RunStatusPending,
		Definition:     pipeline.Source,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	if err := h.runRepo.Create(r.Context(), run); err != nil {
		HandleRepoError(w, h.reqLogger(r), err, "")
		return
	}

	// Публикуем событие в очередь
	if h.publisher != nil {
		if err := h.publisher.PublishRunPending(r.Context(), run.ID); err != nil {
			h.reqLogger(r).Warn("failed to publish run.pending", "run_id", run.ID, "error", err)
		}
	}

	Created(w, RunFromDomain(*run))
}

// GetRun возвращает run со снимком определения и ячейками.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "run not found") {
		return
	}

	cells, err := h.cellRepo.ListByRunID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "") {
		return
	}

	detail := RunDetailResponse{
		RunResponse: RunFromDomain(*run),
		Definition:  run.Definition,
		Cells:       make([]CellResponse, len(cells)),
	}
	for i, c := range cells {
		detail.Cells[i] = CellFromDomain(c)
	}

	Success(w, detail)
}

// CancelRun отменяет run, пока он не начал выполняться.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.runRepo.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			InvalidState(w, "run can no longer be cancelled")
			return
		}
		HandleRepoError(w, h.reqLogger(r), err, "run not found")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunCells возвращает ячейки run.
// GET /api/v1/runs/{id}/cells
func (h *Handler) ListRunCells(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	// Проверяем, что run существует
	_, err = h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "run not found") {
		return
	}

	cells, err := h.cellRepo.ListByRunID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "") {
		return
	}

	result := make([]CellResponse, len(cells))
	for i, c := range cells {
		result[i] = CellFromDomain(c)
	}

	List(w, result, len(result))
}

// queryInt парсит числовой query-параметр с дефолтным значением.
func queryInt(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
