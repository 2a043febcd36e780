package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
)

// ListPipelines возвращает список всех pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelineRepo.List(r.Context())
	if HandleRepoError(w, h.reqLogger(r), err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p)
		// Исходник не включаем в списки, он может быть большим
		result[i].Source = ""
	}

	List(w, result, len(result))
}

// CreatePipeline создаёт новый pipeline.
// POST /api/v1/pipelines
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.Source == "" {
		BadRequest(w, "source is required")
		return
	}

	// Определение должно быть корректным уже на момент сохранения
	if _, err := engine.Parse([]byte(req.Source)); err != nil {
		InvalidPipeline(w, err.Error())
		return
	}

	now := time.Now()
	pipeline := &domain.Pipeline{
		ID:        uuid.New(),
		Name:      req.Name,
		Source:    req.Source,
		IsActive:  req.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.pipelineRepo.Create(r.Context(), pipeline); err != nil {
		HandleRepoError(w, h.reqLogger(r), err, "")
		return
	}

	Created(w, PipelineFromDomain(*pipeline))
}

// GetPipeline возвращает pipeline по ID или имени.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	pipeline, err := h.findPipeline(r)
	if HandleRepoError(w, h.reqLogger(r), err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// UpdatePipeline обновляет pipeline.
// PUT /api/v1/pipelines/{id}
func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req UpdatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	pipeline, err := h.pipelineRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "pipeline not found") {
		return
	}

	if req.Name != nil {
		pipeline.Name = *req.Name
	}
	if req.Source != nil {
		if _, err := engine.Parse([]byte(*req.Source)); err != nil {
			InvalidPipeline(w, err.Error())
			return
		}
		pipeline.Source = *req.Source
	}
	if req.IsActive != nil {
		pipeline.IsActive = *req.IsActive
	}
	pipeline.UpdatedAt = time.Now()

	if err := h.pipelineRepo.Update(r.Context(), pipeline); err != nil {
		HandleRepoError(w, h.reqLogger(r), err, "pipeline not found")
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// DeletePipeline удаляет pipeline.
// DELETE /api/v1/pipelines/{id}
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	if err := h.pipelineRepo.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.reqLogger(r), err, "pipeline not found")
		return
	}

	NoContent(w)
}

// ValidatePipeline проверяет определение без сохранения.
// POST /api/v1/pipelines/validate
func (h *Handler) ValidatePipeline(w http.ResponseWriter, r *http.Request) {
	var req ValidatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Source == "" {
		BadRequest(w, "source is required")
		return
	}

	def, err := engine.Parse([]byte(req.Source))
	if err != nil {
		Success(w, ValidatePipelineResponse{Valid: false, Error: err.Error()})
		return
	}

	// Parse уже проверил needs и циклы, поэтому BuildDAG не падает
	dag, err := engine.BuildDAG(def)
	if err != nil {
		Success(w, ValidatePipelineResponse{Valid: false, Error: err.Error()})
		return
	}

	jobs := make([]JobPreview, 0, len(dag.Order))
	for _, node := range dag.Order {
		jobs = append(jobs, JobPreview{
			ID:    node.ID,
			Needs: node.Job.Needs,
			Cells: len(node.Job.Strategy.Matrix.Expand()),
		})
	}

	Success(w, ValidatePipelineResponse{Valid: true, Jobs: jobs})
}

// findPipeline ищет pipeline по UUID, а если параметр не UUID — по имени.
func (h *Handler) findPipeline(r *http.Request) (*domain.Pipeline, error) {
	param := chi.URLParam(r, "id")

	if id, err := uuid.Parse(param); err == nil {
		return h.pipelineRepo.GetByID(r.Context(), id)
	}

	return h.pipelineRepo.GetByName(r.Context(), param)
}
