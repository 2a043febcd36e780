package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/conveyor/internal/repo"
)

const testDefinition = `
name: ci
on: [push]
jobs:
  lint:
    steps:
      - run: flake8
  build:
    needs: lint
    strategy:
      matrix:
        toolchain: ["3.6", "3.7", "3.9"]
    steps:
      - run: make build
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler() *Handler {
	return NewHandler(Config{Logger: testLogger()})
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestValidatePipeline_Valid(t *testing.T) {
	router := newTestHandler().NewRouter()

	rec := postJSON(t, router, "/api/v1/pipelines/validate", ValidatePipelineRequest{
		Source: testDefinition,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data ValidatePipelineResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if !resp.Data.Valid {
		t.Fatalf("expected valid definition, got error %q", resp.Data.Error)
	}
	if len(resp.Data.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Data.Jobs))
	}

	// Порядок топологический: lint до build
	if resp.Data.Jobs[0].ID != "lint" {
		t.Errorf("expected first job lint, got %s", resp.Data.Jobs[0].ID)
	}
	if resp.Data.Jobs[0].Cells != 1 {
		t.Errorf("expected 1 cell for lint, got %d", resp.Data.Jobs[0].Cells)
	}
	if resp.Data.Jobs[1].ID != "build" {
		t.Errorf("expected second job build, got %s", resp.Data.Jobs[1].ID)
	}
	if resp.Data.Jobs[1].Cells != 3 {
		t.Errorf("expected 3 cells for build matrix, got %d", resp.Data.Jobs[1].Cells)
	}
}

func TestValidatePipeline_Invalid(t *testing.T) {
	router := newTestHandler().NewRouter()

	rec := postJSON(t, router, "/api/v1/pipelines/validate", ValidatePipelineRequest{
		Source: "jobs: {}",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Data ValidatePipelineResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Data.Valid {
		t.Fatal("expected invalid definition")
	}
	if resp.Data.Error == "" {
		t.Error("expected validation error message")
	}
}

func TestValidatePipeline_MissingSource(t *testing.T) {
	router := newTestHandler().NewRouter()

	rec := postJSON(t, router, "/api/v1/pipelines/validate", ValidatePipelineRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestValidatePipeline_MalformedBody(t *testing.T) {
	router := newTestHandler().NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipelines/validate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleRepoError(t *testing.T) {
	logger := testLogger()

	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"not found", repo.ErrNotFound, http.StatusNotFound},
		{"already exists", repo.ErrAlreadyExists, http.StatusConflict},
		{"invalid state", repo.ErrInvalidState, http.StatusUnprocessableEntity},
		{"wrapped not found", errors.Join(errors.New("get pipeline"), repo.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			handled := HandleRepoError(rec, logger, tc.err, "not found")

			if tc.err == nil {
				if handled {
					t.Fatal("expected nil error to not be handled")
				}
				return
			}

			if !handled {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tc.expected {
				t.Errorf("expected status %d, got %d", tc.expected, rec.Code)
			}
		})
	}
}

func TestErrorResponseShape(t *testing.T) {
	rec := httptest.NewRecorder()

	NotFound(rec, "pipeline not found")

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code NOT_FOUND, got %s", resp.Error.Code)
	}
	if resp.Error.Message != "pipeline not found" {
		t.Errorf("unexpected message: %s", resp.Error.Message)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := Recovery(testLogger())(panicking)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestHandler().NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
