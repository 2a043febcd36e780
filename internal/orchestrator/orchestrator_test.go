package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
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
        toolchain: ["3.6", "3.7"]
    steps:
      - run: make build
  notify:
    needs: build
    steps:
      - run: ./notify.sh
`

func newTestRun(def string, event domain.EventKind) *domain.Run {
	return &domain.Run{
		ID:         uuid.New(),
		PipelineID: uuid.New(),
		Event:      event,
		Ref:        "refs/heads/main",
		Status:     domain.RunStatusPending,
		Definition: def,
		CreatedAt:  time.Now(),
	}
}

func newTestState(t *testing.T, def string, event domain.EventKind) *RunState {
	t.Helper()
	state := NewRunState(newTestRun(def, event))
	if err := state.Initialize(); err != nil {
		t.Fatalf("initialize state: %v", err)
	}
	return state
}

func queuedCell(runID uuid.UUID, job string, idx int) domain.Cell {
	return domain.Cell{
		ID:        uuid.New(),
		RunID:     runID,
		Job:       job,
		Index:     idx,
		Status:    domain.CellStatusQueued,
		CreatedAt: time.Now(),
	}
}

// --- RunState Tests ---

func TestNewRunState(t *testing.T) {
	run := &domain.Run{ID: uuid.New()}

	state := NewRunState(run)

	if state.Run != run {
		t.Error("Run should be set")
	}
	if state.started == nil {
		t.Error("started map should be initialized")
	}
	if state.pending == nil {
		t.Error("pending map should be initialized")
	}
	if state.succeeded == nil {
		t.Error("succeeded map should be initialized")
	}
	if state.failed == nil {
		t.Error("failed map should be initialized")
	}
	if state.skipped == nil {
		t.Error("skipped map should be initialized")
	}
	if state.seenCells == nil {
		t.Error("seenCells map should be initialized")
	}
}

func TestRunState_Initialize(t *testing.T) {
	state := NewRunState(newTestRun(testDefinition, domain.EventPush))

	if err := state.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Def == nil {
		t.Error("definition should be parsed")
	}
	if state.DAG == nil {
		t.Fatal("DAG should be built")
	}
	if state.DAG.Size() != 3 {
		t.Errorf("expected 3 jobs in DAG, got %d", state.DAG.Size())
	}
	if state.Context.Event != domain.EventPush {
		t.Errorf("expected context event push, got %s", state.Context.Event)
	}
	if state.Context.Ref != "refs/heads/main" {
		t.Errorf("expected context ref refs/heads/main, got %s", state.Context.Ref)
	}
}

func TestRunState_Initialize_NoJobs(t *testing.T) {
	state := NewRunState(newTestRun("name: empty\non: [push]\njobs: {}\n", domain.EventPush))

	if err := state.Initialize(); err == nil {
		t.Error("expected error for definition without jobs")
	}
}

func TestRunState_Initialize_MalformedYAML(t *testing.T) {
	state := NewRunState(newTestRun("jobs: [unclosed", domain.EventPush))

	if err := state.Initialize(); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestRunState_Initialize_EventNotAllowed(t *testing.T) {
	state := NewRunState(newTestRun(testDefinition, domain.EventPullRequest))

	err := state.Initialize()
	if !errors.Is(err, ErrEventNotAllowed) {
		t.Errorf("expected ErrEventNotAllowed, got %v", err)
	}
}

func TestRunState_Initialize_ManualAlwaysAllowed(t *testing.T) {
	// manual не объявлен в on: [push], но разрешён всегда
	state := NewRunState(newTestRun(testDefinition, domain.EventManual))

	if err := state.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunState_GetReadyJobs(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	// Сначала готов только lint (без зависимостей)
	ready := state.GetReadyJobs()
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready job, got %d", len(ready))
	}
	if ready[0].ID != "lint" {
		t.Errorf("expected lint to be ready, got %s", ready[0].ID)
	}

	// Запускаем lint — готовых нет, build ждёт завершения lint
	lintCell := queuedCell(state.RunID(), "lint", 0)
	state.AdoptCells("lint", []domain.Cell{lintCell})

	ready = state.GetReadyJobs()
	if len(ready) != 0 {
		t.Errorf("expected 0 ready jobs while lint is running, got %d", len(ready))
	}

	// lint прошёл — готов build
	state.RecordCellResult(lintCell.ID, "lint", domain.CellStatusPassed)

	ready = state.GetReadyJobs()
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready job, got %d", len(ready))
	}
	if ready[0].ID != "build" {
		t.Errorf("expected build to be ready, got %s", ready[0].ID)
	}
}

func TestRunState_RecordCellResult(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	cells := []domain.Cell{
		queuedCell(state.RunID(), "build", 0),
		queuedCell(state.RunID(), "build", 1),
	}
	state.AdoptCells("build", cells)

	if state.JobFinished("build") {
		t.Error("build should not be finished with 2 pending cells")
	}

	// Первая ячейка прошла — джоб ещё не завершён
	if !state.RecordCellResult(cells[0].ID, "build", domain.CellStatusPassed) {
		t.Error("first cell result should be recorded")
	}
	if state.JobFinished("build") {
		t.Error("build should not be finished with 1 pending cell")
	}

	// Вторая ячейка прошла — джоб завершён успешно
	state.RecordCellResult(cells[1].ID, "build", domain.CellStatusPassed)
	if !state.JobFinished("build") {
		t.Error("build should be finished")
	}
	if state.JobFailed("build") {
		t.Error("build should not be failed")
	}
}

func TestRunState_RecordCellResult_Duplicate(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	cells := []domain.Cell{
		queuedCell(state.RunID(), "build", 0),
		queuedCell(state.RunID(), "build", 1),
	}
	state.AdoptCells("build", cells)

	if !state.RecordCellResult(cells[0].ID, "build", domain.CellStatusPassed) {
		t.Error("first delivery should be recorded")
	}

	// Повторная доставка того же сообщения не двигает счётчики
	if state.RecordCellResult(cells[0].ID, "build", domain.CellStatusPassed) {
		t.Error("duplicate delivery should not be recorded")
	}
	if state.JobFinished("build") {
		t.Error("build should still wait for the second cell")
	}
}

func TestRunState_JobFailure(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	cells := []domain.Cell{
		queuedCell(state.RunID(), "build", 0),
		queuedCell(state.RunID(), "build", 1),
	}
	state.AdoptCells("build", cells)

	state.RecordCellResult(cells[0].ID, "build", domain.CellStatusFailed)
	state.RecordCellResult(cells[1].ID, "build", domain.CellStatusPassed)

	if !state.JobFinished("build") {
		t.Error("build should be finished")
	}
	if !state.JobFailed("build") {
		t.Error("build should be failed")
	}
	if !state.HasFailed() {
		t.Error("state should have failed jobs")
	}

	failedJobs := state.FailedJobs()
	if len(failedJobs) != 1 || failedJobs[0] != "build" {
		t.Errorf("expected [build] as failed jobs, got %v", failedJobs)
	}

	// Упавший джоб не открывает зависимые
	ready := state.GetReadyJobs()
	for _, node := range ready {
		if node.ID == "notify" {
			t.Error("notify should not be ready after build failed")
		}
	}
}

func TestRunState_MarkJobSkipped(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	state.MarkJobSkipped("notify")

	if !state.JobStarted("notify") {
		t.Error("skipped job should count as started")
	}
	if !state.JobFinished("notify") {
		t.Error("skipped job should count as finished")
	}
	if state.JobFailed("notify") {
		t.Error("skipped job should not count as failed")
	}

	// Пропущенный джоб не попадает в готовые
	for _, node := range state.GetReadyJobs() {
		if node.ID == "notify" {
			t.Error("skipped job should not be ready")
		}
	}
}

func TestRunState_IsComplete(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	if state.IsComplete() {
		t.Error("should not be complete initially")
	}

	// lint
	lintCell := queuedCell(state.RunID(), "lint", 0)
	state.AdoptCells("lint", []domain.Cell{lintCell})
	state.RecordCellResult(lintCell.ID, "lint", domain.CellStatusPassed)

	if state.IsComplete() {
		t.Error("should not be complete with only lint done")
	}

	// build (2 ячейки)
	buildCells := []domain.Cell{
		queuedCell(state.RunID(), "build", 0),
		queuedCell(state.RunID(), "build", 1),
	}
	state.AdoptCells("build", buildCells)
	state.RecordCellResult(buildCells[0].ID, "build", domain.CellStatusPassed)
	state.RecordCellResult(buildCells[1].ID, "build", domain.CellStatusPassed)

	// notify
	notifyCell := queuedCell(state.RunID(), "notify", 0)
	state.AdoptCells("notify", []domain.Cell{notifyCell})
	state.RecordCellResult(notifyCell.ID, "notify", domain.CellStatusPassed)

	if !state.IsComplete() {
		t.Error("should be complete with all jobs done")
	}
	if state.HasFailed() {
		t.Error("should not have failed jobs")
	}
}

func TestRunState_IsComplete_WithSkipped(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	// lint упал — build и notify пропускаются
	lintCell := queuedCell(state.RunID(), "lint", 0)
	state.AdoptCells("lint", []domain.Cell{lintCell})
	state.RecordCellResult(lintCell.ID, "lint", domain.CellStatusFailed)

	state.MarkJobSkipped("build")
	state.MarkJobSkipped("notify")

	if !state.IsComplete() {
		t.Error("should be complete when remaining jobs are skipped")
	}
	if !state.HasFailed() {
		t.Error("should have failed jobs")
	}
}

func TestRunState_RestoreFromCells(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)
	runID := state.RunID()

	passedLint := domain.Cell{
		ID: uuid.New(), RunID: runID, Job: "lint", Index: 0,
		Status: domain.CellStatusPassed,
	}
	passedBuild := domain.Cell{
		ID: uuid.New(), RunID: runID, Job: "build", Index: 0,
		Status: domain.CellStatusPassed,
	}
	runningBuild := domain.Cell{
		ID: uuid.New(), RunID: runID, Job: "build", Index: 1,
		Status: domain.CellStatusRunning,
	}

	state.RestoreFromCells([]domain.Cell{passedLint, passedBuild, runningBuild})

	// lint завершён успешно
	if !state.JobFinished("lint") {
		t.Error("lint should be finished after restore")
	}
	if state.JobFailed("lint") {
		t.Error("lint should not be failed")
	}

	// build ждёт одну ячейку
	if state.JobFinished("build") {
		t.Error("build should not be finished with a running cell")
	}

	// notify не запускался
	if state.JobStarted("notify") {
		t.Error("notify should not be started")
	}

	// Завершение, учтённое при восстановлении, не учитывается повторно
	if state.RecordCellResult(passedLint.ID, "lint", domain.CellStatusPassed) {
		t.Error("restored cell result should count as duplicate")
	}

	// Последняя ячейка build завершает джоб
	state.RecordCellResult(runningBuild.ID, "build", domain.CellStatusPassed)
	if !state.JobFinished("build") {
		t.Error("build should be finished")
	}

	ready := state.GetReadyJobs()
	if len(ready) != 1 || ready[0].ID != "notify" {
		t.Errorf("expected notify to be ready after restore, got %v", ready)
	}
}

func TestRunState_RestoreFromCells_AllFinished(t *testing.T) {
	// Сценарий resumeRun: оркестратор упал после подтверждения
	// последнего cell.completed, но до финализации run
	state := newTestState(t, testDefinition, domain.EventPush)
	runID := state.RunID()

	cells := []domain.Cell{
		{ID: uuid.New(), RunID: runID, Job: "lint", Index: 0, Status: domain.CellStatusPassed},
		{ID: uuid.New(), RunID: runID, Job: "build", Index: 0, Status: domain.CellStatusPassed},
		{ID: uuid.New(), RunID: runID, Job: "build", Index: 1, Status: domain.CellStatusPassed},
		{ID: uuid.New(), RunID: runID, Job: "notify", Index: 0, Status: domain.CellStatusPassed},
	}
	state.RestoreFromCells(cells)

	if !state.IsComplete() {
		t.Error("run with all cells passed should be complete after restore")
	}
	if state.HasFailed() {
		t.Error("run should not be failed")
	}
}

func TestRunState_RestoreFromCells_FailedJob(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)
	runID := state.RunID()

	cells := []domain.Cell{
		{ID: uuid.New(), RunID: runID, Job: "lint", Index: 0, Status: domain.CellStatusPassed},
		{ID: uuid.New(), RunID: runID, Job: "build", Index: 0, Status: domain.CellStatusFailed},
		{ID: uuid.New(), RunID: runID, Job: "build", Index: 1, Status: domain.CellStatusPassed},
	}
	state.RestoreFromCells(cells)

	if !state.JobFinished("build") || !state.JobFailed("build") {
		t.Error("build should be finished and failed after restore")
	}
	if failed := state.FailedJobs(); len(failed) != 1 || failed[0] != "build" {
		t.Errorf("expected failed jobs [build], got %v", failed)
	}

	// notify зависит от build и не становится ready
	if ready := state.GetReadyJobs(); len(ready) != 0 {
		t.Errorf("no jobs should be ready, got %v", ready)
	}

	// run не завершён, пока notify не помечен пропущенным
	if state.IsComplete() {
		t.Error("run should not be complete until notify is skipped")
	}
	state.MarkJobSkipped("notify")
	if !state.IsComplete() {
		t.Error("run should be complete after skipping notify")
	}
}

func TestRunState_Stats(t *testing.T) {
	state := newTestState(t, testDefinition, domain.EventPush)

	// Начальная статистика
	stats := state.Stats()
	if stats.TotalJobs != 3 {
		t.Errorf("expected 3 total jobs, got %d", stats.TotalJobs)
	}
	if stats.PendingJobs != 3 {
		t.Errorf("expected 3 pending jobs, got %d", stats.PendingJobs)
	}
	if stats.RunningJobs != 0 {
		t.Errorf("expected 0 running jobs, got %d", stats.RunningJobs)
	}

	// lint выполняется
	lintCell := queuedCell(state.RunID(), "lint", 0)
	state.AdoptCells("lint", []domain.Cell{lintCell})

	stats = state.Stats()
	if stats.RunningJobs != 1 {
		t.Errorf("expected 1 running job, got %d", stats.RunningJobs)
	}
	if stats.PendingCells != 1 {
		t.Errorf("expected 1 pending cell, got %d", stats.PendingCells)
	}
	if stats.PendingJobs != 2 {
		t.Errorf("expected 2 pending jobs, got %d", stats.PendingJobs)
	}

	// lint прошёл, build упал, notify пропущен
	state.RecordCellResult(lintCell.ID, "lint", domain.CellStatusPassed)

	buildCell := queuedCell(state.RunID(), "build", 0)
	state.AdoptCells("build", []domain.Cell{buildCell})
	state.RecordCellResult(buildCell.ID, "build", domain.CellStatusFailed)

	state.MarkJobSkipped("notify")

	stats = state.Stats()
	if stats.SucceededJobs != 1 {
		t.Errorf("expected 1 succeeded job, got %d", stats.SucceededJobs)
	}
	if stats.FailedJobs != 1 {
		t.Errorf("expected 1 failed job, got %d", stats.FailedJobs)
	}
	if stats.SkippedJobs != 1 {
		t.Errorf("expected 1 skipped job, got %d", stats.SkippedJobs)
	}
	if stats.PendingJobs != 0 {
		t.Errorf("expected 0 pending jobs, got %d", stats.PendingJobs)
	}
}

func TestRunState_RunID(t *testing.T) {
	runID := uuid.New()
	pipelineID := uuid.New()
	state := NewRunState(&domain.Run{ID: runID, PipelineID: pipelineID})

	if state.RunID() != runID {
		t.Error("RunID should return run ID")
	}
	if state.PipelineID() != pipelineID {
		t.Error("PipelineID should return pipeline ID")
	}
}

// --- Orchestrator Tests ---

func TestNew(t *testing.T) {
	orch := New(Config{})

	if orch.activeRuns == nil {
		t.Error("activeRuns should be initialized")
	}
	if orch.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, orch.pollInterval)
	}
	if orch.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", defaultBatchSize, orch.batchSize)
	}
}

func TestNew_CustomConfig(t *testing.T) {
	orch := New(Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
	})

	if orch.pollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", orch.pollInterval)
	}
	if orch.batchSize != 50 {
		t.Errorf("expected batch size 50, got %d", orch.batchSize)
	}
}

func TestOrchestrator_ActiveRuns(t *testing.T) {
	orch := New(Config{})

	runID := uuid.New()
	state := &RunState{
		Run: &domain.Run{ID: runID},
	}

	// Initially no active runs
	if orch.ActiveRunsCount() != 0 {
		t.Error("should have no active runs initially")
	}
	if orch.isRunActive(runID) {
		t.Error("run should not be active initially")
	}

	// Add active run
	err := orch.addActiveRun(state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if orch.ActiveRunsCount() != 1 {
		t.Error("should have 1 active run")
	}
	if !orch.isRunActive(runID) {
		t.Error("run should be active")
	}
	if orch.getActiveRun(runID) != state {
		t.Error("getActiveRun should return the state")
	}

	// Try to add same run again
	err = orch.addActiveRun(state)
	if err != ErrRunAlreadyActive {
		t.Errorf("expected ErrRunAlreadyActive, got %v", err)
	}

	// Remove active run
	orch.removeActiveRun(runID)

	if orch.ActiveRunsCount() != 0 {
		t.Error("should have no active runs after removal")
	}
	if orch.isRunActive(runID) {
		t.Error("run should not be active after removal")
	}
}

func TestOrchestrator_GetActiveRunStats(t *testing.T) {
	orch := New(Config{})

	state := newTestState(t, testDefinition, domain.EventPush)
	runID := state.RunID()

	// No stats for non-existent run
	_, ok := orch.GetActiveRunStats(runID)
	if ok {
		t.Error("should not find stats for non-active run")
	}

	// Add run and get stats
	_ = orch.addActiveRun(state)
	stats, ok := orch.GetActiveRunStats(runID)
	if !ok {
		t.Fatal("should find stats for active run")
	}
	if stats.TotalJobs != 3 {
		t.Errorf("expected 3 total jobs, got %d", stats.TotalJobs)
	}
}

func TestOrchestrator_IsStopped(t *testing.T) {
	orch := New(Config{})

	if orch.IsStopped() {
		t.Error("should not be stopped initially")
	}

	// Set stopped state directly (simulating Stop() call)
	orch.stoppedMu.Lock()
	orch.stopped = true
	orch.stoppedMu.Unlock()

	if !orch.IsStopped() {
		t.Error("should be stopped")
	}
}
