package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/secrets"
	"github.com/shaiso/conveyor/internal/steps"
)

// fakeAction — действие для тестов: записывает вызовы и падает
// по указанию.
type fakeAction struct {
	typ  string
	fail func(req *steps.Request) error

	mu    sync.Mutex
	calls []string
	reqs  []*steps.Request
}

func (f *fakeAction) Type() string { return f.typ }

func (f *fakeAction) Execute(_ context.Context, req *steps.Request) (*steps.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Step)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return nil, err
		}
	}
	return &steps.Response{Output: "ok"}, nil
}

func (f *fakeAction) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseDef(t *testing.T, src string) *engine.Definition {
	t.Helper()
	def, err := engine.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	return def
}

func newTestCell(job string, params map[string]string) *domain.Cell {
	return &domain.Cell{
		ID:     uuid.New(),
		RunID:  uuid.New(),
		Job:    job,
		Params: params,
		Status: domain.CellStatusQueued,
	}
}

func cellRunnerWith(t *testing.T, fake *fakeAction, provider secrets.Provider) *CellRunner {
	t.Helper()
	registry := steps.NewRegistry()
	registry.Register(fake)
	return NewCellRunner(CellConfig{
		Registry: registry,
		Secrets:  provider,
		Logger:   quietLogger(),
		WorkDir:  t.TempDir(),
	})
}

func TestCellRunner_StepOrder(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: first
        uses: probe
      - name: second
        uses: probe
      - name: third
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("expected PASSED, got %s (%s)", cell.Status, cell.Error)
	}

	want := []string{"first", "second", "third"}
	got := fake.callNames()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(got), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("call %d: expected %s, got %s", i, name, got[i])
		}
		if cell.Steps[i].Outcome != domain.StepOutcomePassed {
			t.Errorf("step %s: expected PASSED, got %s", name, cell.Steps[i].Outcome)
		}
		if cell.Steps[i].StartedAt.IsZero() || cell.Steps[i].FinishedAt.Before(cell.Steps[i].StartedAt) {
			t.Errorf("step %s: invalid timing", name)
		}
	}
}

func TestCellRunner_FailFast(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: ok
        uses: probe
      - name: broken
        uses: probe
      - name: never
        uses: probe
`)

	fake := &fakeAction{
		typ: "probe",
		fail: func(req *steps.Request) error {
			if req.Step == "broken" {
				return errors.New("tests failed")
			}
			return nil
		},
	}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusFailed {
		t.Fatalf("expected FAILED, got %s", cell.Status)
	}
	if !strings.Contains(cell.Error, "broken") {
		t.Errorf("cell error should name the failed step, got %q", cell.Error)
	}

	outcomes := []domain.StepOutcome{
		domain.StepOutcomePassed,
		domain.StepOutcomeFailed,
		domain.StepOutcomeSkippedAfterFailure,
	}
	for i, want := range outcomes {
		if cell.Steps[i].Outcome != want {
			t.Errorf("step %d: expected %s, got %s", i, want, cell.Steps[i].Outcome)
		}
	}

	// Шаг после падения не выполнялся
	for _, name := range fake.callNames() {
		if name == "never" {
			t.Error("step after failure must not execute")
		}
	}
	if !cell.Steps[2].StartedAt.IsZero() {
		t.Error("skipped step should have zero start time")
	}
}

func TestCellRunner_ConditionSkip(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push, pull_request]
jobs:
  build:
    steps:
      - name: always
        uses: probe
      - name: only-push
        uses: probe
        if:
          event: push
      - name: after
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	rc := domain.RunContext{Event: domain.EventPullRequest, Ref: "refs/heads/feature"}
	if err := r.Run(context.Background(), def, cell, rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("expected PASSED, got %s (%s)", cell.Status, cell.Error)
	}
	if cell.Steps[1].Outcome != domain.StepOutcomeSkipped {
		t.Errorf("expected SKIPPED, got %s", cell.Steps[1].Outcome)
	}
	if cell.Steps[2].Outcome != domain.StepOutcomePassed {
		t.Errorf("step after skipped must run, got %s", cell.Steps[2].Outcome)
	}

	got := fake.callNames()
	if len(got) != 2 || got[0] != "always" || got[1] != "after" {
		t.Errorf("unexpected execution order: %v", got)
	}
}

func TestCellRunner_FailureBeatsCondition(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: broken
        uses: probe
      - name: conditional
        uses: probe
        if:
          event: pull_request
`)

	fake := &fakeAction{
		typ:  "probe",
		fail: func(*steps.Request) error { return errors.New("boom") },
	}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// После падения все оставшиеся шаги — SKIPPED_AFTER_FAILURE,
	// даже если их условие и так не выполнялось.
	if cell.Steps[1].Outcome != domain.StepOutcomeSkippedAfterFailure {
		t.Errorf("expected SKIPPED_AFTER_FAILURE, got %s", cell.Steps[1].Outcome)
	}
}

func TestCellRunner_ContinueOnError(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: flaky
        uses: probe
        continue-on-error: true
      - name: after
        uses: probe
`)

	fake := &fakeAction{
		typ: "probe",
		fail: func(req *steps.Request) error {
			if req.Step == "flaky" {
				return errors.New("flaky failure")
			}
			return nil
		},
	}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("continue-on-error failure must not fail the cell, got %s", cell.Status)
	}
	if cell.Steps[0].Outcome != domain.StepOutcomeFailed {
		t.Errorf("flaky step should record FAILED, got %s", cell.Steps[0].Outcome)
	}
	if cell.Steps[1].Outcome != domain.StepOutcomePassed {
		t.Errorf("step after flaky should run, got %s", cell.Steps[1].Outcome)
	}
}

func TestCellRunner_MissingSecret(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: upload
        uses: probe
        secrets:
          token: repo-token
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusFailed {
		t.Fatalf("expected FAILED, got %s", cell.Status)
	}
	if !strings.Contains(cell.Steps[0].Error, "repo-token") {
		t.Errorf("error should name the secret, got %q", cell.Steps[0].Error)
	}
	if !strings.Contains(cell.Steps[0].Error, "not found") {
		t.Errorf("expected not found error, got %q", cell.Steps[0].Error)
	}
	// Действие не выполнялось: секрет разрешается до вызова
	if len(fake.callNames()) != 0 {
		t.Error("action must not execute when a secret is unresolved")
	}
}

func TestCellRunner_EmptySecret(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: upload
        uses: probe
        secrets:
          token: repo-token
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{"repo-token": ""})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusFailed {
		t.Fatalf("empty secret must fail the step, got %s", cell.Status)
	}
	if len(fake.callNames()) != 0 {
		t.Error("action must not execute with an empty secret")
	}
}

func TestCellRunner_SecretResolvedOnlyWhenStepRuns(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push, pull_request]
jobs:
  build:
    steps:
      - name: publish
        uses: probe
        secrets:
          password: registry-password
        if:
          all:
            - event: push
            - ref-prefix: refs/tags/
`)

	fake := &fakeAction{typ: "probe"}
	// Секрета нет, но шаг пропускается по условию: ошибки быть не должно
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", nil)

	rc := domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}
	if err := r.Run(context.Background(), def, cell, rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("expected PASSED, got %s (%s)", cell.Status, cell.Error)
	}
	if cell.Steps[0].Outcome != domain.StepOutcomeSkipped {
		t.Errorf("expected SKIPPED, got %s", cell.Steps[0].Outcome)
	}
}

func TestCellRunner_SecretPassedToAction(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: upload
        uses: probe
        secrets:
          token: repo-token
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{"repo-token": "tok-value"})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("expected PASSED, got %s (%s)", cell.Status, cell.Error)
	}
	if got := fake.reqs[0].Secrets["token"]; got != "tok-value" {
		t.Errorf("expected resolved secret in request, got %q", got)
	}
	// Значение секрета не попадает в результат шага
	if strings.Contains(cell.Steps[0].Output, "tok-value") || strings.Contains(cell.Steps[0].Error, "tok-value") {
		t.Error("secret value must not appear in step result")
	}
}

func TestCellRunner_TemplateRender(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
env:
  MODE: fast
jobs:
  build:
    env:
      TOOLCHAIN: "{{ .Matrix.toolchain }}"
    steps:
      - name: setup
        uses: probe
        with:
          version: "{{ .Matrix.toolchain }}"
          mode: "{{ .Env.MODE }}"
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", map[string]string{"toolchain": "3.9"})

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cell.Status != domain.CellStatusPassed {
		t.Fatalf("expected PASSED, got %s (%s)", cell.Status, cell.Error)
	}

	req := fake.reqs[0]
	if req.Params["version"] != "3.9" {
		t.Errorf("expected rendered matrix value, got %q", req.Params["version"])
	}
	if req.Params["mode"] != "fast" {
		t.Errorf("expected rendered env value, got %q", req.Params["mode"])
	}
	if req.Env["TOOLCHAIN"] != "3.9" {
		t.Errorf("expected rendered job env, got %q", req.Env["TOOLCHAIN"])
	}
}

func TestCellRunner_TemplateMissingKey(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: setup
        uses: probe
        with:
          version: "{{ .Matrix.tolchain }}"
`)

	fake := &fakeAction{typ: "probe"}
	r := cellRunnerWith(t, fake, secrets.Static{})
	cell := newTestCell("build", map[string]string{"toolchain": "3.9"})

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Опечатка в имени оси роняет шаг, а не подставляет пустую строку
	if cell.Status != domain.CellStatusFailed {
		t.Fatalf("expected FAILED, got %s", cell.Status)
	}
	if len(fake.callNames()) != 0 {
		t.Error("action must not execute with unrendered params")
	}
}

func TestCellRunner_UnknownJob(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - run: echo hi
`)

	r := cellRunnerWith(t, &fakeAction{typ: "probe"}, secrets.Static{})
	cell := newTestCell("deploy", nil)

	err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush})
	if !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestCellRunner_UnknownAction(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: mystery
        uses: frobnicate
`)

	r := cellRunnerWith(t, &fakeAction{typ: "probe"}, secrets.Static{})
	cell := newTestCell("build", nil)

	if err := r.Run(context.Background(), def, cell, domain.RunContext{Event: domain.EventPush}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cell.Status != domain.CellStatusFailed {
		t.Fatalf("expected FAILED, got %s", cell.Status)
	}
	if !strings.Contains(cell.Steps[0].Error, "frobnicate") {
		t.Errorf("error should name the action, got %q", cell.Steps[0].Error)
	}
}
