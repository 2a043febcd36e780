package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/secrets"
	"github.com/shaiso/conveyor/internal/steps"
)

func localRunnerWith(t *testing.T, fake *fakeAction, provider secrets.Provider) *LocalRunner {
	t.Helper()
	return NewLocalRunner(LocalConfig{
		Cells:  cellRunnerWith(t, fake, provider),
		Logger: quietLogger(),
	})
}

func cellByJobIndex(t *testing.T, result *domain.PipelineResult, job string, index int) *domain.Cell {
	t.Helper()
	for _, c := range result.Cells {
		if c.Job == job && c.Index == index {
			return c
		}
	}
	t.Fatalf("cell %s[%d] not found in result", job, index)
	return nil
}

func TestLocalRunner_MatrixExpansion(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    strategy:
      matrix:
        toolchain: ["3.6", "3.7", "3.9"]
    steps:
      - name: setup
        uses: probe
        with:
          version: "{{ .Matrix.toolchain }}"
      - name: test
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(result.Cells))
	}
	if result.Overall != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Overall)
	}
	if !result.Passed() {
		t.Error("result should pass")
	}

	// Каждая ячейка получила своё значение оси
	want := []string{"3.6", "3.7", "3.9"}
	for i, version := range want {
		cell := cellByJobIndex(t, result, "build", i)
		if cell.Params["toolchain"] != version {
			t.Errorf("cell %d: expected toolchain %s, got %s", i, version, cell.Params["toolchain"])
		}
		if cell.Status != domain.CellStatusPassed {
			t.Errorf("cell %d: expected PASSED, got %s", i, cell.Status)
		}
	}

	// Все ячейки совместно выполнили 6 шагов
	if calls := fake.callNames(); len(calls) != 6 {
		t.Errorf("expected 6 step executions, got %d", len(calls))
	}
}

func TestLocalRunner_CellIsolation(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    strategy:
      matrix:
        toolchain: ["3.6", "3.7", "3.9"]
    steps:
      - name: test
        uses: probe
        with:
          version: "{{ .Matrix.toolchain }}"
      - name: report
        uses: probe
`)

	fake := &fakeAction{
		typ: "probe",
		fail: func(req *steps.Request) error {
			if req.Step == "test" && req.Params["version"] == "3.7" {
				return errors.New("assertion failed")
			}
			return nil
		},
	}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Падение одной ячейки не трогает остальные
	if result.Overall != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", result.Overall)
	}
	if result.Passed() {
		t.Error("result must not pass")
	}

	for i, wantStatus := range []domain.CellStatus{
		domain.CellStatusPassed,
		domain.CellStatusFailed,
		domain.CellStatusPassed,
	} {
		cell := cellByJobIndex(t, result, "build", i)
		if cell.Status != wantStatus {
			t.Errorf("cell %d: expected %s, got %s", i, wantStatus, cell.Status)
		}
	}

	// В упавшей ячейке последующие шаги пропущены
	failed := cellByJobIndex(t, result, "build", 1)
	if failed.Steps[1].Outcome != domain.StepOutcomeSkippedAfterFailure {
		t.Errorf("expected SKIPPED_AFTER_FAILURE, got %s", failed.Steps[1].Outcome)
	}
}

func TestLocalRunner_PublishOnlyOnTag(t *testing.T) {
	src := `
name: ci
on: [push, pull_request]
jobs:
  release:
    steps:
      - name: build
        uses: probe
      - name: publish
        uses: probe
        secrets:
          password: registry-password
        if:
          all:
            - event: push
            - ref-prefix: refs/tags/
`

	tests := []struct {
		name        string
		rc          domain.RunContext
		provider    secrets.Provider
		wantOutcome domain.StepOutcome
	}{
		{
			name:        "tag push publishes",
			rc:          domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.2.0"},
			provider:    secrets.Static{"registry-password": "pass"},
			wantOutcome: domain.StepOutcomePassed,
		},
		{
			name:        "branch push skips publish",
			rc:          domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"},
			provider:    secrets.Static{},
			wantOutcome: domain.StepOutcomeSkipped,
		},
		{
			name:        "pull request on tag ref skips publish",
			rc:          domain.RunContext{Event: domain.EventPullRequest, Ref: "refs/tags/v1.2.0"},
			provider:    secrets.Static{},
			wantOutcome: domain.StepOutcomeSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := parseDef(t, src)
			fake := &fakeAction{typ: "probe"}
			r := localRunnerWith(t, fake, tt.provider)

			result, err := r.Run(context.Background(), def, tt.rc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Overall != domain.RunStatusSucceeded {
				t.Fatalf("expected SUCCEEDED, got %s", result.Overall)
			}

			cell := cellByJobIndex(t, result, "release", 0)
			if cell.Steps[1].Outcome != tt.wantOutcome {
				t.Errorf("publish step: expected %s, got %s", tt.wantOutcome, cell.Steps[1].Outcome)
			}
		})
	}
}

func TestLocalRunner_SkipDownstreamOfFailedJob(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  lint:
    steps:
      - name: lint
        uses: probe
  build:
    needs: [lint]
    strategy:
      matrix:
        toolchain: ["3.6", "3.9"]
    steps:
      - name: build
        uses: probe
  notify:
    needs: [build]
    steps:
      - name: notify
        uses: probe
`)

	fake := &fakeAction{
		typ: "probe",
		fail: func(req *steps.Request) error {
			if req.Step == "lint" {
				return errors.New("style violations")
			}
			return nil
		},
	}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Overall != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", result.Overall)
	}

	if cell := cellByJobIndex(t, result, "lint", 0); cell.Status != domain.CellStatusFailed {
		t.Errorf("lint: expected FAILED, got %s", cell.Status)
	}
	for i := 0; i < 2; i++ {
		if cell := cellByJobIndex(t, result, "build", i); cell.Status != domain.CellStatusSkipped {
			t.Errorf("build[%d]: expected SKIPPED, got %s", i, cell.Status)
		}
	}
	if cell := cellByJobIndex(t, result, "notify", 0); cell.Status != domain.CellStatusSkipped {
		t.Errorf("notify: expected SKIPPED, got %s", cell.Status)
	}

	// Выполнялся только lint
	if calls := fake.callNames(); len(calls) != 1 || calls[0] != "lint" {
		t.Errorf("expected only lint to run, got %v", calls)
	}
}

func TestLocalRunner_NeedsOrder(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  test:
    needs: [build]
    steps:
      - name: test
        uses: probe
  build:
    steps:
      - name: build
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Overall != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", result.Overall)
	}

	calls := fake.callNames()
	if len(calls) != 2 || calls[0] != "build" || calls[1] != "test" {
		t.Errorf("expected build before test, got %v", calls)
	}
}

func TestLocalRunner_EventNotAllowed(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - run: echo hi
`)

	r := localRunnerWith(t, &fakeAction{typ: "probe"}, secrets.Static{})

	_, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPullRequest})
	if !errors.Is(err, ErrEventNotAllowed) {
		t.Errorf("expected ErrEventNotAllowed, got %v", err)
	}
}

func TestLocalRunner_ManualAlwaysAllowed(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: build
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventManual, Ref: "refs/heads/main"})
	if err != nil {
		t.Fatalf("manual run should be allowed: %v", err)
	}
	if result.Overall != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Overall)
	}
}

func TestLocalRunner_SingleCellWithoutMatrix(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    steps:
      - name: build
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(result.Cells))
	}
	if len(result.Cells[0].Params) != 0 {
		t.Errorf("expected empty params, got %v", result.Cells[0].Params)
	}
}

func TestLocalRunner_IndependentJobsBothRun(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  lint:
    steps:
      - name: lint
        uses: probe
  docs:
    steps:
      - name: docs
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := localRunnerWith(t, fake, secrets.Static{})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(result.Cells))
	}
	for _, cell := range result.Cells {
		if cell.Status != domain.CellStatusPassed {
			t.Errorf("%s: expected PASSED, got %s", cell.Job, cell.Status)
		}
	}
}

func TestLocalRunner_MaxParallel(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    strategy:
      matrix:
        shard: ["0", "1", "2", "3"]
    steps:
      - name: test
        uses: probe
`)

	fake := &fakeAction{typ: "probe"}
	r := NewLocalRunner(LocalConfig{
		Cells:       cellRunnerWith(t, fake, secrets.Static{}),
		Logger:      quietLogger(),
		MaxParallel: 1,
	})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Overall != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Overall)
	}
	if len(fake.callNames()) != 4 {
		t.Errorf("expected 4 executions, got %d", len(fake.callNames()))
	}
}

func TestLocalRunner_CommandSteps(t *testing.T) {
	def := parseDef(t, `
name: ci
on: [push]
jobs:
  build:
    strategy:
      matrix:
        mode: ["debug", "release"]
    steps:
      - name: announce
        run: echo building {{ .Matrix.mode }}
      - name: verify
        run: test -n "{{ .Matrix.mode }}"
`)

	r := NewLocalRunner(LocalConfig{
		Cells: NewCellRunner(CellConfig{
			Secrets: secrets.Static{},
			Logger:  quietLogger(),
			WorkDir: t.TempDir(),
		}),
		Logger: quietLogger(),
	})

	result, err := r.Run(context.Background(), def, domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Overall != domain.RunStatusSucceeded {
		for _, c := range result.Cells {
			t.Logf("cell %s[%d]: %s %s", c.Job, c.Index, c.Status, c.Error)
		}
		t.Fatalf("expected SUCCEEDED, got %s", result.Overall)
	}

	for i, mode := range []string{"debug", "release"} {
		cell := cellByJobIndex(t, result, "build", i)
		if !strings.Contains(cell.Steps[0].Output, fmt.Sprintf("building %s", mode)) {
			t.Errorf("cell %d: expected command output, got %q", i, cell.Steps[0].Output)
		}
	}
}
