package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/runner"
)

func TestNew_DefaultConfig(t *testing.T) {
	w := New(Config{})

	if w.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, w.pollInterval)
	}
	if w.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", defaultBatchSize, w.batchSize)
	}
	if w.runner == nil {
		t.Error("runner should be initialized")
	}
	if w.logger == nil {
		t.Error("logger should be initialized")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	w := New(Config{
		PollInterval: 5 * time.Second,
		BatchSize:    25,
	})

	if w.pollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", w.pollInterval)
	}
	if w.batchSize != 25 {
		t.Errorf("expected batch size 25, got %d", w.batchSize)
	}
}

func TestNew_CustomRunner(t *testing.T) {
	cellRunner := runner.NewCellRunner(runner.CellConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := New(Config{Runner: cellRunner})

	if w.runner != cellRunner {
		t.Error("custom runner should be used")
	}
}

func TestWorker_IsStopped(t *testing.T) {
	w := New(Config{})

	if w.IsStopped() {
		t.Error("should not be stopped initially")
	}

	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	if !w.IsStopped() {
		t.Error("should be stopped")
	}
}

func TestPublishCompletion_NoPublisher(t *testing.T) {
	w := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	cell := &domain.Cell{
		ID:     uuid.New(),
		RunID:  uuid.New(),
		Job:    "build",
		Status: domain.CellStatusPassed,
	}

	// Без publisher завершение не считается ошибкой: результат уже в БД
	if err := w.publishCompletion(context.Background(), w.logger, cell); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
