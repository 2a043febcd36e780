package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	runsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "runs",
			Name:      "finished_total",
			Help:      "Finished pipeline runs by terminal status.",
		},
		[]string{"status"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conveyor",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)
	cellsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "cells",
			Name:      "finished_total",
			Help:      "Finished cells by terminal status.",
		},
		[]string{"status"},
	)
	cellDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conveyor",
			Subsystem: "cells",
			Name:      "duration_seconds",
			Help:      "Cell execution duration in seconds.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conveyor",
			Subsystem: "steps",
			Name:      "duration_seconds",
			Help:      "Executed step duration in seconds by action type.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"action"},
	)
	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conveyor",
			Subsystem: "runs",
			Name:      "active",
			Help:      "Runs currently tracked by the orchestrator.",
		},
	)
	activeCells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conveyor",
			Subsystem: "cells",
			Name:      "active",
			Help:      "Cells currently executing on this worker.",
		},
	)
	scheduledRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "scheduler",
			Name:      "runs_created_total",
			Help:      "Runs created by the scheduler.",
		},
	)
)

// RegisterMetrics регистрирует метрики в default registry.
// Безопасно вызывать многократно.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			runsFinished,
			runDuration,
			cellsFinished,
			cellDuration,
			stepDuration,
			activeRuns,
			activeCells,
			scheduledRuns,
		)
	})
}

// RecordRunFinished учитывает завершённый run.
func RecordRunFinished(status string, duration time.Duration) {
	RegisterMetrics()
	runsFinished.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCellFinished учитывает завершённую ячейку.
func RecordCellFinished(status string, duration time.Duration) {
	RegisterMetrics()
	cellsFinished.WithLabelValues(status).Inc()
	cellDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepExecuted учитывает выполненный шаг.
// Пропущенные шаги не учитываются: их длительность нулевая.
func RecordStepExecuted(action string, duration time.Duration) {
	RegisterMetrics()
	stepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncActiveCells учитывает начало выполнения ячейки на воркере.
func IncActiveCells() {
	RegisterMetrics()
	activeCells.Inc()
}

// DecActiveCells учитывает завершение выполнения ячейки.
func DecActiveCells() {
	RegisterMetrics()
	activeCells.Dec()
}

// SetActiveRuns обновляет gauge активных runs.
func SetActiveRuns(n int) {
	RegisterMetrics()
	activeRuns.Set(float64(n))
}

// RecordScheduledRun учитывает run, созданный планировщиком.
func RecordScheduledRun() {
	RegisterMetrics()
	scheduledRuns.Inc()
}
