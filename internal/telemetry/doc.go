// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog, хелперы для
//     run_id / cell_id / pipeline_id в контексте
//   - metrics.go — Prometheus метрики: счётчики и гистограммы
//     завершённых runs и cells, gauge активных runs
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
