package domain

// PipelineResult — итог выполнения всех ячеек одного запуска.
//
// Используется локальным раннером и при финализации run'а:
// общий статус SUCCEEDED тогда и только тогда, когда каждая
// выполненная ячейка завершилась PASSED.
type PipelineResult struct {
	// Overall — агрегированный статус запуска.
	Overall RunStatus `json:"overall"`

	// Cells — ячейки в детерминированном порядке
	// (джобы в порядке обхода DAG, внутри джоба — по Index).
	Cells []*Cell `json:"cells"`
}

// Passed возвращает true, если запуск завершился успешно.
func (r *PipelineResult) Passed() bool {
	return r.Overall == RunStatusSucceeded
}

// OverallStatus вычисляет агрегированный статус по ячейкам.
//
// FAILED, если хотя бы одна ячейка FAILED; иначе SUCCEEDED.
// Пропущенные ячейки не несут сигнала pass/fail и на агрегат
// не влияют (run к этому моменту уже содержит упавшую ячейку,
// из-за которой они были пропущены).
func OverallStatus(cells []*Cell) RunStatus {
	for _, c := range cells {
		if c.Status == CellStatusFailed {
			return RunStatusFailed
		}
	}
	return RunStatusSucceeded
}
