// Package runner выполняет ячейки и конвейеры.
//
// CellRunner — выполнение одной ячейки матрицы: последовательные шаги,
// условия, fail-fast, секреты. Используется воркером и LocalRunner.
//
// LocalRunner — выполнение конвейера целиком в одном процессе: DAG
// джобов волнами, ячейки параллельно. Используется CLI для локальных
// запусков без инфраструктуры.
package runner
