// Package engine содержит движок разбора определений pipeline.
//
// Включает:
//   - parser.go    — разбор и валидация YAML-определения
//   - matrix.go    — разворачивание матрицы (декартово произведение осей)
//   - condition.go — условия шагов (дерево тегированных вариантов)
//   - dag.go       — построение и обход DAG джобов (needs)
//   - template.go  — рендеринг Go templates ({{ .Matrix.x }})
//
// Engine отвечает за понимание структуры pipeline: какие ячейки
// породит матрица, в каком порядке выполняются джобы и при каких
// условиях выполняется шаг. Само выполнение — в пакете runner.
package engine
