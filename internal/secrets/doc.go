// Package secrets содержит провайдеры секретов.
//
// Секрет — это непрозрачный именованный credential, разрешаемый
// в момент выполнения. Значения секретов никогда не встречаются
// в определении pipeline, в логах и в результатах шагов.
//
// Провайдеры:
//   - Env    — переменные окружения CONVEYOR_SECRET_*
//   - Static — фиксированная карта (тесты, флаги CLI)
//   - Chain  — цепочка провайдеров с приоритетом
//   - LoadFile — TOML-файл с таблицей [secrets]
package secrets
