// Package worker выполняет ячейки матрицы.
//
// # Обзор
//
// Worker — stateless компонент системы Conveyor, который выполняет
// отдельные ячейки (cells), созданные Orchestrator'ом. Worker отвечает за:
//
//   - Получение ячеек из очереди RabbitMQ (event-driven)
//   - Периодическую проверку queued ячеек в БД (polling fallback)
//   - Выполнение всех шагов ячейки строго по порядку (fail-fast)
//   - Отправку результата обратно в очередь cells.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди cells.ready. Ячейки независимы,
// поэтому соседние ячейки одной матрицы спокойно выполняются
// на разных воркерах одновременно.
//
// # Выполнение ячейки
//
// Сами шаги выполняет runner.CellRunner: рендеринг шаблонов,
// проверка условий, разрешение секретов и реестр действий живут там.
// Worker добавляет поверх него интеграцию с БД и очередью:
//
//  1. Получение ячейки (из очереди или polling)
//  2. Загрузка ячейки из БД, проверка статуса QUEUED
//  3. Загрузка run и разбор снимка определения
//  4. Перевод ячейки в RUNNING
//  5. Выполнение шагов через CellRunner
//  6. Сохранение результата (PASSED/FAILED, шаги, ошибка)
//  7. Публикация cell.completed для Orchestrator
//
// # Ошибки
//
// Падение шага — это результат, а не ошибка обработки: оно сохраняется
// в статусе ячейки и не приводит к requeue сообщения. Ошибкой обработки
// считаются только инфраструктурные сбои (БД недоступна), после которых
// сообщение возвращается в очередь.
package worker
