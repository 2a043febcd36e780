// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.pending      — новый run ожидает планирования
//   - cell.ready       — ячейка готова к выполнению воркером
//   - cell.completed   — ячейка завершена (PASSED или FAILED)
//
// Семантика доставки — at-least-once с ограниченным повтором: сообщение,
// на котором обработчик вернул ошибку, передоставляется один раз, после
// чего уходит в DLQ. ErrReject отправляет в DLQ сразу. Потерянные
// сообщения не теряют работу: компоненты добирают состояние из БД
// через polling.
//
// Exchanges:
//   - conveyor.runs    — события runs
//   - conveyor.cells   — события cells
//   - conveyor.dlq     — dead letter queue
package mq
