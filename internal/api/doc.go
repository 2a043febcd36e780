// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (репозитории, publisher, logger)
//   - routes.go            — chi-роутер и регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - pipeline_handler.go  — обработчики для /pipelines
//   - run_handler.go       — обработчики для /runs
//   - schedule_handler.go  — обработчики для /schedules
//
// API предоставляет REST endpoints для управления pipelines, runs
// и schedules. Запуск run проверяет событие против триггеров определения
// до создания записи, поэтому клиент получает 422 сразу.
package api
