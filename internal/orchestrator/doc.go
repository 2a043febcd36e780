// Package orchestrator управляет выполнением runs.
//
// Orchestrator отвечает за:
//   - Получение новых runs из очереди RabbitMQ
//   - Разбор снимка определения и построение DAG джобов
//   - Разворачивание матриц в ячейки и публикацию их для Worker'ов
//   - Отслеживание завершения ячеек
//   - Запуск следующих джобов, когда их needs выполнены
//   - Пропуск зависимых джобов, если джоб упал
//   - Финализацию run (SUCCEEDED/FAILED)
//   - Подхват через polling runs, события которых потерялись,
//     и возобновление осиротевших running runs после рестарта
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
