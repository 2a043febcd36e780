package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/runner"
)

// Значения конфигурации по умолчанию.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50

	// Ячейки выполняются долго (shell-команды, сеть), поэтому воркер
	// забирает из очереди по одной и не держит лишние сообщения.
	cellPrefetch = 1
)

// Worker выполняет отдельные ячейки матрицы.
//
// Worker — stateless компонент системы, который:
//   - Получает ячейки из очереди RabbitMQ (event-driven)
//   - Периодически проверяет queued ячейки в БД (polling fallback)
//   - Выполняет шаги ячейки через runner.CellRunner
//   - Отправляет результат обратно в очередь cells.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	// Repositories
	cellRepo *repo.CellRepo
	runRepo  *repo.RunRepo

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Cell runner
	runner *runner.CellRunner

	// Consumer
	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Repositories
	CellRepo *repo.CellRepo
	RunRepo  *repo.RunRepo

	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Runner (опционально; если nil — используется NewCellRunner
	// с настройками по умолчанию)
	Runner *runner.CellRunner

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество ячеек за один poll (default: 50)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cellRunner := cfg.Runner
	if cellRunner == nil {
		cellRunner = runner.NewCellRunner(runner.CellConfig{Logger: logger})
	}

	return &Worker{
		cellRepo:     cfg.CellRepo,
		runRepo:      cfg.RunRepo,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		runner:       cellRunner,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для cells.ready
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	// Создаём consumer. Тег с hostname различает экземпляры
	// в management UI при горизонтальном масштабировании.
	tag := "worker"
	if host, err := os.Hostname(); err == nil {
		tag = "worker-" + host
	}
	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueCellsReady),
		Tag:      tag,
		Handler:  w.handleCellReady,
		Prefetch: cellPrefetch,
	})

	// Запускаем consumer
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("cell consumer error", "error", err)
		}
	}()

	// Запускаем polling
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем ячейки, созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	cells, err := w.cellRepo.ListQueued(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list queued cells", "error", err)
		return
	}

	if len(cells) == 0 {
		return
	}

	w.logger.Debug("poll found queued cells", "count", len(cells))

	for i := range cells {
		cell := &cells[i]

		if err := w.processCell(ctx, cell.ID); err != nil {
			if errors.Is(err, ErrCellNotQueued) {
				// Ячейку уже забрал другой воркер
				continue
			}
			w.logger.Error("failed to process cell from poll",
				"cell_id", cell.ID,
				"error", err,
			)
		}
	}
}
