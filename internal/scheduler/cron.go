package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/conveyor/internal/domain"
)

// cronParser — парсер cron-выражений (классические 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время выполнения для schedule.
// Учитывает timezone schedule; результат всегда в UTC для хранения в БД.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	// Загружаем timezone
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		// Fallback на UTC если timezone невалидный
		loc = time.UTC
	}

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, from.In(loc))
	}

	if sched.IsInterval() {
		return calculateNextInterval(sched, from), nil
	}

	// Ни cron, ни interval — schedule некорректный
	return time.Time{}, fmt.Errorf("schedule has neither cron_expr nor interval_sec")
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	next := schedule.Next(from)
	if next.IsZero() {
		// Выражение валидно, но никогда не сработает
		// (например "0 0 30 2 *" — 30 февраля)
		return time.Time{}, fmt.Errorf("cron expression %q never fires", cronExpr)
	}
	return next.UTC(), nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
//
// Интервал привязан к существующему next_due_at: следующий слот
// считается от него, а не от момента тика. Опоздавшие тики и простой
// планировщика не сдвигают сетку, пропущенные слоты схлопываются
// в один (processSchedule создаёт не больше одного run за тик).
func calculateNextInterval(sched *domain.Schedule, from time.Time) time.Time {
	interval := time.Duration(sched.IntervalSec) * time.Second

	if sched.NextDueAt != nil && !sched.NextDueAt.IsZero() {
		anchor := sched.NextDueAt.UTC()
		elapsed := from.Sub(anchor)
		if elapsed < 0 {
			// Срок ещё не наступил
			return anchor
		}
		steps := int64(elapsed/interval) + 1
		return anchor.Add(time.Duration(steps) * interval)
	}

	// Новый schedule без привязки: первый слот через interval от now
	return from.Add(interval).UTC()
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первое время выполнения для нового
// schedule. Используется при создании schedule через API.
func CalculateInitialNextDue(sched *domain.Schedule) (time.Time, error) {
	return CalculateNextDue(sched, time.Now())
}
