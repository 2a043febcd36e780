package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Action — исполняемое действие шага конвейера.
//
// Каждое действие регистрируется в Registry под уникальным типом
// (command, checkout, setup-toolchain, ...) и выполняется воркером
// или локальным раннером в рамках ячейки.
type Action interface {
	// Type возвращает уникальный тип действия.
	Type() string

	// Execute выполняет действие с переданным запросом.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения действия.
//
// Params и Env приходят уже отрендеренными (подстановки матрицы
// и контекста запуска выполнены раннером). Secrets содержит
// разрешённые значения секретов, объявленных этим шагом; действия
// не должны включать их в Output.
type Request struct {
	// Step — имя шага в определении конвейера.
	Step string

	// Params — параметры действия (секция with, для command — ключ command).
	Params map[string]string

	// Env — переменные окружения шага.
	Env map[string]string

	// Secrets — разрешённые секреты шага: имя параметра → значение.
	Secrets map[string]string

	// Dir — рабочая директория ячейки.
	Dir string
}

// Response — результат выполнения действия.
type Response struct {
	// Output — вывод действия, усечённый до maxOutputBytes.
	Output string
}

// maxOutputBytes — предел сохраняемого вывода шага.
const maxOutputBytes = 64 * 1024

// Param возвращает параметр запроса или значение по умолчанию.
func Param(req *Request, key, fallback string) string {
	if v, ok := req.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// RequireParam возвращает обязательный параметр запроса.
func RequireParam(req *Request, key string) (string, error) {
	v, ok := req.Params[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s: %s", ErrMissingParam, req.Step, key)
	}
	return v, nil
}

// RequireSecret возвращает обязательный секрет запроса.
//
// Отсутствие секрета означает, что шаг не объявил его в определении:
// действие завершается ошибкой, пустое значение не используется.
func RequireSecret(req *Request, key string) (string, error) {
	v, ok := req.Secrets[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s: %s", ErrMissingSecret, req.Step, key)
	}
	return v, nil
}

// ParamDuration разбирает параметр-длительность ("30s", "2m") или
// целое число секунд.
func ParamDuration(req *Request, key string) (time.Duration, error) {
	raw, err := RequireParam(req, key)
	if err != nil {
		return 0, err
	}
	if sec, err := strconv.Atoi(raw); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s: %v", ErrInvalidParam, req.Step, key, err)
	}
	return d, nil
}

// Truncate усекает вывод до предела хранения.
func Truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... (output truncated)"
}
