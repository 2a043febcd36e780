package steps

import (
	"errors"
	"fmt"
)

// Ошибки библиотеки действий.
var (
	// ErrActionNotFound — действие не зарегистрировано в реестре.
	ErrActionNotFound = errors.New("action not found")

	// ErrMissingParam — обязательный параметр действия не задан.
	ErrMissingParam = errors.New("missing required param")

	// ErrInvalidParam — параметр действия имеет неверный формат.
	ErrInvalidParam = errors.New("invalid param")

	// ErrMissingSecret — шаг не объявил обязательный для действия секрет.
	ErrMissingSecret = errors.New("missing required secret")

	// ErrActionCancelled — выполнение действия прервано отменой контекста.
	ErrActionCancelled = errors.New("action cancelled")
)

// CommandError — ошибка выполнения shell-команды.
type CommandError struct {
	Cmd      string
	ExitCode int
}

// Error возвращает строковое представление ошибки.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Cmd)
}

// InstallError — ошибка установки тулчейна или зависимостей.
type InstallError struct {
	What string // "toolchain 3.9", "dependencies"
	Err  error
}

// Error возвращает строковое представление ошибки.
func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.What, e.Err)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *InstallError) Unwrap() error {
	return e.Err
}

// DownloadError — ошибка загрузки внешнего артефакта.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

// Error возвращает строковое представление ошибки.
func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// UploadError — ошибка выгрузки отчёта о покрытии.
type UploadError struct {
	Service string
	Status  int
	Body    string
	Err     error
}

// Error возвращает строковое представление ошибки.
func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload to %s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("upload to %s: unexpected status %d", e.Service, e.Status)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// PublishError — ошибка публикации артефакта в реестр.
type PublishError struct {
	Registry string
	Status   int
	Body     string
	Err      error
}

// Error возвращает строковое представление ошибки.
func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish to %s: %v", e.Registry, e.Err)
	}
	return fmt.Sprintf("publish to %s: unexpected status %d", e.Registry, e.Status)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// HTTPError — ошибка HTTP-действия с кодом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error возвращает строковое представление ошибки.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http request failed: %s", e.Status)
}
