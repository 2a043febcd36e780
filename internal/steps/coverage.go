package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// ActionTypeCoverage — тип действия выгрузки отчёта о покрытии.
	ActionTypeCoverage = "coverage-upload"

	// Параметры coverage-upload.
	paramService = "service"
	paramReport  = "report"

	// SecretToken — имя секрета с токеном внешнего сервиса.
	SecretToken = "token"

	// defaultCoverageReport — путь отчёта по умолчанию.
	defaultCoverageReport = "coverage.out"

	// defaultUploadTimeout — таймаут выгрузки по умолчанию.
	defaultUploadTimeout = 2 * time.Minute
)

// CoverageAction — выгрузка отчёта о покрытии во внешний сервис.
//
// Читает файл отчёта из рабочей директории и отправляет его POST-запросом
// на URL сервиса. Токен авторизации обязателен и берётся только из
// секретов шага: без объявленного секрета token действие завершается
// ошибкой, запрос с пустым токеном не отправляется.
type CoverageAction struct {
	client *http.Client
}

// NewCoverageAction создаёт новый CoverageAction.
func NewCoverageAction() *CoverageAction {
	return &CoverageAction{
		client: &http.Client{Timeout: defaultUploadTimeout},
	}
}

// Type возвращает тип действия.
func (a *CoverageAction) Type() string {
	return ActionTypeCoverage
}

// Execute выполняет выгрузку отчёта.
func (a *CoverageAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	service, err := RequireParam(req, paramService)
	if err != nil {
		return nil, err
	}
	token, err := RequireSecret(req, SecretToken)
	if err != nil {
		return nil, err
	}

	report := filepath.Join(req.Dir, Param(req, paramReport, defaultCoverageReport))
	data, err := os.ReadFile(report)
	if err != nil {
		return nil, &UploadError{Service: service, Err: fmt.Errorf("read report: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, service, bytes.NewReader(data))
	if err != nil {
		return nil, &UploadError{Service: service, Err: err}
	}
	httpReq.Header.Set("Content-Type", "text/plain")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, &UploadError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UploadError{Service: service, Status: resp.StatusCode, Body: Truncate(string(body))}
	}

	return &Response{
		Output: fmt.Sprintf("uploaded %d bytes to %s", len(data), service),
	}, nil
}
