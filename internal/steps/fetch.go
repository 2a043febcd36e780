package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// ActionTypeFetch — тип действия загрузки бинарного артефакта.
	ActionTypeFetch = "fetch-binary"

	// Параметры fetch-binary.
	paramURL  = "url"
	paramFile = "dest"

	// defaultFetchTimeout — таймаут загрузки по умолчанию.
	defaultFetchTimeout = 5 * time.Minute
)

// FetchAction — загрузка внешнего бинарного инструмента.
//
// Скачивает файл по URL в рабочую директорию ячейки и делает его
// исполняемым. Используется для инструментов сборки, не входящих
// в тулчейн (генераторы кода, линтеры).
type FetchAction struct {
	client *http.Client
}

// NewFetchAction создаёт новый FetchAction.
func NewFetchAction() *FetchAction {
	return &FetchAction{
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Type возвращает тип действия.
func (a *FetchAction) Type() string {
	return ActionTypeFetch
}

// Execute выполняет загрузку.
func (a *FetchAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	url, err := RequireParam(req, paramURL)
	if err != nil {
		return nil, err
	}
	dest, err := RequireParam(req, paramFile)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: url, Status: resp.StatusCode}
	}

	path := filepath.Join(req.Dir, dest)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	return &Response{Output: fmt.Sprintf("downloaded %s (%d bytes)", dest, n)}, nil
}
