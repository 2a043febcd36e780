package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const (
	// ActionTypePublish — тип действия публикации артефакта.
	ActionTypePublish = "registry-publish"

	// Параметры registry-publish.
	paramRegistry = "registry"
	paramArtifact = "artifact"
	paramUser     = "username"

	// SecretPublishPassword — имя секрета с паролем реестра.
	SecretPublishPassword = "password"

	// defaultPublishUser — имя пользователя реестра по умолчанию.
	defaultPublishUser = "__token__"
)

// PublishAction — публикация собранного артефакта в реестр пакетов.
//
// Загружает файл артефакта PUT-запросом с basic-авторизацией.
// Пароль обязателен и берётся только из секретов шага; действие
// никогда не отправляет запрос с пустыми учётными данными.
type PublishAction struct {
	client *http.Client
}

// NewPublishAction создаёт новый PublishAction.
func NewPublishAction() *PublishAction {
	return &PublishAction{
		client: &http.Client{Timeout: defaultUploadTimeout},
	}
}

// Type возвращает тип действия.
func (a *PublishAction) Type() string {
	return ActionTypePublish
}

// Execute выполняет публикацию артефакта.
func (a *PublishAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	registry, err := RequireParam(req, paramRegistry)
	if err != nil {
		return nil, err
	}
	artifact, err := RequireParam(req, paramArtifact)
	if err != nil {
		return nil, err
	}
	password, err := RequireSecret(req, SecretPublishPassword)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(req.Dir, artifact)
	f, err := os.Open(path)
	if err != nil {
		return nil, &PublishError{Registry: registry, Err: fmt.Errorf("open artifact: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &PublishError{Registry: registry, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, registry, f)
	if err != nil {
		return nil, &PublishError{Registry: registry, Err: err}
	}
	httpReq.ContentLength = info.Size()
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.SetBasicAuth(Param(req, paramUser, defaultPublishUser), password)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, &PublishError{Registry: registry, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PublishError{Registry: registry, Status: resp.StatusCode, Body: Truncate(string(body))}
	}

	return &Response{
		Output: fmt.Sprintf("published %s (%d bytes) to %s", artifact, info.Size(), registry),
	}, nil
}
