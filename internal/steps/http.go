package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ActionTypeHTTP — тип HTTP-действия.
	ActionTypeHTTP = "http"

	// Параметры http.
	paramMethod      = "method"
	paramBody        = "body"
	paramContentType = "content-type"
	paramTimeout     = "timeout"

	// defaultHTTPTimeout — таймаут HTTP-запроса по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
)

// HTTPAction — произвольный HTTP-запрос из шага конвейера.
//
// Используется для веб-хуков и оповещений: деплой-триггеры,
// уведомления чат-ботов. Ответ с кодом >= 400 считается ошибкой шага.
type HTTPAction struct{}

// NewHTTPAction создаёт новый HTTPAction.
func NewHTTPAction() *HTTPAction {
	return &HTTPAction{}
}

// Type возвращает тип действия.
func (a *HTTPAction) Type() string {
	return ActionTypeHTTP
}

// Execute выполняет HTTP-запрос.
func (a *HTTPAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	url, err := RequireParam(req, paramURL)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(Param(req, paramMethod, http.MethodGet))
	body := Param(req, paramBody, "")

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != "" {
		httpReq.Header.Set("Content-Type", Param(req, paramContentType, "application/json"))
	}
	if token, ok := req.Secrets[SecretToken]; ok && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: a.timeout(req)}
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       Truncate(string(respBody)),
		}
	}

	return &Response{Output: Truncate(string(respBody))}, nil
}

// timeout возвращает таймаут запроса из параметров или значение
// по умолчанию.
func (a *HTTPAction) timeout(req *Request) time.Duration {
	raw := Param(req, paramTimeout, "")
	if raw == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultHTTPTimeout
	}
	return d
}
