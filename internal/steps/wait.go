package steps

import (
	"context"
	"fmt"
	"time"
)

const (
	// ActionTypeWait — тип действия ожидания.
	ActionTypeWait = "wait"

	// paramFor — ключ параметра длительности ожидания.
	paramFor = "for"
)

// WaitAction — пауза между шагами конвейера.
//
// Приостанавливает ячейку на указанное время, например перед опросом
// внешнего сервиса после деплоя. Поддерживает graceful shutdown через
// context cancellation.
type WaitAction struct{}

// NewWaitAction создаёт новый WaitAction.
func NewWaitAction() *WaitAction {
	return &WaitAction{}
}

// Type возвращает тип действия.
func (a *WaitAction) Type() string {
	return ActionTypeWait
}

// Execute выполняет ожидание.
func (a *WaitAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	d, err := ParamDuration(req, paramFor)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
	case <-timer.C:
		return &Response{Output: fmt.Sprintf("waited %s", d)}, nil
	}
}
