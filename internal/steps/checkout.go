package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// ActionTypeCheckout — тип действия получения исходного кода.
	ActionTypeCheckout = "checkout"

	// Параметры checkout.
	paramRepo = "repo"
	paramPath = "path"
	paramRef  = "ref"
	paramDest = "dest"
)

// CheckoutAction — получение исходного кода в рабочую директорию ячейки.
//
// Поддерживает два источника: удалённый git-репозиторий (параметр repo,
// клонирование с --depth 1) и локальную директорию (параметр path,
// копирование файлов). Локальный источник используется CLI-раннером
// для запуска конвейера над текущим деревом.
type CheckoutAction struct{}

// NewCheckoutAction создаёт новый CheckoutAction.
func NewCheckoutAction() *CheckoutAction {
	return &CheckoutAction{}
}

// Type возвращает тип действия.
func (a *CheckoutAction) Type() string {
	return ActionTypeCheckout
}

// Execute выполняет получение исходного кода.
func (a *CheckoutAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	dest := filepath.Join(req.Dir, Param(req, paramDest, "."))

	if local := Param(req, paramPath, ""); local != "" {
		return a.copyLocal(local, dest)
	}

	repo, err := RequireParam(req, paramRepo)
	if err != nil {
		return nil, err
	}
	return a.clone(ctx, req, repo, dest)
}

// copyLocal копирует локальную директорию в рабочую директорию ячейки.
func (a *CheckoutAction) copyLocal(src, dest string) (*Response, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if err := copyFS(dest, os.DirFS(src)); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", src, err)
	}
	return &Response{Output: fmt.Sprintf("copied %s", src)}, nil
}

// clone клонирует git-репозиторий.
func (a *CheckoutAction) clone(ctx context.Context, req *Request, repo, dest string) (*Response, error) {
	args := []string{"clone", "--depth", "1"}
	if ref := Param(req, paramRef, ""); ref != "" {
		args = append(args, "--branch", shortRef(ref))
	}
	args = append(args, repo, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("checkout %s: %w: %s", repo, err, Truncate(out.String()))
	}
	return &Response{Output: Truncate(out.String())}, nil
}

// shortRef приводит полное имя ссылки к имени ветки или тега.
func shortRef(ref string) string {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	ref = strings.TrimPrefix(ref, "refs/tags/")
	return ref
}
