package steps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

const (
	// ActionTypeToolchain — тип действия установки тулчейна.
	ActionTypeToolchain = "setup-toolchain"

	// Параметры setup-toolchain.
	paramVersion   = "version"
	paramInstaller = "installer"

	// defaultInstaller — установщик тулчейна по умолчанию.
	defaultInstaller = "toolchain-install"
)

// ToolchainAction — установка версии тулчейна в ячейке.
//
// Запускает установщик с запрошенной версией: "installer version".
// Установщик берётся из параметра installer, конфигурации воркера
// или значения по умолчанию. Версия приходит отрендеренной, поэтому
// шаги матричной сборки устанавливают версию своей ячейки.
type ToolchainAction struct {
	installer string
}

// NewToolchainAction создаёт ToolchainAction с заданным установщиком.
// Пустая строка означает установщик по умолчанию.
func NewToolchainAction(installer string) *ToolchainAction {
	if installer == "" {
		installer = defaultInstaller
	}
	return &ToolchainAction{installer: installer}
}

// Type возвращает тип действия.
func (a *ToolchainAction) Type() string {
	return ActionTypeToolchain
}

// Execute выполняет установку тулчейна.
func (a *ToolchainAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	version, err := RequireParam(req, paramVersion)
	if err != nil {
		return nil, err
	}

	installer := Param(req, paramInstaller, a.installer)
	command := installer + " " + version

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(req)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, &InstallError{What: "toolchain " + version, Err: fmt.Errorf("%w: %s", err, Truncate(out.String()))}
	}

	return &Response{Output: Truncate(out.String())}, nil
}
