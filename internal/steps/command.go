package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const (
	// ActionTypeCommand — тип действия shell-команды.
	ActionTypeCommand = "command"

	// ParamCommand — ключ параметра с текстом команды.
	ParamCommand = "command"
)

// CommandAction — выполнение shell-команды шага run.
//
// Команда запускается через sh -c в рабочей директории ячейки.
// Окружение процесса собирается из окружения воркера, переменных
// шага и секретов шага; stdout и stderr объединяются в Output.
type CommandAction struct{}

// NewCommandAction создаёт новый CommandAction.
func NewCommandAction() *CommandAction {
	return &CommandAction{}
}

// Type возвращает тип действия.
func (a *CommandAction) Type() string {
	return ActionTypeCommand
}

// Execute выполняет команду.
func (a *CommandAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	command, err := RequireParam(req, ParamCommand)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(req)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := Truncate(out.String())

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &Response{Output: output}, &CommandError{Cmd: command, ExitCode: exitErr.ExitCode()}
		}
		return nil, fmt.Errorf("run command: %w", runErr)
	}

	return &Response{Output: output}, nil
}

// buildEnv собирает окружение процесса шага.
//
// Секреты попадают только в окружение процесса и никогда в Output
// или логи.
func buildEnv(req *Request) []string {
	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range req.Secrets {
		env = append(env, k+"="+v)
	}
	return env
}
