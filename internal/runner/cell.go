package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/secrets"
	"github.com/shaiso/conveyor/internal/steps"
)

// CellConfig — конфигурация CellRunner.
type CellConfig struct {
	// Registry — реестр действий. Nil означает DefaultRegistry.
	Registry *steps.Registry

	// Secrets — провайдер секретов. Nil означает переменные окружения
	// с префиксом по умолчанию.
	Secrets secrets.Provider

	// Logger — логгер. Nil означает slog.Default().
	Logger *slog.Logger

	// WorkDir — базовая директория рабочих директорий ячеек.
	// Пустая означает системную временную директорию.
	WorkDir string

	// KeepWorkDir отключает удаление рабочей директории после ячейки.
	KeepWorkDir bool
}

// CellRunner выполняет одну ячейку матрицы: последовательно проходит
// шаги джоба с fail-fast семантикой.
//
// Контракт выполнения:
//   - шаги выполняются строго по порядку определения;
//   - шаг с невыполненным условием получает исход SKIPPED и не влияет
//     на статус ячейки;
//   - после первого упавшего шага (без continue-on-error) оставшиеся
//     шаги получают исход SKIPPED_AFTER_FAILURE и не выполняются;
//   - секреты шага разрешаются непосредственно перед его выполнением;
//     неразрешимый или пустой секрет роняет шаг до каких-либо сетевых
//     вызовов, значения секретов не попадают в логи и результаты.
//
// Результат записывается в переданную ячейку через Mark-мутаторы.
type CellRunner struct {
	registry *steps.Registry
	secrets  secrets.Provider
	log      *slog.Logger
	workDir  string
	keep     bool
}

// NewCellRunner создаёт CellRunner с заполнением значений по умолчанию.
func NewCellRunner(cfg CellConfig) *CellRunner {
	if cfg.Registry == nil {
		cfg.Registry = steps.DefaultRegistry()
	}
	if cfg.Secrets == nil {
		cfg.Secrets = secrets.Env{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &CellRunner{
		registry: cfg.Registry,
		secrets:  cfg.Secrets,
		log:      cfg.Logger,
		workDir:  cfg.WorkDir,
		keep:     cfg.KeepWorkDir,
	}
}

// Run выполняет ячейку и записывает результат в неё.
//
// Ошибка возвращается только если ячейку невозможно было начать
// (джоб отсутствует в определении). Падение шагов — это результат,
// он сохраняется в статусе и списке шагов ячейки.
func (r *CellRunner) Run(ctx context.Context, def *engine.Definition, cell *domain.Cell, rc domain.RunContext) error {
	job, ok := def.Jobs[cell.Job]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, cell.Job)
	}

	log := r.log.With("run_id", cell.RunID, "job", cell.Job, "cell", cell.Index)
	log.Info("cell started", "params", cell.Params, "event", rc.Event, "ref", rc.Ref)

	cell.MarkRunning()

	dir, err := os.MkdirTemp(r.workDir, "cell-")
	if err != nil {
		cell.MarkFailed(nil, fmt.Sprintf("create workdir: %v", err))
		log.Error("cell failed", "error", err)
		return nil
	}
	if !r.keep {
		defer os.RemoveAll(dir)
	}

	results, runErr := r.runSteps(ctx, log, def, job, cell, rc, dir)
	if runErr != nil {
		cell.MarkFailed(results, runErr.Error())
		log.Warn("cell failed", "error", runErr, "duration", cell.Duration())
		return nil
	}

	cell.MarkPassed(results)
	log.Info("cell passed", "duration", cell.Duration())
	return nil
}

// runSteps проходит шаги джоба по порядку и возвращает их результаты
// вместе с первой ошибкой, уронившей ячейку.
func (r *CellRunner) runSteps(
	ctx context.Context,
	log *slog.Logger,
	def *engine.Definition,
	job *engine.Job,
	cell *domain.Cell,
	rc domain.RunContext,
	dir string,
) ([]domain.StepResult, error) {
	tmplCtx := engine.NewContext(cell.Params, rc)

	env, err := r.buildEnv(def, job, tmplCtx)
	if err != nil {
		return nil, err
	}

	results := make([]domain.StepResult, 0, len(job.Steps))
	var failed error

	for i := range job.Steps {
		step := &job.Steps[i]

		switch {
		case failed != nil:
			results = append(results, domain.StepResult{
				Name:    step.Name,
				Action:  step.Action(),
				Outcome: domain.StepOutcomeSkippedAfterFailure,
			})

		case step.If != nil && !step.If.Eval(rc):
			log.Debug("step skipped", "step", step.Name)
			results = append(results, domain.StepResult{
				Name:    step.Name,
				Action:  step.Action(),
				Outcome: domain.StepOutcomeSkipped,
			})

		default:
			res := r.executeStep(ctx, log, step, tmplCtx, env, dir)
			results = append(results, res)

			if res.Outcome == domain.StepOutcomeFailed && !step.ContinueOnError {
				failed = fmt.Errorf("step %q: %s", step.Name, res.Error)
			}
		}
	}

	return results, failed
}

// executeStep рендерит, подготавливает и выполняет один шаг.
func (r *CellRunner) executeStep(
	ctx context.Context,
	log *slog.Logger,
	step *engine.StepDef,
	tmplCtx *engine.Context,
	env map[string]string,
	dir string,
) domain.StepResult {
	res := domain.StepResult{
		Name:      step.Name,
		Action:    step.Action(),
		StartedAt: time.Now(),
	}
	fail := func(err error) domain.StepResult {
		res.FinishedAt = time.Now()
		res.Outcome = domain.StepOutcomeFailed
		res.Error = err.Error()
		log.Warn("step failed", "step", step.Name, "action", res.Action, "error", err)
		return res
	}

	rendered, err := engine.RenderStep(step, tmplCtx)
	if err != nil {
		return fail(err)
	}

	resolved, err := r.resolveSecrets(rendered)
	if err != nil {
		return fail(err)
	}

	action, err := r.registry.Get(rendered.Action())
	if err != nil {
		return fail(err)
	}

	log.Debug("step started", "step", step.Name, "action", res.Action)

	resp, execErr := action.Execute(ctx, &steps.Request{
		Step:    rendered.Name,
		Params:  actionParams(rendered),
		Env:     mergeEnv(env, rendered.Env),
		Secrets: resolved,
		Dir:     dir,
	})
	res.FinishedAt = time.Now()
	if resp != nil {
		res.Output = resp.Output
	}
	if execErr != nil {
		res.Outcome = domain.StepOutcomeFailed
		res.Error = execErr.Error()
		log.Warn("step failed", "step", step.Name, "action", res.Action, "error", execErr)
		return res
	}

	res.Outcome = domain.StepOutcomePassed
	log.Debug("step passed", "step", step.Name, "duration", res.Duration())
	return res
}

// buildEnv собирает окружение ячейки: pipeline env поверх него job env,
// значения рендерятся шаблонным контекстом и становятся видимы шаблонам
// шагов через .Env.
func (r *CellRunner) buildEnv(def *engine.Definition, job *engine.Job, tmplCtx *engine.Context) (map[string]string, error) {
	merged := mergeEnv(def.Env, job.Env)

	rendered, err := engine.RenderMap(merged, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("render env: %w", err)
	}
	for k, v := range rendered {
		tmplCtx.SetEnv(k, v)
	}
	return rendered, nil
}

// resolveSecrets разрешает секреты шага провайдером.
//
// Возвращает map имя-параметра → значение. Любая ошибка разрешения
// (секрет не найден или пуст) возвращается сразу: шаг не выполняется
// с пустыми учётными данными. В тексте ошибки участвуют только имена,
// никогда значения.
func (r *CellRunner) resolveSecrets(step *engine.StepDef) (map[string]string, error) {
	if len(step.Secrets) == 0 {
		return nil, nil
	}

	params := make([]string, 0, len(step.Secrets))
	for param := range step.Secrets {
		params = append(params, param)
	}
	sort.Strings(params)

	resolved := make(map[string]string, len(params))
	for _, param := range params {
		name := step.Secrets[param]
		value, err := r.secrets.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("secret %q: %w", name, err)
		}
		resolved[param] = value
	}
	return resolved, nil
}

// actionParams строит параметры действия из определения шага.
// Для run-шагов команда передаётся параметром command.
func actionParams(step *engine.StepDef) map[string]string {
	params := make(map[string]string, len(step.With)+1)
	for k, v := range step.With {
		params[k] = v
	}
	if step.Run != "" {
		params[steps.ParamCommand] = step.Run
	}
	return params
}

// mergeEnv накладывает overlay поверх base, не изменяя аргументы.
func mergeEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
