package engine

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyor/internal/domain"
)

// Parse разбирает и валидирует YAML-исходник определения pipeline.
//
// Возвращает ошибку, если:
// - исходник не является валидным YAML (ErrMalformed)
// - объявлен неизвестный триггер или permission
// - структура джобов/шагов/матрицы/условий некорректна
// - в needs есть цикл
func Parse(src []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(src, &def); err != nil {
		// Кастомные анмаршалеры (Matrix, Condition, Triggers) возвращают
		// свои ошибки — их не нужно маскировать под ErrMalformed.
		if isDefinitionError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	applyDefaults(&def)

	if err := Validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

// applyDefaults заполняет производные и умолчательные поля.
func applyDefaults(def *Definition) {
	if def.Permissions == "" {
		def.Permissions = domain.PermissionRead
	}

	for id, job := range def.Jobs {
		if job == nil {
			continue
		}
		job.ID = id
		for i := range job.Steps {
			if job.Steps[i].Name == "" {
				job.Steps[i].Name = fmt.Sprintf("step-%d", i+1)
			}
		}
	}
}

// Validate выполняет полную валидацию определения.
//
// Проверяет:
// - Наличие джобов и шагов
// - Известность триггеров и permissions
// - Форму шагов (ровно одно из run/uses)
// - Валидность матриц
// - Валидность needs (существование, отсутствие циклов)
func Validate(def *Definition) error {
	if def == nil || len(def.Jobs) == 0 {
		return ErrNoJobs
	}

	for _, event := range def.On {
		if !event.Valid() {
			return NewValidationError("", "on",
				fmt.Sprintf("unknown trigger event: %s", event), ErrUnknownTrigger)
		}
	}

	if !def.Permissions.Valid() {
		return NewValidationError("", "permissions",
			fmt.Sprintf("unknown permission scope: %s", def.Permissions), ErrUnknownPermission)
	}

	// Обходим джобы в отсортированном порядке, чтобы ошибки
	// были воспроизводимыми.
	ids := make([]string, 0, len(def.Jobs))
	for id := range def.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := validateJob(def, def.Jobs[id]); err != nil {
			return err
		}
	}

	// Циклы в needs обнаруживает топологическая сортировка.
	if _, err := BuildDAG(def); err != nil {
		return err
	}

	return nil
}

// validateJob валидирует один джоб.
func validateJob(def *Definition, job *Job) error {
	if job == nil || len(job.Steps) == 0 {
		id := ""
		if job != nil {
			id = job.ID
		}
		return NewValidationError(id, "steps", "job has no steps", ErrNoSteps)
	}

	for _, dep := range job.Needs {
		if dep == job.ID {
			return NewValidationError(job.ID, "needs",
				"job needs itself", ErrSelfDependency)
		}
		if _, exists := def.Jobs[dep]; !exists {
			return NewValidationError(job.ID, "needs",
				fmt.Sprintf("needs unknown job: %s", dep), ErrMissingDependency)
		}
	}

	if err := job.Strategy.Matrix.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	for i := range job.Steps {
		if err := validateStep(job.ID, &job.Steps[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep валидирует один шаг.
func validateStep(jobID string, step *StepDef) error {
	if step.Run != "" && step.Uses != "" {
		return NewValidationError(jobID, "steps",
			fmt.Sprintf("step %s declares both run and uses", step.Name), ErrStepConflict)
	}
	if step.Run == "" && step.Uses == "" {
		return NewValidationError(jobID, "steps",
			fmt.Sprintf("step %s declares neither run nor uses", step.Name), ErrStepEmpty)
	}
	return nil
}

// isDefinitionError возвращает true, если ошибка — одна из ошибок
// определения (а не низкоуровневая ошибка YAML).
func isDefinitionError(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	for _, sentinel := range []error{
		ErrUnknownTrigger, ErrUnknownCondition, ErrEmptyCondition,
		ErrConditionShape, ErrEmptyAxis, ErrDuplicateAxis, ErrAxisValue,
		ErrMissingDependency,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
