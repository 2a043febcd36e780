package engine

import "errors"

// Ошибки разбора определения pipeline.
var (
	// ErrMalformed — исходник не является валидным YAML.
	ErrMalformed = errors.New("definition is not valid YAML")

	// ErrNoJobs — определение не содержит джобов.
	ErrNoJobs = errors.New("definition has no jobs")

	// ErrNoSteps — джоб не содержит шагов.
	ErrNoSteps = errors.New("job has no steps")

	// ErrUnknownTrigger — неизвестный вид события в on.
	ErrUnknownTrigger = errors.New("unknown trigger event")

	// ErrUnknownPermission — неизвестная область доступа в permissions.
	ErrUnknownPermission = errors.New("unknown permission scope")

	// ErrStepConflict — шаг объявляет и run, и uses одновременно.
	ErrStepConflict = errors.New("step declares both run and uses")

	// ErrStepEmpty — шаг не объявляет ни run, ни uses.
	ErrStepEmpty = errors.New("step declares neither run nor uses")

	// ErrMissingDependency — джоб зависит от несуществующего джоба.
	ErrMissingDependency = errors.New("job needs unknown job")

	// ErrSelfDependency — джоб зависит от самого себя.
	ErrSelfDependency = errors.New("job needs itself")

	// ErrCyclicDependency — обнаружен цикл в needs.
	ErrCyclicDependency = errors.New("cyclic job dependency detected")
)

// Ошибки матрицы.
var (
	// ErrEmptyAxis — ось матрицы без значений.
	ErrEmptyAxis = errors.New("matrix axis has no values")

	// ErrDuplicateAxis — несколько осей с одинаковым именем.
	ErrDuplicateAxis = errors.New("duplicate matrix axis")

	// ErrAxisValue — значение оси не скаляр.
	ErrAxisValue = errors.New("matrix axis value is not a scalar")
)

// Ошибки условий.
var (
	// ErrEmptyCondition — условие без единого варианта.
	ErrEmptyCondition = errors.New("condition is empty")

	// ErrUnknownCondition — неизвестный вариант условия.
	ErrUnknownCondition = errors.New("unknown condition variant")

	// ErrConditionShape — условие имеет неверную структуру
	// (например, несколько вариантов в одном узле).
	ErrConditionShape = errors.New("condition must have exactly one variant")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации определения с контекстом.
type ValidationError struct {
	Job     string // ID джоба, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Job != "" {
		return "job " + e.Job + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(job, field, message string, err error) *ValidationError {
	return &ValidationError{
		Job:     job,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
