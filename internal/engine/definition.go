package engine

import (
	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyor/internal/domain"
)

// Definition — разобранное определение pipeline.
//
// Структура повторяет YAML-исходник:
//
//	name: ci
//	on: [push, pull_request]
//	permissions: read
//	jobs:
//	  build:
//	    strategy:
//	      matrix:
//	        toolchain: ["3.6", "3.7", "3.9"]
//	    steps:
//	      - name: Run tests
//	        run: tox
type Definition struct {
	// Name — имя pipeline (информационное).
	Name string `yaml:"name"`

	// On — объявленные триггеры. Запуск с событием, которого нет
	// в списке, отклоняется (кроме manual — он разрешён всегда).
	// Пустой список означает "только manual".
	On Triggers `yaml:"on"`

	// Permissions — область доступа к метаданным репозитория.
	// По умолчанию read.
	Permissions domain.Permission `yaml:"permissions"`

	// Env — переменные окружения для всех шагов всех джобов.
	Env map[string]string `yaml:"env"`

	// Jobs — джобы по ID. Порядок выполнения определяется needs.
	Jobs map[string]*Job `yaml:"jobs"`
}

// Job — один джоб определения: окружение, матрица и шаги.
type Job struct {
	// ID — ключ джоба в YAML. Заполняется парсером.
	ID string `yaml:"-"`

	// RunsOn — метка окружения выполнения (информационная).
	RunsOn string `yaml:"runs-on"`

	// Needs — джобы, которые должны успешно завершиться до этого.
	Needs StringList `yaml:"needs"`

	// Strategy — настройки разворачивания матрицы.
	Strategy Strategy `yaml:"strategy"`

	// Env — переменные окружения для всех шагов джоба.
	Env map[string]string `yaml:"env"`

	// Steps — упорядоченный список шагов.
	Steps []StepDef `yaml:"steps"`
}

// Strategy — стратегия выполнения джоба.
type Strategy struct {
	// Matrix — оси матрицы. Пустая матрица даёт одну ячейку.
	Matrix Matrix `yaml:"matrix"`
}

// StepDef — определение шага в джобе.
//
// Шаг задаёт ровно одно из двух:
//   - run  — shell-команда, выполняемая в рабочей директории ячейки
//   - uses — ссылка на действие из библиотеки шагов
type StepDef struct {
	// Name — человекочитаемое имя шага.
	// Если не задано, парсер подставляет "step-N".
	Name string `yaml:"name"`

	// Run — shell-команда (выполняется через sh -c).
	Run string `yaml:"run"`

	// Uses — тип действия: "checkout", "setup-toolchain",
	// "fetch-binary", "coverage-upload", "registry-publish", ...
	Uses string `yaml:"uses"`

	// With — входные параметры действия.
	With map[string]string `yaml:"with"`

	// Env — переменные окружения шага.
	Env map[string]string `yaml:"env"`

	// Secrets — секреты шага: имя параметра → имя секрета.
	// Значения разрешаются провайдером непосредственно перед шагом
	// и доступны только этому шагу.
	Secrets map[string]string `yaml:"secrets"`

	// If — условие выполнения. Nil означает "выполнять всегда".
	If *Condition `yaml:"if"`

	// ContinueOnError — best-effort шаг: его падение не прерывает
	// ячейку и не влияет на её статус.
	ContinueOnError bool `yaml:"continue-on-error"`
}

// Action возвращает тип действия шага: uses либо "command" для run.
func (s *StepDef) Action() string {
	if s.Uses != "" {
		return s.Uses
	}
	return "command"
}

// Triggers — список триггеров. В YAML допускает и скаляр, и список:
//
//	on: push
//	on: [push, pull_request]
type Triggers []domain.EventKind

// UnmarshalYAML реализует yaml.Unmarshaler.
func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Triggers{domain.EventKind(node.Value)}
		return nil
	case yaml.SequenceNode:
		out := make(Triggers, 0, len(node.Content))
		for _, item := range node.Content {
			out = append(out, domain.EventKind(item.Value))
		}
		*t = out
		return nil
	default:
		return NewValidationError("", "on", "on must be a string or a list", ErrUnknownTrigger)
	}
}

// Contains возвращает true, если событие объявлено в триггерах.
func (t Triggers) Contains(event domain.EventKind) bool {
	for _, e := range t {
		if e == event {
			return true
		}
	}
	return false
}

// Allows возвращает true, если запуск с данным событием разрешён.
// Manual разрешён всегда, остальные события должны быть объявлены.
func (t Triggers) Allows(event domain.EventKind) bool {
	if event == domain.EventManual {
		return true
	}
	return t.Contains(event)
}

// StringList — список строк, допускающий в YAML и скаляр, и список:
//
//	needs: lint
//	needs: [lint, build]
type StringList []string

// UnmarshalYAML реализует yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return NewValidationError("", "needs", "needs must be a string or a list", ErrMissingDependency)
	}
}
