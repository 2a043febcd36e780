package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/conveyor/internal/domain"
)

// Context — контекст для рендеринга шаблонов в определении.
//
// Используется в Go templates для доступа к данным запуска:
//   - {{ .Matrix.toolchain }}
//   - {{ .Event }} / {{ .Ref }}
//   - {{ .Env.VAR_NAME }}
//
// Секреты в контекст не попадают никогда.
type Context struct {
	// Matrix — значения осей матрицы для текущей ячейки.
	Matrix map[string]string

	// Event — вид события запуска.
	Event string

	// Ref — ref запуска.
	Ref string

	// Env — переменные окружения (pipeline + job), видимые шаблонам.
	Env map[string]string
}

// NewContext создаёт контекст ячейки из параметров матрицы
// и контекста запуска.
func NewContext(params map[string]string, rc domain.RunContext) *Context {
	if params == nil {
		params = make(map[string]string)
	}
	return &Context{
		Matrix: params,
		Event:  string(rc.Event),
		Ref:    rc.Ref,
		Env:    make(map[string]string),
	}
}

// SetEnv добавляет переменную окружения в контекст.
func (c *Context) SetEnv(key, value string) {
	c.Env[key] = value
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если аргумент пустой
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// hasPrefix — проверяет префикс строки
	"hasPrefix": strings.HasPrefix,

	// hasSuffix — проверяет суффикс строки
	"hasSuffix": strings.HasSuffix,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
// Шаблон может содержать Go template выражения:
//
//	{{ .Matrix.toolchain }}
//	{{ if eq .Event "push" }}release{{ else }}snapshot{{ end }}
//
// Обращение к несуществующему ключу — ошибка, а не пустая строка:
// опечатка в имени оси должна падать, а не молча исчезать.
func Render(tmpl string, ctx *Context) (string, error) {
	// Строки без шаблонных выражений возвращаем как есть.
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderMap рендерит все значения карты. Ключи не рендерятся.
func RenderMap(m map[string]string, ctx *Context) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	for key, val := range m {
		rendered, err := Render(val, ctx)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// RenderStep возвращает копию шага с отрендеренными Run, With и Env.
//
// Secrets не рендерятся: там имена секретов, а не значения,
// и шаблоны в них не имеют смысла.
func RenderStep(step *StepDef, ctx *Context) (*StepDef, error) {
	out := *step

	run, err := Render(step.Run, ctx)
	if err != nil {
		return nil, fmt.Errorf("step %s: run: %w", step.Name, err)
	}
	out.Run = run

	with, err := RenderMap(step.With, ctx)
	if err != nil {
		return nil, fmt.Errorf("step %s: with: %w", step.Name, err)
	}
	out.With = with

	env, err := RenderMap(step.Env, ctx)
	if err != nil {
		return nil, fmt.Errorf("step %s: env: %w", step.Name, err)
	}
	out.Env = env

	return &out, nil
}
