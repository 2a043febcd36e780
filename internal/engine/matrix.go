package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Axis — одна ось матрицы: имя и упорядоченный список значений.
type Axis struct {
	// Name — имя оси (например, "toolchain").
	Name string

	// Values — значения в порядке объявления.
	Values []string
}

// Matrix — упорядоченный набор осей матрицы.
//
// Порядок осей и порядок значений внутри оси сохраняются как в YAML,
// поэтому разворачивание матрицы детерминировано: одна и та же матрица
// всегда даёт один и тот же список ячеек в одном и том же порядке.
type Matrix struct {
	Axes []Axis
}

// UnmarshalYAML реализует yaml.Unmarshaler.
//
// Обычный map[string][]string не подходит: Go-карты не сохраняют
// порядок ключей, а порядок осей определяет порядок ячеек.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return NewValidationError("", "matrix", "matrix must be a mapping of axis to values", ErrEmptyAxis)
	}

	seen := make(map[string]bool)

	// Content мапы — чередующиеся узлы ключ/значение.
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		name := keyNode.Value
		if seen[name] {
			return NewValidationError("", "matrix",
				fmt.Sprintf("duplicate matrix axis: %s", name), ErrDuplicateAxis)
		}
		seen[name] = true

		if valNode.Kind != yaml.SequenceNode {
			return NewValidationError("", "matrix",
				fmt.Sprintf("axis %s must be a list of values", name), ErrEmptyAxis)
		}

		values := make([]string, 0, len(valNode.Content))
		for _, item := range valNode.Content {
			if item.Kind != yaml.ScalarNode {
				return NewValidationError("", "matrix",
					fmt.Sprintf("axis %s has a non-scalar value", name), ErrAxisValue)
			}
			// Value — литеральный текст скаляра: "3.6" остаётся "3.6",
			// а не превращается во float.
			values = append(values, item.Value)
		}

		m.Axes = append(m.Axes, Axis{Name: name, Values: values})
	}

	return nil
}

// Validate проверяет, что каждая ось содержит хотя бы одно значение.
func (m Matrix) Validate() error {
	for _, axis := range m.Axes {
		if len(axis.Values) == 0 {
			return NewValidationError("", "matrix",
				fmt.Sprintf("axis %s has no values", axis.Name), ErrEmptyAxis)
		}
	}
	return nil
}

// IsEmpty возвращает true, если матрица не объявлена.
func (m Matrix) IsEmpty() bool {
	return len(m.Axes) == 0
}

// Size возвращает количество ячеек, которое даст разворачивание.
func (m Matrix) Size() int {
	size := 1
	for _, axis := range m.Axes {
		size *= len(axis.Values)
	}
	return size
}

// Expand разворачивает матрицу в декартово произведение осей.
//
// Возвращает упорядоченный список комбинаций: первая ось меняется
// медленнее всех, последняя — быстрее всех. Пустая матрица даёт
// одну пустую комбинацию (джоб без матрицы выполняется один раз).
func (m Matrix) Expand() []map[string]string {
	combos := []map[string]string{{}}

	for _, axis := range m.Axes {
		next := make([]map[string]string, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, value := range axis.Values {
				params := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					params[k] = v
				}
				params[axis.Name] = value
				next = append(next, params)
			}
		}
		combos = next
	}

	return combos
}
