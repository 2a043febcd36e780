package engine

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyor/internal/domain"
)

// CondKind — вариант узла условия.
type CondKind string

const (
	// CondEvent — событие запуска равно заданному.
	CondEvent CondKind = "event"

	// CondRef — ref запуска равен заданному.
	CondRef CondKind = "ref"

	// CondRefPrefix — ref запуска начинается с заданного префикса.
	CondRefPrefix CondKind = "ref-prefix"

	// CondTag — ref является тегом (или не является, при false).
	CondTag CondKind = "tag"

	// CondAll — все вложенные условия истинны (логическое И).
	CondAll CondKind = "all"

	// CondAny — хотя бы одно вложенное условие истинно (логическое ИЛИ).
	CondAny CondKind = "any"

	// CondNot — отрицание вложенного условия.
	CondNot CondKind = "not"
)

// Condition — условие выполнения шага.
//
// Дерево тегированных вариантов, разбираемое из структурного YAML:
//
//	if:
//	  all:
//	    - event: push
//	    - ref-prefix: refs/tags/
//
// Условие — чистая функция от RunContext: результаты других шагов
// и соседних ячеек ему недоступны.
type Condition struct {
	// Kind — вариант узла.
	Kind CondKind

	// Event — значение для CondEvent.
	Event domain.EventKind

	// Ref — значение для CondRef и CondRefPrefix.
	Ref string

	// Tag — значение для CondTag.
	Tag bool

	// Children — вложенные условия для CondAll и CondAny.
	Children []*Condition

	// Child — вложенное условие для CondNot.
	Child *Condition
}

// UnmarshalYAML реализует yaml.Unmarshaler.
// Узел условия — мапа ровно с одним ключом-вариантом.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: condition must be a mapping", ErrConditionShape)
	}
	if len(node.Content) == 0 {
		return ErrEmptyCondition
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("%w: got %d keys", ErrConditionShape, len(node.Content)/2)
	}

	key := node.Content[0].Value
	val := node.Content[1]

	switch CondKind(key) {
	case CondEvent:
		c.Kind = CondEvent
		c.Event = domain.EventKind(val.Value)
		if !c.Event.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownTrigger, val.Value)
		}
		return nil

	case CondRef:
		c.Kind = CondRef
		c.Ref = val.Value
		return nil

	case CondRefPrefix:
		c.Kind = CondRefPrefix
		c.Ref = val.Value
		return nil

	case CondTag:
		c.Kind = CondTag
		return val.Decode(&c.Tag)

	case CondAll, CondAny:
		c.Kind = CondKind(key)
		if val.Kind != yaml.SequenceNode {
			return fmt.Errorf("%w: %s must be a list of conditions", ErrConditionShape, key)
		}
		for _, item := range val.Content {
			child := &Condition{}
			if err := child.UnmarshalYAML(item); err != nil {
				return err
			}
			c.Children = append(c.Children, child)
		}
		return nil

	case CondNot:
		c.Kind = CondNot
		c.Child = &Condition{}
		return c.Child.UnmarshalYAML(val)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCondition, key)
	}
}

// Eval вычисляет условие над контекстом запуска.
//
// Чистая функция: никакого состояния, только RunContext.
func (c *Condition) Eval(rc domain.RunContext) bool {
	if c == nil {
		return true
	}

	switch c.Kind {
	case CondEvent:
		return rc.Event == c.Event

	case CondRef:
		return rc.Ref == c.Ref

	case CondRefPrefix:
		return strings.HasPrefix(rc.Ref, c.Ref)

	case CondTag:
		return rc.TagRef() == c.Tag

	case CondAll:
		for _, child := range c.Children {
			if !child.Eval(rc) {
				return false
			}
		}
		return true

	case CondAny:
		for _, child := range c.Children {
			if child.Eval(rc) {
				return true
			}
		}
		return false

	case CondNot:
		return !c.Child.Eval(rc)

	default:
		return false
	}
}
