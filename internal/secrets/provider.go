package secrets

import (
	"errors"
	"fmt"
)

// Ошибки разрешения секретов.
var (
	// ErrNotFound — секрет с таким именем не настроен.
	ErrNotFound = errors.New("secret not found")

	// ErrEmpty — секрет настроен, но его значение пустое.
	// Пустой credential никогда не передаётся дальше (fail closed).
	ErrEmpty = errors.New("secret is empty")
)

// Provider — источник секретов.
//
// Провайдер внедряется в раннер при старте запуска: никакого
// глобального состояния, секреты разрешаются лениво, непосредственно
// перед шагом, который их объявил, и нигде не кэшируются.
//
// Resolve возвращает значение секрета по имени.
// Для ненастроенного секрета — ErrNotFound, для пустого — ErrEmpty.
type Provider interface {
	Resolve(name string) (string, error)
}

// Static — провайдер с фиксированным набором секретов.
// Используется в тестах и при локальном запуске с --secret name=value.
type Static map[string]string

// Resolve реализует Provider.
func (s Static) Resolve(name string) (string, error) {
	value, exists := s[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	return value, nil
}

// Chain — цепочка провайдеров: секрет ищется по очереди,
// первый нашедший выигрывает. ErrEmpty не маскируется
// последующими провайдерами: пустое значение — это ошибка
// конфигурации, а не повод искать дальше.
type Chain []Provider

// Resolve реализует Provider.
func (c Chain) Resolve(name string) (string, error) {
	for _, p := range c {
		value, err := p.Resolve(name)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrEmpty) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
