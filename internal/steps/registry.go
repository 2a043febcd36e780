package steps

import (
	"fmt"
	"sync"
)

// Registry — реестр доступных действий.
//
// Потокобезопасен: воркеры разрешают действия конкурентно.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register добавляет действие в реестр.
// Повторная регистрация типа замещает предыдущее действие.
func (r *Registry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[a.Type()] = a
}

// Get возвращает действие по типу.
func (r *Registry) Get(actionType string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionType)
	}
	return a, nil
}

// Has проверяет наличие действия в реестре.
func (r *Registry) Has(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actions[actionType]
	return ok
}

// Types возвращает список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	return types
}

// Count возвращает количество зарегистрированных действий.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Unregister удаляет действие из реестра.
func (r *Registry) Unregister(actionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, actionType)
}

// DefaultRegistry создаёт реестр со стандартным набором действий.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCommandAction())
	r.Register(NewCheckoutAction())
	r.Register(NewToolchainAction(""))
	r.Register(NewFetchAction())
	r.Register(NewCoverageAction())
	r.Register(NewPublishAction())
	r.Register(NewHTTPAction())
	r.Register(NewWaitAction())
	return r
}
