package secrets

import (
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix — префикс переменных окружения с секретами.
const DefaultEnvPrefix = "CONVEYOR_SECRET_"

// Env — провайдер секретов из переменных окружения процесса.
//
// Имя секрета приводится к имени переменной: верхний регистр,
// дефисы и точки заменяются подчёркиваниями. Секрет "repo-token"
// ищется в CONVEYOR_SECRET_REPO_TOKEN.
type Env struct {
	// Prefix — префикс переменных. Пустой означает DefaultEnvPrefix.
	Prefix string
}

// Resolve реализует Provider.
func (e Env) Resolve(name string) (string, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	value, exists := os.LookupEnv(prefix + envKey(name))
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	return value, nil
}

// envKey приводит имя секрета к форме переменной окружения.
func envKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "_")
	return key
}
