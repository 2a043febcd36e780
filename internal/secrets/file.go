package secrets

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// secretsFile — структура TOML-файла с секретами:
//
//	[secrets]
//	repo-token = "c0ffee"
//	registry-password = "hunter2"
type secretsFile struct {
	Secrets map[string]string `toml:"secrets"`
}

// LoadFile загружает секреты из TOML-файла.
//
// Файл читается один раз при старте; права на него — забота
// оператора. Возвращает Static-провайдер: пустые значения в файле
// дадут ErrEmpty при разрешении, как и везде.
func LoadFile(path string) (Static, error) {
	var raw secretsFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load secrets file: %w", err)
	}
	if raw.Secrets == nil {
		raw.Secrets = make(map[string]string)
	}
	return Static(raw.Secrets), nil
}
