package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// workerConfig — настройки воркера. Базовые значения приходят из
// окружения, TOML-файл (WORKER_CONFIG_FILE) переопределяет только те
// ключи, которые в нём заданы.
type workerConfig struct {
	// WorkDir — базовая директория рабочих директорий ячеек.
	WorkDir string

	// KeepWorkDir отключает удаление рабочей директории после ячейки.
	KeepWorkDir bool

	// Installer — команда установки тулчейна для setup-toolchain.
	// Пустая строка означает установщик по умолчанию.
	Installer string

	// SecretsFile — путь к TOML-файлу с секретами.
	SecretsFile string
}

// fileConfig — ключи TOML-файла конфигурации воркера.
type fileConfig struct {
	WorkDir     string `toml:"workdir"`
	KeepWorkDir bool   `toml:"keep_workdir"`
	Installer   string `toml:"toolchain_installer"`
	SecretsFile string `toml:"secrets_file"`
}

// loadWorkerConfig собирает конфигурацию воркера.
func loadWorkerConfig() (workerConfig, error) {
	cfg := workerConfig{
		WorkDir:     os.Getenv("WORKER_WORKDIR"),
		SecretsFile: os.Getenv("WORKER_SECRETS_FILE"),
	}

	path := os.Getenv("WORKER_CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return workerConfig{}, fmt.Errorf("load worker config: %w", err)
	}

	if meta.IsDefined("workdir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("keep_workdir") {
		cfg.KeepWorkDir = raw.KeepWorkDir
	}
	if meta.IsDefined("toolchain_installer") {
		cfg.Installer = strings.TrimSpace(raw.Installer)
	}
	if meta.IsDefined("secrets_file") {
		cfg.SecretsFile = strings.TrimSpace(raw.SecretsFile)
	}

	return cfg, nil
}
