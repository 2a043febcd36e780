package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStatic_Resolve(t *testing.T) {
	p := Static{"repo-token": "c0ffee"}

	value, err := p.Resolve("repo-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "c0ffee" {
		t.Errorf("expected c0ffee, got %s", value)
	}
}

func TestStatic_NotFound(t *testing.T) {
	p := Static{}

	_, err := p.Resolve("registry-password")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStatic_Empty(t *testing.T) {
	// Пустое значение — ошибка конфигурации, не пустой credential.
	p := Static{"repo-token": ""}

	_, err := p.Resolve("repo-token")
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestEnv_Resolve(t *testing.T) {
	t.Setenv("CONVEYOR_SECRET_REPO_TOKEN", "c0ffee")

	p := Env{}
	value, err := p.Resolve("repo-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "c0ffee" {
		t.Errorf("expected c0ffee, got %s", value)
	}
}

func TestEnv_NotFound(t *testing.T) {
	p := Env{Prefix: "TEST_ABSENT_"}

	_, err := p.Resolve("no-such-secret")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnv_EmptyValue(t *testing.T) {
	t.Setenv("CONVEYOR_SECRET_REGISTRY_PASSWORD", "")

	p := Env{}
	_, err := p.Resolve("registry-password")
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestChain_Order(t *testing.T) {
	first := Static{"repo-token": "from-first"}
	second := Static{"repo-token": "from-second", "registry-password": "hunter2"}

	chain := Chain{first, second}

	// Первый провайдер выигрывает
	value, err := chain.Resolve("repo-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "from-first" {
		t.Errorf("expected from-first, got %s", value)
	}

	// Отсутствующий в первом ищется во втором
	value, err = chain.Resolve("registry-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "hunter2" {
		t.Errorf("expected hunter2, got %s", value)
	}
}

func TestChain_EmptyNotMasked(t *testing.T) {
	// Пустое значение в первом провайдере не должно маскироваться
	// валидным значением во втором.
	chain := Chain{
		Static{"repo-token": ""},
		Static{"repo-token": "valid"},
	}

	_, err := chain.Resolve("repo-token")
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestChain_NotFound(t *testing.T) {
	chain := Chain{Static{}, Static{}}

	_, err := chain.Resolve("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	content := `
[secrets]
repo-token = "c0ffee"
registry-password = "hunter2"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := p.Resolve("repo-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "c0ffee" {
		t.Errorf("expected c0ffee, got %s", value)
	}

	_, err = p.Resolve("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
