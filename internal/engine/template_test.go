package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/conveyor/internal/domain"
)

func TestRender_MatrixValue(t *testing.T) {
	ctx := NewContext(
		map[string]string{"toolchain": "3.7"},
		domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"},
	)

	result, err := Render("{{ .Matrix.toolchain }}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "3.7" {
		t.Errorf("expected 3.7, got %s", result)
	}
}

func TestRender_PlainString(t *testing.T) {
	ctx := NewContext(nil, domain.RunContext{})

	// Строка без {{ возвращается как есть, без прогона через template.
	result, err := Render("pkg install --upgrade builder", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "pkg install --upgrade builder" {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestRender_EventAndRef(t *testing.T) {
	ctx := NewContext(nil, domain.RunContext{
		Event: domain.EventPush,
		Ref:   "refs/tags/v1.2.3",
	})

	result, err := Render("{{ .Event }}:{{ .Ref }}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "push:refs/tags/v1.2.3" {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestRender_MissingKey(t *testing.T) {
	ctx := NewContext(map[string]string{"toolchain": "3.7"}, domain.RunContext{})

	// Опечатка в имени оси должна быть ошибкой, а не пустой строкой.
	_, err := Render("{{ .Matrix.toolchian }}", ctx)
	if !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", err)
	}
}

func TestRender_ParseError(t *testing.T) {
	ctx := NewContext(nil, domain.RunContext{})

	_, err := Render("{{ .Matrix.x", ctx)
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}

func TestRender_Funcs(t *testing.T) {
	ctx := NewContext(map[string]string{"toolchain": "3.7"}, domain.RunContext{})

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "upper", tmpl: `{{ upper .Matrix.toolchain }}`, want: "3.7"},
		{name: "default used", tmpl: `{{ default "latest" "" }}`, want: "latest"},
		{name: "default skipped", tmpl: `{{ default "latest" .Matrix.toolchain }}`, want: "3.7"},
		{name: "hasPrefix", tmpl: `{{ if hasPrefix .Matrix.toolchain "3." }}v3{{ end }}`, want: "v3"},
		{name: "replace", tmpl: `{{ replace .Matrix.toolchain "." "_" }}`, want: "3_7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.tmpl, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result)
			}
		})
	}
}

func TestRenderStep(t *testing.T) {
	ctx := NewContext(
		map[string]string{"toolchain": "3.9"},
		domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.0.0"},
	)

	step := &StepDef{
		Name: "Set up toolchain",
		Uses: "setup-toolchain",
		With: map[string]string{"version": "{{ .Matrix.toolchain }}"},
		Env:  map[string]string{"BUILD_REF": "{{ .Ref }}"},
		Secrets: map[string]string{
			"token": "repo-token",
		},
	}

	rendered, err := RenderStep(step, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rendered.With["version"] != "3.9" {
		t.Errorf("expected with.version 3.9, got %s", rendered.With["version"])
	}
	if rendered.Env["BUILD_REF"] != "refs/tags/v1.0.0" {
		t.Errorf("expected env BUILD_REF refs/tags/v1.0.0, got %s", rendered.Env["BUILD_REF"])
	}

	// Имена секретов не рендерятся
	if rendered.Secrets["token"] != "repo-token" {
		t.Errorf("expected secret name untouched, got %s", rendered.Secrets["token"])
	}

	// Исходный шаг не изменён
	if step.With["version"] != "{{ .Matrix.toolchain }}" {
		t.Error("original step should not be mutated")
	}
}
