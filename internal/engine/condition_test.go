package engine

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyor/internal/domain"
)

func parseCondition(t *testing.T, src string) *Condition {
	t.Helper()
	var c Condition
	if err := yaml.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &c
}

func TestCondition_Event(t *testing.T) {
	c := parseCondition(t, `event: push`)

	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected true for push event")
	}
	if c.Eval(domain.RunContext{Event: domain.EventPullRequest, Ref: "refs/heads/main"}) {
		t.Error("expected false for pull_request event")
	}
}

func TestCondition_Ref(t *testing.T) {
	c := parseCondition(t, `ref: refs/heads/main`)

	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected true for exact ref match")
	}
	if c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/dev"}) {
		t.Error("expected false for different ref")
	}
}

func TestCondition_RefPrefix(t *testing.T) {
	c := parseCondition(t, `ref-prefix: refs/tags/`)

	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.2.3"}) {
		t.Error("expected true for tag ref")
	}
	if c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected false for branch ref")
	}
}

func TestCondition_Tag(t *testing.T) {
	c := parseCondition(t, `tag: true`)

	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.0.0"}) {
		t.Error("expected true for tag ref")
	}
	if c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected false for branch ref")
	}

	neg := parseCondition(t, `tag: false`)
	if !neg.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected true for branch ref with tag: false")
	}
}

func TestCondition_PublishConjunction(t *testing.T) {
	// Условие публикации: push И тег.
	c := parseCondition(t, `
all:
  - event: push
  - ref-prefix: refs/tags/
`)

	tests := []struct {
		name string
		rc   domain.RunContext
		want bool
	}{
		{
			name: "push tag",
			rc:   domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.2.3"},
			want: true,
		},
		{
			name: "push branch",
			rc:   domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"},
			want: false,
		},
		{
			name: "pull_request tag",
			rc:   domain.RunContext{Event: domain.EventPullRequest, Ref: "refs/tags/v1.2.3"},
			want: false,
		},
		{
			name: "pull_request branch",
			rc:   domain.RunContext{Event: domain.EventPullRequest, Ref: "refs/heads/main"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Eval(tt.rc); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCondition_AnyNot(t *testing.T) {
	c := parseCondition(t, `
any:
  - event: schedule
  - not:
      ref-prefix: refs/heads/
`)

	if !c.Eval(domain.RunContext{Event: domain.EventSchedule, Ref: "refs/heads/main"}) {
		t.Error("expected true for schedule event")
	}
	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/tags/v1.0.0"}) {
		t.Error("expected true for non-branch ref")
	}
	if c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("expected false for push to branch")
	}
}

func TestCondition_NilAlwaysTrue(t *testing.T) {
	var c *Condition
	if !c.Eval(domain.RunContext{Event: domain.EventPush, Ref: "refs/heads/main"}) {
		t.Error("nil condition should evaluate to true")
	}
}

func TestCondition_UnknownVariant(t *testing.T) {
	var c Condition
	err := yaml.Unmarshal([]byte(`branch: main`), &c)
	if !errors.Is(err, ErrUnknownCondition) {
		t.Errorf("expected ErrUnknownCondition, got %v", err)
	}
}

func TestCondition_UnknownEvent(t *testing.T) {
	var c Condition
	err := yaml.Unmarshal([]byte(`event: deploy`), &c)
	if !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("expected ErrUnknownTrigger, got %v", err)
	}
}

func TestCondition_Shape(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{name: "empty mapping", src: `{}`, want: ErrEmptyCondition},
		{name: "two variants", src: "event: push\nref: refs/heads/main", want: ErrConditionShape},
		{name: "scalar", src: `push`, want: ErrConditionShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			err := yaml.Unmarshal([]byte(tt.src), &c)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
