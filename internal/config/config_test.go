package config_test

import (
	"strings"
	"testing"

	"dayline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Reasons.NotDone) == 0 || len(cfg.Reasons.Postpone) == 0 {
		t.Fatal("default reason lists must not be empty")
	}
	if cfg.Snooze.DefaultMinutes != 15 {
		t.Fatalf("default snooze: %d", cfg.Snooze.DefaultMinutes)
	}
	if _, ok := cfg.TaskTypes["chores"]; !ok {
		t.Fatal("default catalog missing chores")
	}
}

func TestFromYAMLRejectsBadSnooze(t *testing.T) {
	yml := strings.ReplaceAll(config.GenerateDefault(), "default_minutes: 15", "default_minutes: 2000")
	if _, err := config.FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected rejection of snooze over 1440")
	}
}

func TestFromYAMLRejectsEmptyReason(t *testing.T) {
	yml := `reasons:
  not_done: ["ok", ""]
snooze:
  default_minutes: 15
`
	if _, err := config.FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected rejection of empty reason")
	}
}

func TestFromYAMLRejectsNegativeReward(t *testing.T) {
	yml := `snooze:
  default_minutes: 10
task_types:
  chores:
    reward_on_done: -5
`
	if _, err := config.FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected rejection of negative reward")
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	if _, err := config.FromYAML([]byte("{not yaml")); err == nil {
		t.Fatal("expected yaml error")
	}
}
