package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MaxSnoozeMinutes mirrors the engine's snooze ceiling; config presets may be
// shorter but never longer.
const MaxSnoozeMinutes = 1440

// Config models dayline.yml: the reason lists and snooze presets the UI
// offers when prompting, the task type catalog, and reminder webhook targets.
// The engine itself only ever checks that a non-empty reason was supplied.
type Config struct {
	Reasons struct {
		NotDone  []string `yaml:"not_done"`
		Postpone []string `yaml:"postpone"`
	} `yaml:"reasons"`
	Snooze struct {
		DefaultMinutes int   `yaml:"default_minutes"`
		Options        []int `yaml:"options"`
	} `yaml:"snooze"`
	TaskTypes map[string]TaskTypeConfig `yaml:"task_types"`
	Webhooks  []WebhookConfig           `yaml:"webhooks"`
}

// TaskTypeConfig seeds the task type catalog. Penalties may be written as
// positive magnitudes; the scoring layer coerces them.
type TaskTypeConfig struct {
	RewardOnDone    int `yaml:"reward_on_done"`
	PenaltyNotDone  int `yaml:"penalty_not_done"`
	PenaltyPostpone int `yaml:"penalty_postpone"`
}

// WebhookConfig is a reminder delivery target. With no Events filter every
// event type is forwarded.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with dl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for i, r := range c.Reasons.NotDone {
		if r == "" {
			return fmt.Errorf("config.reasons.not_done[%d] is empty", i)
		}
	}
	for i, r := range c.Reasons.Postpone {
		if r == "" {
			return fmt.Errorf("config.reasons.postpone[%d] is empty", i)
		}
	}
	if c.Snooze.DefaultMinutes <= 0 || c.Snooze.DefaultMinutes > MaxSnoozeMinutes {
		return fmt.Errorf("config.snooze.default_minutes must be within 1..%d, got %d", MaxSnoozeMinutes, c.Snooze.DefaultMinutes)
	}
	for _, m := range c.Snooze.Options {
		if m <= 0 || m > MaxSnoozeMinutes {
			return fmt.Errorf("config.snooze.options entry %d out of range 1..%d", m, MaxSnoozeMinutes)
		}
	}
	for name, tt := range c.TaskTypes {
		if name == "" {
			return fmt.Errorf("config.task_types contains an empty name")
		}
		if tt.RewardOnDone < 0 {
			return fmt.Errorf("task type %s: reward_on_done must be >= 0", name)
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dayline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `reasons:
  not_done:
    - "Felt unwell"
    - "Ran out of time"
    - "No longer relevant"
    - "Blocked by something else"
  postpone:
    - "Too busy today"
    - "Waiting on someone"
    - "Low energy"
    - "Rescheduled plans"

snooze:
  default_minutes: 15
  options: [5, 15, 30, 60, 120]

task_types:
  chores:
    reward_on_done: 10
    penalty_not_done: -10
    penalty_postpone: -5
  health:
    reward_on_done: 20
    penalty_not_done: -15
    penalty_postpone: -5
  errands:
    reward_on_done: 5
    penalty_not_done: -5
    penalty_postpone: -2

webhooks: []
`
