package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dayline/internal/config"
)

// Scheduler is the reminder collaborator a caller instructs after a
// transition. The lifecycle engine never calls it; callers pass along data
// the engine produced, such as snoozed_until.
type Scheduler interface {
	ScheduleSnooze(ctx context.Context, taskID, title, body string, fireAt time.Time, payload map[string]any) error
	CancelAllForTask(ctx context.Context, taskID string) error
}

// NewScheduler returns a webhook-backed scheduler when webhooks are
// configured and a no-op one otherwise.
func NewScheduler(cfg *config.Config) Scheduler {
	if cfg == nil || len(cfg.Webhooks) == 0 {
		return NopScheduler{}
	}
	return &WebhookScheduler{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// NopScheduler discards every instruction.
type NopScheduler struct{}

func (NopScheduler) ScheduleSnooze(context.Context, string, string, string, time.Time, map[string]any) error {
	return nil
}

func (NopScheduler) CancelAllForTask(context.Context, string) error { return nil }

// WebhookScheduler relays reminder instructions to the configured webhook
// targets. The receiving side owns the actual alarm; a schedule instruction
// carries fire_at, a cancel instruction tears down whatever is pending for
// the task.
type WebhookScheduler struct {
	webhooks []config.WebhookConfig
	client   *http.Client
}

type reminderInstruction struct {
	Kind    string         `json:"kind"`
	TaskID  string         `json:"task_id"`
	Title   string         `json:"title,omitempty"`
	Body    string         `json:"body,omitempty"`
	FireAt  string         `json:"fire_at,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *WebhookScheduler) ScheduleSnooze(ctx context.Context, taskID, title, body string, fireAt time.Time, payload map[string]any) error {
	return s.send(ctx, reminderInstruction{
		Kind:    "reminder.schedule",
		TaskID:  taskID,
		Title:   title,
		Body:    body,
		FireAt:  fireAt.UTC().Format(time.RFC3339),
		Payload: payload,
	})
}

func (s *WebhookScheduler) CancelAllForTask(ctx context.Context, taskID string) error {
	return s.send(ctx, reminderInstruction{Kind: "reminder.cancel", TaskID: taskID})
}

func (s *WebhookScheduler) send(ctx context.Context, instr reminderInstruction) error {
	data, err := json.Marshal(instr)
	if err != nil {
		return err
	}
	var firstErr error
	for _, hook := range s.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if err := s.post(ctx, hook, instr.Kind, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *WebhookScheduler) post(ctx context.Context, hook config.WebhookConfig, kind string, data []byte) error {
	client := s.client
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != s.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dayline-Event", kind)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Dayline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
