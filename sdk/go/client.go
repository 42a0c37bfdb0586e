package daylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Dayline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID                        string    `json:"id"`
	Title                     string    `json:"title"`
	Kind                      string    `json:"kind"`
	Status                    string    `json:"status"`
	DueDate                   time.Time `json:"due_date"`
	SnoozedUntil              *string   `json:"snoozed_until,omitempty"`
	PointsEarned              int       `json:"points_earned"`
	CumulativePostponePenalty int       `json:"cumulative_postpone_penalty"`
	PostponeCount             int       `json:"postpone_count"`
	NetPoints                 int       `json:"net_points"`
	Snoozed                   bool      `json:"snoozed"`
	Subtasks                  []Subtask `json:"subtasks,omitempty"`
}

// Subtask is a checklist entry on a task.
type Subtask struct {
	Title       string `json:"title"`
	IsCompleted bool   `json:"is_completed"`
}

// CompleteResult is the response to completing a task.
type CompleteResult struct {
	Task             Task `json:"task"`
	NetPoints        int  `json:"net_points"`
	OfferNextRoutine bool `json:"offer_next_routine"`
}

// UndoPreview reports what undoing a task would do.
type UndoPreview struct {
	Classification struct {
		Kind            string `json:"kind"`
		WillDeleteTasks int    `json:"will_delete_tasks"`
	} `json:"classification"`
}

// Event represents a log entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	TaskID  string         `json:"task_id"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTasks wraps list responses with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// CreateTask creates a task due at the given time.
func (c *Client) CreateTask(ctx context.Context, title, taskType string, due time.Time) (Task, error) {
	body := map[string]any{
		"title":    title,
		"due_date": due.UTC().Format(time.RFC3339),
	}
	if taskType != "" {
		body["type"] = taskType
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.taskPath(id, ""), nil, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, status string, limit int) (PaginatedTasks, error) {
	endpoint := "v0/tasks"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if enc := params.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Complete marks a task done.
func (c *Client) Complete(ctx context.Context, id string) (CompleteResult, error) {
	var resp CompleteResult
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "complete"), nil, &resp)
	return resp, err
}

// MarkNotDone skips a task with a reason.
func (c *Client) MarkNotDone(ctx context.Context, id, reason string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "not-done"), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Postpone moves a task's due date forward.
func (c *Client) Postpone(ctx context.Context, id string, due time.Time, reason string) (Task, error) {
	body := map[string]any{
		"due_date": due.UTC().Format(time.RFC3339),
		"reason":   reason,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "postpone"), body, &resp)
	return resp, err
}

// Snooze delays a task's reminder.
func (c *Client) Snooze(ctx context.Context, id string, minutes int) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "snooze"), map[string]any{"minutes": minutes}, &resp)
	return resp, err
}

// ToggleSubtask flips one subtask's completion.
func (c *Client) ToggleSubtask(ctx context.Context, id string, index int) (Task, error) {
	var resp Task
	endpoint := c.taskPath(id, fmt.Sprintf("subtasks/%d/toggle", index))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// PreviewUndo reports what an undo would do without performing it.
func (c *Client) PreviewUndo(ctx context.Context, id string) (UndoPreview, error) {
	var resp UndoPreview
	err := c.do(ctx, http.MethodGet, c.taskPath(id, "undo"), nil, &resp)
	return resp, err
}

// Undo reverses a task's last resolution or postpone.
func (c *Client) Undo(ctx context.Context, id string, deleteSpawned bool) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "undo"), map[string]any{"delete_spawned": deleteSpawned}, &resp)
	return resp, err
}

// NextRoutine creates the next occurrence of a routine task.
func (c *Client) NextRoutine(ctx context.Context, id string, due time.Time) (Task, error) {
	body := map[string]any{"due_date": due.UTC().Format(time.RFC3339)}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "next"), body, &resp)
	return resp, err
}

// Events returns recent audit events, optionally scoped to one task.
func (c *Client) Events(ctx context.Context, taskID string, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if taskID != "" {
		params.Set("task_id", taskID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if enc := params.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) taskPath(id, action string) string {
	p := fmt.Sprintf("v0/tasks/%s", url.PathEscape(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
