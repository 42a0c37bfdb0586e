package server

import (
	"encoding/json"
	"time"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/routine"
	"dayline/internal/scoring"
	"dayline/internal/undo"
)

// Request payloads

type RecurrenceRuleRequest struct {
	Freq     string `json:"freq" enum:"daily,weekly,monthly"`
	Interval int    `json:"interval,omitempty" minimum:"1"`
	Count    int    `json:"count" minimum:"1"`
}

type CreateTaskRequest struct {
	ID         *string                `json:"id,omitempty"`
	Title      string                 `json:"title"`
	Notes      *string                `json:"notes,omitempty"`
	Kind       string                 `json:"kind,omitempty" enum:"normal,recurring,routine"`
	DueDate    time.Time              `json:"due_date" format:"date-time"`
	DueTime    *string                `json:"due_time,omitempty"`
	Type       *string                `json:"type,omitempty"`
	Subtasks   []string               `json:"subtasks,omitempty"`
	Recurrence *RecurrenceRuleRequest `json:"recurrence,omitempty"`
}

type NotDoneRequest struct {
	Reason string `json:"reason"`
}

type PostponeRequest struct {
	DueDate time.Time `json:"due_date" format:"date-time"`
	Reason  string    `json:"reason"`
}

type SnoozeRequest struct {
	Minutes int    `json:"minutes" minimum:"1"`
	Source  string `json:"source,omitempty"`
}

type UndoRequest struct {
	DeleteSpawned bool `json:"delete_spawned,omitempty"`
}

type NextRoutineRequest struct {
	DueDate time.Time `json:"due_date" format:"date-time"`
	DueTime *string   `json:"due_time,omitempty"`
}

type CreateTaskTypeRequest struct {
	Name            string `json:"name"`
	RewardOnDone    int    `json:"reward_on_done" minimum:"0"`
	PenaltyNotDone  int    `json:"penalty_not_done"`
	PenaltyPostpone int    `json:"penalty_postpone"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

// TaskResponse is a task record plus the derived figures clients otherwise
// recompute inconsistently.
type TaskResponse struct {
	domain.TaskRecord
	NetPoints        int      `json:"net_points"`
	Snoozed          bool     `json:"snoozed"`
	ProgressFraction *float64 `json:"progress_fraction,omitempty" minimum:"0" maximum:"1"`
}

func taskResponse(t domain.TaskRecord, now time.Time) TaskResponse {
	resp := TaskResponse{
		TaskRecord: t,
		NetPoints:  scoring.NetPoints(t),
		Snoozed:    t.IsSnoozed(now),
	}
	if t.Kind == domain.KindRoutine && t.ProgressStartDate != nil {
		frac := routine.ProgressFraction(now, *t.ProgressStartDate, t.DueDate)
		resp.ProgressFraction = &frac
	}
	return resp
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type CompleteResponse struct {
	Task             TaskResponse `json:"task"`
	NetPoints        int          `json:"net_points"`
	OfferNextRoutine bool         `json:"offer_next_routine"`
}

type UndoPreviewResponse struct {
	Classification undo.Classification `json:"classification"`
}

type ProjectionResponse struct {
	TaskID    string `json:"task_id"`
	NetPoints int    `json:"net_points"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	TaskID  string         `json:"task_id,omitempty"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:      e.ID,
		TS:      e.TS,
		Type:    e.Type,
		TaskID:  e.TaskID,
		ActorID: e.ActorID,
		Payload: payload,
	}
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

type SettingsResponse struct {
	NotDoneReasons  []string                  `json:"not_done_reasons"`
	PostponeReasons []string                  `json:"postpone_reasons"`
	SnoozeDefault   int                       `json:"snooze_default_minutes"`
	SnoozeOptions   []int                     `json:"snooze_options"`
	TaskTypes       map[string]TaskTypeConfig `json:"task_types"`
}

type TaskTypeConfig struct {
	RewardOnDone    int `json:"reward_on_done"`
	PenaltyNotDone  int `json:"penalty_not_done"`
	PenaltyPostpone int `json:"penalty_postpone"`
}

func settingsResponse(cfg *config.Config) SettingsResponse {
	resp := SettingsResponse{
		NotDoneReasons:  nonNilSlice(cfg.Reasons.NotDone),
		PostponeReasons: nonNilSlice(cfg.Reasons.Postpone),
		SnoozeDefault:   cfg.Snooze.DefaultMinutes,
		SnoozeOptions:   nonNilSlice(cfg.Snooze.Options),
		TaskTypes:       map[string]TaskTypeConfig{},
	}
	for name, tt := range cfg.TaskTypes {
		resp.TaskTypes[name] = TaskTypeConfig{
			RewardOnDone:    tt.RewardOnDone,
			PenaltyNotDone:  tt.PenaltyNotDone,
			PenaltyPostpone: tt.PenaltyPostpone,
		}
	}
	return resp
}

func mapTasks(items []domain.TaskRecord, now time.Time) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t, now))
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
