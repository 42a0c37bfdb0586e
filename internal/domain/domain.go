package domain

import "time"

type TaskKind string

const (
	KindNormal    TaskKind = "normal"
	KindRecurring TaskKind = "recurring"
	KindRoutine   TaskKind = "routine"
)

func (k TaskKind) Valid() bool {
	switch k {
	case KindNormal, KindRecurring, KindRoutine:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusNotDone   Status = "not_done"
	StatusPostponed Status = "postponed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusNotDone, StatusPostponed:
		return true
	default:
		return false
	}
}

// Open reports whether the task is still actionable. A postponed task has
// re-entered the pending workflow; the status only records that at least one
// postpone occurred.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPostponed
}

// Terminal reports whether the task has been resolved. Subtasks and earned
// points are frozen once a task is terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNotDone
}

type Subtask struct {
	Title       string `json:"title"`
	IsCompleted bool   `json:"is_completed"`
}

// PostponeEntry records a single postpone event. Entries are immutable once
// appended; only the most recent entry may ever be removed, and only by undo.
type PostponeEntry struct {
	From           time.Time `json:"from" format:"date-time"`
	To             time.Time `json:"to" format:"date-time"`
	Reason         string    `json:"reason"`
	PostponedAt    time.Time `json:"postponed_at" format:"date-time"`
	PenaltyApplied int       `json:"penalty_applied"`
}

// SnoozeEntry records a reminder delay. Snoozes never change the task's due
// date or status and are not undoable.
type SnoozeEntry struct {
	At      time.Time `json:"at" format:"date-time"`
	Minutes int       `json:"minutes"`
	Until   time.Time `json:"until" format:"date-time"`
	Source  string    `json:"source,omitempty"`
}

// RecurrenceRule describes an ahead-of-time recurring series. Routine tasks do
// not use a rule; their next occurrence is created on demand after completion.
type RecurrenceRule struct {
	Freq     string `json:"freq" enum:"daily,weekly,monthly"`
	Interval int    `json:"interval"`
	Count    int    `json:"count"`
}

// TaskType is the points configuration attached to a task. Penalties are
// stored as zero or negative values.
type TaskType struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RewardOnDone    int       `json:"reward_on_done"`
	PenaltyNotDone  int       `json:"penalty_not_done"`
	PenaltyPostpone int       `json:"penalty_postpone"`
	CreatedAt       time.Time `json:"created_at" format:"date-time"`
}

// APIKey authenticates HTTP API callers. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload_json"`
}

// TaskRecord is the central entity. Records are immutable by convention:
// every transition copies the record and returns the copy, leaving the input
// untouched.
type TaskRecord struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Notes string   `json:"notes,omitempty"`
	Kind  TaskKind `json:"kind" enum:"normal,recurring,routine"`

	Status       Status     `json:"status" enum:"pending,completed,not_done,postponed"`
	DueDate      time.Time  `json:"due_date" format:"date-time"`
	DueTime      *string    `json:"due_time,omitempty"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty" format:"date-time"`

	TaskTypeID                *string `json:"task_type_id,omitempty"`
	PointsEarned              int     `json:"points_earned"`
	CumulativePostponePenalty int     `json:"cumulative_postpone_penalty"`

	PostponeCount   int             `json:"postpone_count"`
	PostponeHistory []PostponeEntry `json:"postpone_history,omitempty"`
	SnoozeHistory   []SnoozeEntry   `json:"snooze_history,omitempty"`

	NotDoneReason  *string `json:"not_done_reason,omitempty"`
	PostponeReason *string `json:"postpone_reason,omitempty"`

	RecurrenceGroupID *string         `json:"recurrence_group_id,omitempty"`
	RoutineGroupID    *string         `json:"routine_group_id,omitempty"`
	RecurrenceIndex   int             `json:"recurrence_index"`
	Recurrence        *RecurrenceRule `json:"recurrence,omitempty"`
	OriginalDueDate   *time.Time      `json:"original_due_date,omitempty" format:"date-time"`
	ProgressStartDate *time.Time      `json:"progress_start_date,omitempty" format:"date-time"`

	Subtasks []Subtask `json:"subtasks,omitempty"`

	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time  `json:"updated_at" format:"date-time"`
	CompletedAt *time.Time `json:"completed_at,omitempty" format:"date-time"`
}

// Clone makes a deep copy so a transition never aliases the input's slices.
func (t TaskRecord) Clone() TaskRecord {
	out := t
	if t.Subtasks != nil {
		out.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(out.Subtasks, t.Subtasks)
	}
	if t.PostponeHistory != nil {
		out.PostponeHistory = make([]PostponeEntry, len(t.PostponeHistory))
		copy(out.PostponeHistory, t.PostponeHistory)
	}
	if t.SnoozeHistory != nil {
		out.SnoozeHistory = make([]SnoozeEntry, len(t.SnoozeHistory))
		copy(out.SnoozeHistory, t.SnoozeHistory)
	}
	out.DueTime = clonePtr(t.DueTime)
	out.SnoozedUntil = clonePtr(t.SnoozedUntil)
	out.TaskTypeID = clonePtr(t.TaskTypeID)
	out.NotDoneReason = clonePtr(t.NotDoneReason)
	out.PostponeReason = clonePtr(t.PostponeReason)
	out.RecurrenceGroupID = clonePtr(t.RecurrenceGroupID)
	out.RoutineGroupID = clonePtr(t.RoutineGroupID)
	out.OriginalDueDate = clonePtr(t.OriginalDueDate)
	out.ProgressStartDate = clonePtr(t.ProgressStartDate)
	out.CompletedAt = clonePtr(t.CompletedAt)
	if t.Recurrence != nil {
		r := *t.Recurrence
		out.Recurrence = &r
	}
	return out
}

// IsSnoozed reports whether the latest snooze is still in effect at now.
// Only the latest snoozed_until is authoritative.
func (t TaskRecord) IsSnoozed(now time.Time) bool {
	return t.SnoozedUntil != nil && t.SnoozedUntil.After(now)
}

// IncompleteSubtasks returns the titles of subtasks still open, in order.
func (t TaskRecord) IncompleteSubtasks() []string {
	var out []string
	for _, s := range t.Subtasks {
		if !s.IsCompleted {
			out = append(out, s.Title)
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
