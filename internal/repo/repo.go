package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/history"
)

type Repo struct {
	DB *sql.DB
	// Reporter receives malformed-history reports during row scans.
	Reporter history.Reporter
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,notes,kind,status,due_date,due_time,snoozed_until,task_type_id,
points_earned,cumulative_postpone_penalty,postpone_count,postpone_history_json,snooze_history_json,
not_done_reason,postpone_reason,recurrence_group_id,routine_group_id,recurrence_index,recurrence_json,
original_due_date,progress_start_date,subtasks_json,created_at,updated_at,completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r Repo) scanTask(row rowScanner) (domain.TaskRecord, error) {
	var (
		t                                 domain.TaskRecord
		notes, dueTime, snoozedUntil      sql.NullString
		taskTypeID, notDone, postponeR    sql.NullString
		recGroup, routineGroup, recJSON   sql.NullString
		originalDue, progressStart        sql.NullString
		completedAt                       sql.NullString
		dueDate, createdAt, updatedAt     string
		postponesJSON, snoozesJSON, subsJ string
	)
	err := row.Scan(&t.ID, &t.Title, &notes, &t.Kind, &t.Status, &dueDate, &dueTime, &snoozedUntil, &taskTypeID,
		&t.PointsEarned, &t.CumulativePostponePenalty, &t.PostponeCount, &postponesJSON, &snoozesJSON,
		&notDone, &postponeR, &recGroup, &routineGroup, &t.RecurrenceIndex, &recJSON,
		&originalDue, &progressStart, &subsJ, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Notes = notes.String
	t.DueTime = optString(dueTime)
	t.TaskTypeID = optString(taskTypeID)
	t.NotDoneReason = optString(notDone)
	t.PostponeReason = optString(postponeR)
	t.RecurrenceGroupID = optString(recGroup)
	t.RoutineGroupID = optString(routineGroup)
	if t.DueDate, err = parseTime(dueDate); err != nil {
		return t, fmt.Errorf("task %s due_date: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}
	if t.SnoozedUntil, err = optTime(snoozedUntil); err != nil {
		return t, fmt.Errorf("task %s snoozed_until: %w", t.ID, err)
	}
	if t.OriginalDueDate, err = optTime(originalDue); err != nil {
		return t, fmt.Errorf("task %s original_due_date: %w", t.ID, err)
	}
	if t.ProgressStartDate, err = optTime(progressStart); err != nil {
		return t, fmt.Errorf("task %s progress_start_date: %w", t.ID, err)
	}
	if t.CompletedAt, err = optTime(completedAt); err != nil {
		return t, fmt.Errorf("task %s completed_at: %w", t.ID, err)
	}
	t.PostponeHistory = history.DecodePostpones(t.ID, postponesJSON, r.Reporter)
	t.SnoozeHistory = history.DecodeSnoozes(t.ID, snoozesJSON, r.Reporter)
	if subsJ != "" && subsJ != "[]" {
		if err := json.Unmarshal([]byte(subsJ), &t.Subtasks); err != nil {
			return t, fmt.Errorf("task %s subtasks: %w", t.ID, err)
		}
	}
	if recJSON.Valid && recJSON.String != "" {
		var rule domain.RecurrenceRule
		if err := json.Unmarshal([]byte(recJSON.String), &rule); err != nil {
			return t, fmt.Errorf("task %s recurrence: %w", t.ID, err)
		}
		t.Recurrence = &rule
	}
	return t, nil
}

func taskArgs(t domain.TaskRecord) ([]any, error) {
	postpones, err := history.EncodePostpones(t.PostponeHistory)
	if err != nil {
		return nil, err
	}
	snoozes, err := history.EncodeSnoozes(t.SnoozeHistory)
	if err != nil {
		return nil, err
	}
	subs := t.Subtasks
	if subs == nil {
		subs = []domain.Subtask{}
	}
	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return nil, err
	}
	var recJSON any
	if t.Recurrence != nil {
		b, err := json.Marshal(t.Recurrence)
		if err != nil {
			return nil, err
		}
		recJSON = string(b)
	}
	return []any{
		t.ID, t.Title, nullable(t.Notes), string(t.Kind), string(t.Status),
		fmtTime(t.DueDate), nullablePtr(t.DueTime), nullableTime(t.SnoozedUntil), nullablePtr(t.TaskTypeID),
		t.PointsEarned, t.CumulativePostponePenalty, t.PostponeCount, postpones, string(subsJSON), snoozes,
		nullablePtr(t.NotDoneReason), nullablePtr(t.PostponeReason),
		nullablePtr(t.RecurrenceGroupID), nullablePtr(t.RoutineGroupID), t.RecurrenceIndex, recJSON,
		nullableTime(t.OriginalDueDate), nullableTime(t.ProgressStartDate),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt), nullableTime(t.CompletedAt),
	}, nil
}

const insertTaskSQL = `INSERT INTO tasks(id,title,notes,kind,status,due_date,due_time,snoozed_until,task_type_id,
points_earned,cumulative_postpone_penalty,postpone_count,postpone_history_json,subtasks_json,snooze_history_json,
not_done_reason,postpone_reason,recurrence_group_id,routine_group_id,recurrence_index,recurrence_json,
original_due_date,progress_start_date,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.TaskRecord) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, insertTaskSQL, args...)
	return err
}

// SaveTask rewrites every mutable column. The engine always persists a full
// record produced by a transition, never a partial patch.
func (r Repo) SaveTask(ctx context.Context, tx *sql.Tx, t domain.TaskRecord) error {
	postpones, err := history.EncodePostpones(t.PostponeHistory)
	if err != nil {
		return err
	}
	snoozes, err := history.EncodeSnoozes(t.SnoozeHistory)
	if err != nil {
		return err
	}
	subs := t.Subtasks
	if subs == nil {
		subs = []domain.Subtask{}
	}
	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,notes=?,status=?,due_date=?,due_time=?,snoozed_until=?,
points_earned=?,cumulative_postpone_penalty=?,postpone_count=?,postpone_history_json=?,snooze_history_json=?,
not_done_reason=?,postpone_reason=?,original_due_date=?,progress_start_date=?,subtasks_json=?,updated_at=?,completed_at=?
WHERE id=?`,
		t.Title, nullable(t.Notes), string(t.Status), fmtTime(t.DueDate), nullablePtr(t.DueTime), nullableTime(t.SnoozedUntil),
		t.PointsEarned, t.CumulativePostponePenalty, t.PostponeCount, postpones, snoozes,
		nullablePtr(t.NotDoneReason), nullablePtr(t.PostponeReason), nullableTime(t.OriginalDueDate), nullableTime(t.ProgressStartDate),
		string(subsJSON), fmtTime(t.UpdatedAt), nullableTime(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.TaskRecord, error) {
	return r.scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskFilters narrow ListTasks. Cursor pagination is keyed on
// (created_at, id) descending, matching list order.
type TaskFilters struct {
	Status          string
	Kind            string
	RoutineGroupID  string
	RecurrenceGroup string
	DueBefore       *time.Time
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.TaskRecord, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		if f.Status == "open" {
			clauses = append(clauses, "status IN ('pending','postponed')")
		} else {
			clauses = append(clauses, "status=?")
			args = append(args, f.Status)
		}
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.RoutineGroupID != "" {
		clauses = append(clauses, "routine_group_id=?")
		args = append(args, f.RoutineGroupID)
	}
	if f.RecurrenceGroup != "" {
		clauses = append(clauses, "recurrence_group_id=?")
		args = append(args, f.RecurrenceGroup)
	}
	if f.DueBefore != nil {
		clauses = append(clauses, "due_date < ?")
		args = append(args, fmtTime(*f.DueBefore))
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRecord
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountSpawnedAfter counts later occurrences in a routine or recurrence
// group. Undo-from-completed reports this so the caller can confirm before
// deleting auto-generated instances.
func (r Repo) CountSpawnedAfter(ctx context.Context, groupColumn, groupID string, index int) (int, error) {
	if groupColumn != "routine_group_id" && groupColumn != "recurrence_group_id" {
		return 0, fmt.Errorf("unsupported group column %q", groupColumn)
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE `+groupColumn+`=? AND recurrence_index > ?`, groupID, index).Scan(&n)
	return n, err
}

// DeleteSpawnedAfter removes later occurrences in a group. Bulk series
// deletion is the only way tasks are destroyed besides explicit delete.
func (r Repo) DeleteSpawnedAfter(ctx context.Context, tx *sql.Tx, groupColumn, groupID string, index int) (int64, error) {
	if groupColumn != "routine_group_id" && groupColumn != "recurrence_group_id" {
		return 0, fmt.Errorf("unsupported group column %q", groupColumn)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE `+groupColumn+`=? AND recurrence_index > ?`, groupID, index)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) InsertTaskType(ctx context.Context, tt domain.TaskType) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_types(id,name,reward_on_done,penalty_not_done,penalty_postpone,created_at) VALUES (?,?,?,?,?,?)`,
		tt.ID, tt.Name, tt.RewardOnDone, tt.PenaltyNotDone, tt.PenaltyPostpone, fmtTime(tt.CreatedAt))
	return err
}

func scanTaskType(row rowScanner) (domain.TaskType, error) {
	var tt domain.TaskType
	var createdAt string
	err := row.Scan(&tt.ID, &tt.Name, &tt.RewardOnDone, &tt.PenaltyNotDone, &tt.PenaltyPostpone, &createdAt)
	if err == sql.ErrNoRows {
		return tt, ErrNotFound
	}
	if err != nil {
		return tt, err
	}
	tt.CreatedAt, err = parseTime(createdAt)
	return tt, err
}

func (r Repo) GetTaskType(ctx context.Context, id string) (domain.TaskType, error) {
	return scanTaskType(r.DB.QueryRowContext(ctx,
		`SELECT id,name,reward_on_done,penalty_not_done,penalty_postpone,created_at FROM task_types WHERE id=?`, id))
}

func (r Repo) GetTaskTypeByName(ctx context.Context, name string) (domain.TaskType, error) {
	return scanTaskType(r.DB.QueryRowContext(ctx,
		`SELECT id,name,reward_on_done,penalty_not_done,penalty_postpone,created_at FROM task_types WHERE name=?`, name))
}

func (r Repo) ListTaskTypes(ctx context.Context) ([]domain.TaskType, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,name,reward_on_done,penalty_not_done,penalty_postpone,created_at FROM task_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskType
	for rows.Next() {
		tt, err := scanTaskType(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, tt)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTaskType(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_types WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskTypeFor resolves a record's optional task type. A missing reference
// degrades to nil: the task simply scores as untyped.
func (r Repo) TaskTypeFor(ctx context.Context, t domain.TaskRecord) (*domain.TaskType, error) {
	if t.TaskTypeID == nil || *t.TaskTypeID == "" {
		return nil, nil
	}
	tt, err := r.GetTaskType(ctx, *t.TaskTypeID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// UpsertSettings stores the active config JSON in the DB, the source of
// truth once imported.
func (r Repo) UpsertSettings(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO settings(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetSettings(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM settings WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// EventFilters narrow ListEvents; AfterID supports tail-style cursors.
type EventFilters struct {
	TaskID  string
	AfterID int64
	Limit   int
}

func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	query := `SELECT id,ts,type,COALESCE(task_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TaskID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 on an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func optString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func optTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}
