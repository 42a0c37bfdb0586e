// Package engine drives the pure lifecycle core against the repository:
// load the latest record, apply a transition, persist the result, and append
// an audit event, all inside one transaction. Notification scheduling stays
// outside; callers act on the data the engine returns.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/lifecycle"
	"dayline/internal/repo"
	"dayline/internal/routine"
	"dayline/internal/scoring"
	"dayline/internal/undo"
)

var ErrDueDateNotFuture = errors.New("engine: new due date must be in the future")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TaskCreateOptions are parameters for creating a task or a recurring series.
type TaskCreateOptions struct {
	ID           string
	Title        string
	Notes        string
	Kind         domain.TaskKind
	DueDate      time.Time
	DueTime      string
	TaskTypeName string
	Subtasks     []string
	Recurrence   *domain.RecurrenceRule
	ActorID      string
}

// CreateTask creates one task, or the whole pre-generated series for a
// recurring task. The first instance is returned.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.TaskRecord, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.TaskRecord{}, errors.New("title is required")
	}
	if opts.Kind == "" {
		opts.Kind = domain.KindNormal
	}
	if !opts.Kind.Valid() {
		return domain.TaskRecord{}, fmt.Errorf("invalid task kind %q", opts.Kind)
	}
	if opts.DueDate.IsZero() {
		return domain.TaskRecord{}, errors.New("due date is required")
	}
	if opts.Kind == domain.KindRecurring && opts.Recurrence == nil {
		return domain.TaskRecord{}, errors.New("recurring tasks need a recurrence rule")
	}
	if opts.Kind != domain.KindRecurring && opts.Recurrence != nil {
		return domain.TaskRecord{}, errors.New("recurrence rule only applies to recurring tasks")
	}

	var taskTypeID *string
	if opts.TaskTypeName != "" {
		tt, err := e.Repo.GetTaskTypeByName(ctx, opts.TaskTypeName)
		if err != nil {
			return domain.TaskRecord{}, fmt.Errorf("task type %q: %w", opts.TaskTypeName, err)
		}
		taskTypeID = &tt.ID
	}

	now := e.now().UTC()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	first := domain.TaskRecord{
		ID:         id,
		Title:      opts.Title,
		Notes:      opts.Notes,
		Kind:       opts.Kind,
		Status:     domain.StatusPending,
		DueDate:    opts.DueDate.UTC(),
		TaskTypeID: taskTypeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if opts.DueTime != "" {
		dt := opts.DueTime
		first.DueTime = &dt
	}
	for _, title := range opts.Subtasks {
		if strings.TrimSpace(title) == "" {
			continue
		}
		first.Subtasks = append(first.Subtasks, domain.Subtask{Title: title})
	}
	if opts.Kind == domain.KindRoutine {
		start := now
		group := id
		first.ProgressStartDate = &start
		first.RoutineGroupID = &group
	}

	series := []domain.TaskRecord{first}
	if opts.Kind == domain.KindRecurring {
		rule := *opts.Recurrence
		dues, err := routine.Occurrences(rule, first.DueDate)
		if err != nil {
			return domain.TaskRecord{}, err
		}
		group := id
		series = series[:0]
		for i, due := range dues {
			inst := first.Clone()
			if i > 0 {
				inst.ID = uuid.New().String()
			}
			inst.DueDate = due
			inst.RecurrenceGroupID = &group
			inst.RecurrenceIndex = i
			inst.Recurrence = &rule
			series = append(series, inst)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	defer tx.Rollback()
	for _, inst := range series {
		if err := e.Repo.InsertTask(ctx, tx, inst); err != nil {
			return domain.TaskRecord{}, fmt.Errorf("insert task: %w", err)
		}
	}
	payload := events.EventPayload{"kind": string(opts.Kind), "title": opts.Title}
	if len(series) > 1 {
		payload["occurrences"] = len(series)
	}
	if err := e.Events.Append(ctx, tx, "task.create", series[0].ID, opts.ActorID, payload); err != nil {
		return domain.TaskRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRecord{}, err
	}
	return series[0], nil
}

// CompleteResult pairs the completed record with what the caller should do
// next.
type CompleteResult struct {
	Task             domain.TaskRecord
	NetPoints        int
	OfferNextRoutine bool
}

func (e Engine) CompleteTask(ctx context.Context, id, actorID string) (CompleteResult, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return CompleteResult{}, err
	}
	tt, err := e.Repo.TaskTypeFor(ctx, task)
	if err != nil {
		return CompleteResult{}, err
	}
	done, outcome, err := lifecycle.Complete(task, tt, e.now().UTC())
	if err != nil {
		return CompleteResult{}, err
	}
	err = e.persist(ctx, done, "task.complete", actorID, events.EventPayload{
		"points_earned": done.PointsEarned,
		"net_points":    scoring.NetPoints(done),
	})
	if err != nil {
		return CompleteResult{}, err
	}
	return CompleteResult{Task: done, NetPoints: scoring.NetPoints(done), OfferNextRoutine: outcome.OfferNextRoutine}, nil
}

func (e Engine) MarkTaskNotDone(ctx context.Context, id, reason, actorID string) (domain.TaskRecord, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	tt, err := e.Repo.TaskTypeFor(ctx, task)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	skipped, err := lifecycle.MarkNotDone(task, tt, reason, e.now().UTC())
	if err != nil {
		return domain.TaskRecord{}, err
	}
	err = e.persist(ctx, skipped, "task.not_done", actorID, events.EventPayload{
		"reason":  reason,
		"penalty": skipped.PointsEarned,
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}
	return skipped, nil
}

// PostponeTask moves the due date forward. The future check lives here, not
// in the pure core, so tests and imports can replay past histories freely.
func (e Engine) PostponeTask(ctx context.Context, id string, newDue time.Time, reason, actorID string) (domain.TaskRecord, error) {
	now := e.now().UTC()
	if !newDue.After(now) {
		return domain.TaskRecord{}, ErrDueDateNotFuture
	}
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	tt, err := e.Repo.TaskTypeFor(ctx, task)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	penalty := scoring.Resolve(tt).PenaltyPostpone
	moved, err := lifecycle.Postpone(task, newDue.UTC(), reason, penalty, now)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	err = e.persist(ctx, moved, "task.postpone", actorID, events.EventPayload{
		"from":               task.DueDate.Format(time.RFC3339),
		"to":                 newDue.UTC().Format(time.RFC3339),
		"reason":             reason,
		"penalty_applied":    penalty,
		"cumulative_penalty": moved.CumulativePostponePenalty,
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}
	return moved, nil
}

// SnoozeTask delays the reminder. The returned record's SnoozedUntil is what
// the caller hands to the notification scheduler; the engine never schedules
// anything itself.
func (e Engine) SnoozeTask(ctx context.Context, id string, minutes int, source, actorID string) (domain.TaskRecord, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	snoozed, err := lifecycle.Snooze(task, minutes, source, e.now().UTC())
	if err != nil {
		return domain.TaskRecord{}, err
	}
	err = e.persist(ctx, snoozed, "task.snooze", actorID, events.EventPayload{
		"minutes": minutes,
		"until":   snoozed.SnoozedUntil.Format(time.RFC3339),
		"source":  source,
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}
	return snoozed, nil
}

func (e Engine) ToggleSubtask(ctx context.Context, id string, index int, actorID string) (domain.TaskRecord, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	toggled, err := lifecycle.ToggleSubtask(task, index, e.now().UTC())
	if err != nil {
		return domain.TaskRecord{}, err
	}
	err = e.persist(ctx, toggled, "task.subtask_toggle", actorID, events.EventPayload{
		"index":        index,
		"is_completed": toggled.Subtasks[index].IsCompleted,
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}
	return toggled, nil
}

// ClassifyUndo reports what undoing the task would do, including how many
// auto-generated later occurrences would go with it, so the caller can
// confirm before anything is touched.
func (e Engine) ClassifyUndo(ctx context.Context, id string) (undo.Classification, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return undo.Classification{}, err
	}
	spawned := 0
	if task.Status == domain.StatusCompleted {
		if col, group, ok := groupKey(task); ok {
			spawned, err = e.Repo.CountSpawnedAfter(ctx, col, group, task.RecurrenceIndex)
			if err != nil {
				return undo.Classification{}, err
			}
		}
	}
	return undo.Classify(task, spawned), nil
}

// UndoTask reverses the task's most recent resolution or postpone. With
// deleteSpawned set, later auto-generated occurrences are removed in the
// same transaction; callers are expected to have confirmed via ClassifyUndo.
func (e Engine) UndoTask(ctx context.Context, id, actorID string, deleteSpawned bool) (domain.TaskRecord, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	wasCompleted := task.Status == domain.StatusCompleted
	reverted, err := undo.Undo(task, e.now().UTC())
	if err != nil {
		return domain.TaskRecord{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveTask(ctx, tx, reverted); err != nil {
		return domain.TaskRecord{}, err
	}
	var removed int64
	if deleteSpawned && wasCompleted {
		if col, group, ok := groupKey(task); ok {
			removed, err = e.Repo.DeleteSpawnedAfter(ctx, tx, col, group, task.RecurrenceIndex)
			if err != nil {
				return domain.TaskRecord{}, err
			}
		}
	}
	payload := events.EventPayload{"from_status": string(task.Status)}
	if removed > 0 {
		payload["deleted_occurrences"] = removed
	}
	if err := e.Events.Append(ctx, tx, "task.undo", id, actorID, payload); err != nil {
		return domain.TaskRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRecord{}, err
	}
	return reverted, nil
}

// NextRoutine creates the next occurrence of a routine task. The progress
// window anchors on the source's completion time so countdown displays agree
// everywhere.
func (e Engine) NextRoutine(ctx context.Context, id string, newDue time.Time, dueTime, actorID string) (domain.TaskRecord, error) {
	now := e.now().UTC()
	if !newDue.After(now) {
		return domain.TaskRecord{}, ErrDueDateNotFuture
	}
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	if task.Kind != domain.KindRoutine {
		return domain.TaskRecord{}, fmt.Errorf("task %s is not a routine", id)
	}
	var dt *string
	if dueTime != "" {
		dt = &dueTime
	} else if task.DueTime != nil {
		dt = task.DueTime
	}
	start := routine.AnchorProgressStart(task, now)
	next := routine.NextInstance(task, uuid.New().String(), newDue.UTC(), dt, start, now)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, next); err != nil {
		return domain.TaskRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "task.routine_next", next.ID, actorID, events.EventPayload{
		"source":         id,
		"index":          next.RecurrenceIndex,
		"progress_start": start.Format(time.RFC3339),
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRecord{}, err
	}
	return next, nil
}

// DeleteSeries removes every occurrence of a routine or recurrence group.
func (e Engine) DeleteSeries(ctx context.Context, id, actorID string) (int64, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return 0, err
	}
	col, group, ok := groupKey(task)
	if !ok {
		return 0, fmt.Errorf("task %s is not part of a series", id)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	removed, err := e.Repo.DeleteSpawnedAfter(ctx, tx, col, group, -1)
	if err != nil {
		return 0, err
	}
	err = e.Events.Append(ctx, tx, "task.series_delete", id, actorID, events.EventPayload{"deleted": removed})
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// CreateTaskType adds one entry to the points catalog.
func (e Engine) CreateTaskType(ctx context.Context, name string, reward, penaltyNotDone, penaltyPostpone int, actorID string) (domain.TaskType, error) {
	if strings.TrimSpace(name) == "" {
		return domain.TaskType{}, errors.New("name is required")
	}
	if reward < 0 {
		return domain.TaskType{}, errors.New("reward must be >= 0")
	}
	tt := domain.TaskType{
		ID:              uuid.New().String(),
		Name:            name,
		RewardOnDone:    reward,
		PenaltyNotDone:  penaltyNotDone,
		PenaltyPostpone: penaltyPostpone,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.Repo.InsertTaskType(ctx, tt); err != nil {
		return domain.TaskType{}, err
	}
	return tt, nil
}

// SeedTaskTypes inserts catalog entries from config that do not exist yet.
func (e Engine) SeedTaskTypes(ctx context.Context, actorID string) error {
	if e.Config == nil {
		return nil
	}
	for name, tc := range e.Config.TaskTypes {
		_, err := e.Repo.GetTaskTypeByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := e.CreateTaskType(ctx, name, tc.RewardOnDone, tc.PenaltyNotDone, tc.PenaltyPostpone, actorID); err != nil {
			return err
		}
	}
	return nil
}

// Projection reports what finishing the task now would earn.
func (e Engine) Projection(ctx context.Context, id string) (int, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return 0, err
	}
	tt, err := e.Repo.TaskTypeFor(ctx, task)
	if err != nil {
		return 0, err
	}
	return scoring.Projection(task, tt), nil
}

// persist saves a transitioned record and its audit event atomically.
func (e Engine) persist(ctx context.Context, t domain.TaskRecord, evtType, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, t.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func groupKey(t domain.TaskRecord) (column, group string, ok bool) {
	if t.RoutineGroupID != nil && *t.RoutineGroupID != "" {
		return "routine_group_id", *t.RoutineGroupID, true
	}
	if t.RecurrenceGroupID != nil && *t.RecurrenceGroupID != "" {
		return "recurrence_group_id", *t.RecurrenceGroupID, true
	}
	return "", "", false
}
