// Package lifecycle is the task state machine. Every transition is a pure
// function over an immutable TaskRecord: it validates, copies, mutates the
// copy, and returns it. Failure paths leave the input untouched. Persistence
// and notification scheduling are the caller's problem.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"dayline/internal/domain"
	"dayline/internal/history"
	"dayline/internal/scoring"
)

// MaxSnoozeMinutes is the 24h snooze ceiling.
const MaxSnoozeMinutes = 1440

// CompleteOutcome is returned alongside the completed record so the caller
// can drive side effects the engine never performs itself.
type CompleteOutcome struct {
	// OfferNextRoutine tells the caller to offer scheduling the routine's
	// next occurrence. The next instance is not created automatically.
	OfferNextRoutine bool
}

// Complete marks the task done and resolves its reward. The postpone penalty
// is not folded into PointsEarned; it stays in CumulativePostponePenalty and
// surfaces through net points.
func Complete(task domain.TaskRecord, tt *domain.TaskType, now time.Time) (domain.TaskRecord, CompleteOutcome, error) {
	if task.Status == domain.StatusCompleted {
		return task, CompleteOutcome{}, &AlreadyCompletedError{TaskID: task.ID}
	}
	if pending := task.IncompleteSubtasks(); len(pending) > 0 {
		return task, CompleteOutcome{}, &IncompleteSubtasksError{TaskID: task.ID, Titles: pending}
	}
	out := task.Clone()
	completedAt := now
	out.Status = domain.StatusCompleted
	out.CompletedAt = &completedAt
	out.PointsEarned = scoring.Resolve(tt).RewardOnDone
	out.SnoozedUntil = nil
	out.UpdatedAt = now
	return out, CompleteOutcome{OfferNextRoutine: task.Kind == domain.KindRoutine}, nil
}

// MarkNotDone resolves the task as skipped with its configured penalty.
func MarkNotDone(task domain.TaskRecord, tt *domain.TaskType, reason string, now time.Time) (domain.TaskRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return task, ErrReasonRequired
	}
	if task.Status.Terminal() {
		return task, &TaskLockedError{TaskID: task.ID, Status: task.Status}
	}
	out := task.Clone()
	r := reason
	out.Status = domain.StatusNotDone
	out.NotDoneReason = &r
	out.PointsEarned = scoring.Resolve(tt).PenaltyNotDone
	out.SnoozedUntil = nil
	out.UpdatedAt = now
	return out, nil
}

// Postpone moves the due date forward and records a penalized, auditable
// entry. The first postpone preserves the original due date so undo and
// display can always reach it. Enforcing that newDue is in the future is the
// caller's job; this layer only refuses terminal tasks and blank reasons.
func Postpone(task domain.TaskRecord, newDue time.Time, reason string, penalty int, now time.Time) (domain.TaskRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return task, ErrReasonRequired
	}
	if task.Status.Terminal() {
		return task, &TaskLockedError{TaskID: task.ID, Status: task.Status}
	}
	if penalty > 0 {
		penalty = 0
	}
	entry := domain.PostponeEntry{
		From:           task.DueDate,
		To:             newDue,
		Reason:         reason,
		PostponedAt:    now,
		PenaltyApplied: penalty,
	}
	trail, err := history.AppendPostpone(task.PostponeHistory, entry)
	if err != nil {
		return task, err
	}
	out := task.Clone()
	if out.OriginalDueDate == nil {
		first := task.DueDate
		out.OriginalDueDate = &first
	}
	r := reason
	out.PostponeHistory = trail
	out.PostponeCount = len(trail)
	out.CumulativePostponePenalty = scoring.CumulativePenalty(trail)
	out.PostponeReason = &r
	out.DueDate = newDue
	out.Status = domain.StatusPostponed
	// Rescheduling supersedes any reminder delay.
	out.SnoozedUntil = nil
	out.UpdatedAt = now
	return out, nil
}

// Snooze delays the task's reminder without touching due date or status.
// Multiple snoozes accumulate in history but only the latest until matters.
func Snooze(task domain.TaskRecord, minutes int, source string, now time.Time) (domain.TaskRecord, error) {
	if minutes <= 0 || minutes > MaxSnoozeMinutes {
		return task, &InvalidDurationError{Minutes: minutes}
	}
	if task.Status.Terminal() {
		return task, &TaskLockedError{TaskID: task.ID, Status: task.Status}
	}
	until := now.Add(time.Duration(minutes) * time.Minute)
	entry := domain.SnoozeEntry{At: now, Minutes: minutes, Until: until, Source: source}
	trail, err := history.AppendSnooze(task.SnoozeHistory, entry)
	if err != nil {
		return task, err
	}
	out := task.Clone()
	out.SnoozeHistory = trail
	out.SnoozedUntil = &until
	out.UpdatedAt = now
	return out, nil
}

// ToggleSubtask flips completion on one subtask. Terminal tasks are locked.
func ToggleSubtask(task domain.TaskRecord, index int, now time.Time) (domain.TaskRecord, error) {
	if task.Status.Terminal() {
		return task, &TaskLockedError{TaskID: task.ID, Status: task.Status}
	}
	if index < 0 || index >= len(task.Subtasks) {
		return task, fmt.Errorf("lifecycle: subtask index %d out of range (task %s has %d)", index, task.ID, len(task.Subtasks))
	}
	out := task.Clone()
	out.Subtasks[index].IsCompleted = !out.Subtasks[index].IsCompleted
	out.UpdatedAt = now
	return out, nil
}
