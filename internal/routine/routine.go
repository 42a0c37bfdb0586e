// Package routine derives the next occurrence of routine and recurring tasks
// and owns the progress-fraction contract every countdown display shares.
package routine

import (
	"errors"
	"fmt"
	"time"

	"dayline/internal/domain"
)

var ErrInvalidRule = errors.New("routine: invalid recurrence rule")

// NextInstance produces the next occurrence of a routine task. The new record
// shares the routine group (defaulting to the source task's id when it is the
// first instance), increments the occurrence index, and starts pending with
// empty history. progressStart anchors the countdown window; callers normally
// pass the prior instance's completion time, or now if that is unavailable.
func NextInstance(task domain.TaskRecord, id string, newDue time.Time, newDueTime *string, progressStart time.Time, now time.Time) domain.TaskRecord {
	groupID := task.ID
	if task.RoutineGroupID != nil && *task.RoutineGroupID != "" {
		groupID = *task.RoutineGroupID
	}
	start := progressStart
	next := domain.TaskRecord{
		ID:                id,
		Title:             task.Title,
		Notes:             task.Notes,
		Kind:              domain.KindRoutine,
		Status:            domain.StatusPending,
		DueDate:           newDue,
		TaskTypeID:        task.TaskTypeID,
		RoutineGroupID:    &groupID,
		RecurrenceIndex:   task.RecurrenceIndex + 1,
		ProgressStartDate: &start,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if newDueTime != nil {
		t := *newDueTime
		next.DueTime = &t
	}
	for _, s := range task.Subtasks {
		next.Subtasks = append(next.Subtasks, domain.Subtask{Title: s.Title})
	}
	return next
}

// AnchorProgressStart picks the countdown anchor for a routine's next
// occurrence: the completing instance's completion time, else now.
func AnchorProgressStart(task domain.TaskRecord, now time.Time) time.Time {
	if task.CompletedAt != nil && !task.CompletedAt.IsZero() {
		return *task.CompletedAt
	}
	return now
}

// ProgressFraction is the elapsed share of the window between the progress
// anchor and the due date, clamped to [0, 1]. Every consumer must use this
// function so countdown displays agree.
func ProgressFraction(now, start, due time.Time) float64 {
	if !due.After(start) {
		return 1
	}
	f := float64(now.Sub(start)) / float64(due.Sub(start))
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// NextAfter steps a recurrence rule forward from a given occurrence.
func NextAfter(rule domain.RecurrenceRule, from time.Time) (time.Time, error) {
	if rule.Interval <= 0 {
		return time.Time{}, fmt.Errorf("%w: interval %d", ErrInvalidRule, rule.Interval)
	}
	switch rule.Freq {
	case "daily":
		return from.AddDate(0, 0, rule.Interval), nil
	case "weekly":
		return from.AddDate(0, 0, 7*rule.Interval), nil
	case "monthly":
		return from.AddDate(0, rule.Interval, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: freq %q", ErrInvalidRule, rule.Freq)
	}
}

// Occurrences expands a rule into the due dates of the whole pre-generated
// series, first occurrence included.
func Occurrences(rule domain.RecurrenceRule, first time.Time) ([]time.Time, error) {
	if rule.Count <= 0 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidRule, rule.Count)
	}
	out := make([]time.Time, 0, rule.Count)
	cursor := first
	for i := 0; i < rule.Count; i++ {
		out = append(out, cursor)
		next, err := NextAfter(rule, cursor)
		if err != nil {
			return nil, err
		}
		cursor = next
	}
	return out, nil
}
