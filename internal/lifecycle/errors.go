package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"dayline/internal/domain"
)

// ErrReasonRequired rejects not-done and postpone commands with a blank
// reason. The configured reason lists are a UI concern; the engine only
// checks that some reason arrived.
var ErrReasonRequired = errors.New("lifecycle: reason is required")

// AlreadyCompletedError signals a double completion. It is a no-op signal for
// the caller to surface, never a crash: the input record is unchanged.
type AlreadyCompletedError struct {
	TaskID string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("task %s is already completed", e.TaskID)
}

// IncompleteSubtasksError carries the subtasks still blocking completion.
type IncompleteSubtasksError struct {
	TaskID string
	Titles []string
}

func (e *IncompleteSubtasksError) Error() string {
	return fmt.Sprintf("task %s has incomplete subtasks: %s", e.TaskID, strings.Join(e.Titles, ", "))
}

// TaskLockedError rejects mutation of a task in a terminal state. Subtasks
// are frozen at completion time to preserve what was actually done.
type TaskLockedError struct {
	TaskID string
	Status domain.Status
}

func (e *TaskLockedError) Error() string {
	return fmt.Sprintf("task %s is locked (status %s)", e.TaskID, e.Status)
}

// InvalidDurationError rejects out-of-range snooze durations before any
// state mutation.
type InvalidDurationError struct {
	Minutes int
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("snooze duration must be between 1 and %d minutes, got %d", MaxSnoozeMinutes, e.Minutes)
}
