// Package undo reverses the most recent lifecycle transition on a task:
// completion, not-done, or the latest postpone. Snoozes are not undoable;
// they are only cancellable by the notification collaborator.
package undo

import (
	"time"

	"dayline/internal/domain"
	"dayline/internal/history"
	"dayline/internal/scoring"
)

type Kind string

const (
	KindNone           Kind = "none"
	KindRevertComplete Kind = "revert_complete"
	KindRevertNotDone  Kind = "revert_not_done"
	KindRevertPostpone Kind = "revert_postpone"
)

// Classification tells the caller what an undo would do, so the user can be
// asked before committing. WillDeleteTasks counts auto-generated occurrences
// the caller would remove; the count comes from a repository query and this
// package never deletes anything itself.
type Classification struct {
	Kind            Kind `json:"kind" enum:"none,revert_complete,revert_not_done,revert_postpone"`
	WillDeleteTasks int  `json:"will_delete_tasks"`
}

// Classify inspects the record and the caller-supplied spawned-instance
// count.
func Classify(task domain.TaskRecord, spawned int) Classification {
	switch {
	case task.Status == domain.StatusCompleted:
		return Classification{Kind: KindRevertComplete, WillDeleteTasks: spawned}
	case task.Status == domain.StatusNotDone:
		return Classification{Kind: KindRevertNotDone}
	case task.PostponeCount > 0:
		return Classification{Kind: KindRevertPostpone}
	default:
		return Classification{Kind: KindNone}
	}
}

// Undo reconstructs the pre-transition state. Undoing from completed or
// not_done never touches the postpone trail; undoing a postpone pops exactly
// the most recent entry and recomputes the penalty sum from what remains.
func Undo(task domain.TaskRecord, now time.Time) (domain.TaskRecord, error) {
	switch {
	case task.Status == domain.StatusCompleted:
		out := task.Clone()
		out.Status = domain.StatusPending
		out.CompletedAt = nil
		out.PointsEarned = 0
		out.UpdatedAt = now
		return out, nil

	case task.Status == domain.StatusNotDone:
		out := task.Clone()
		out.Status = domain.StatusPending
		out.NotDoneReason = nil
		out.PointsEarned = 0
		out.UpdatedAt = now
		return out, nil

	case task.PostponeCount > 0:
		entry, rest, err := history.PopLastPostpone(task.PostponeHistory)
		if err != nil {
			return task, err
		}
		out := task.Clone()
		out.PostponeHistory = rest
		out.PostponeCount = len(rest)
		out.CumulativePostponePenalty = scoring.CumulativePenalty(rest)
		out.DueDate = entry.From
		if len(rest) == 0 {
			out.OriginalDueDate = nil
			out.PostponeReason = nil
			out.Status = domain.StatusPending
		} else {
			r := rest[len(rest)-1].Reason
			out.PostponeReason = &r
		}
		out.UpdatedAt = now
		return out, nil

	default:
		return task, history.ErrEmptyHistory
	}
}
