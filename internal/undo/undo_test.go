package undo_test

import (
	"errors"
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/history"
	"dayline/internal/lifecycle"
	"dayline/internal/undo"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func chores() *domain.TaskType {
	return &domain.TaskType{ID: "tt-1", Name: "chores", RewardOnDone: 10, PenaltyNotDone: -10, PenaltyPostpone: -5}
}

func pendingTask() domain.TaskRecord {
	id := "tt-1"
	return domain.TaskRecord{
		ID:         "task-1",
		Title:      "water the plants",
		Kind:       domain.KindNormal,
		Status:     domain.StatusPending,
		DueDate:    now.AddDate(0, 0, 1),
		TaskTypeID: &id,
	}
}

func TestClassify(t *testing.T) {
	task := pendingTask()
	if c := undo.Classify(task, 0); c.Kind != undo.KindNone {
		t.Fatalf("fresh task: %+v", c)
	}

	done, _, err := lifecycle.Complete(task, chores(), now)
	if err != nil {
		t.Fatal(err)
	}
	c := undo.Classify(done, 3)
	if c.Kind != undo.KindRevertComplete || c.WillDeleteTasks != 3 {
		t.Fatalf("completed: %+v", c)
	}

	skipped, err := lifecycle.MarkNotDone(task, chores(), "sick", now)
	if err != nil {
		t.Fatal(err)
	}
	if c := undo.Classify(skipped, 0); c.Kind != undo.KindRevertNotDone {
		t.Fatalf("not done: %+v", c)
	}

	moved, err := lifecycle.Postpone(task, now.AddDate(0, 0, 2), "busy", -5, now)
	if err != nil {
		t.Fatal(err)
	}
	if c := undo.Classify(moved, 0); c.Kind != undo.KindRevertPostpone {
		t.Fatalf("postponed: %+v", c)
	}
}

func TestUndoFromCompleted(t *testing.T) {
	task := pendingTask()
	task, err := lifecycle.Postpone(task, now.AddDate(0, 0, 2), "busy", -5, now)
	if err != nil {
		t.Fatal(err)
	}
	task, err = lifecycle.Postpone(task, now.AddDate(0, 0, 3), "again", -5, now)
	if err != nil {
		t.Fatal(err)
	}
	done, _, err := lifecycle.Complete(task, chores(), now)
	if err != nil {
		t.Fatal(err)
	}
	reverted, err := undo.Undo(done, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if reverted.Status != domain.StatusPending {
		t.Fatalf("status: %s", reverted.Status)
	}
	if reverted.CompletedAt != nil || reverted.PointsEarned != 0 {
		t.Fatalf("completion fields: %+v", reverted)
	}
	// Undo-from-completed never touches the postpone trail.
	if reverted.CumulativePostponePenalty != -10 || reverted.PostponeCount != 2 {
		t.Fatalf("postpone trail touched: penalty=%d count=%d", reverted.CumulativePostponePenalty, reverted.PostponeCount)
	}
}

func TestUndoFromNotDone(t *testing.T) {
	skipped, err := lifecycle.MarkNotDone(pendingTask(), chores(), "sick", now)
	if err != nil {
		t.Fatal(err)
	}
	reverted, err := undo.Undo(skipped, now)
	if err != nil {
		t.Fatal(err)
	}
	if reverted.Status != domain.StatusPending || reverted.NotDoneReason != nil || reverted.PointsEarned != 0 {
		t.Fatalf("revert not done: %+v", reverted)
	}
}

func TestUndoInverseOfLastPostpone(t *testing.T) {
	task := pendingTask()
	dueBefore := task.DueDate
	task, err := lifecycle.Postpone(task, now.AddDate(0, 0, 2), "busy", -5, now)
	if err != nil {
		t.Fatal(err)
	}
	dueMid := task.DueDate
	task, err = lifecycle.Postpone(task, now.AddDate(0, 0, 4), "again", -3, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	reverted, err := undo.Undo(task, now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !reverted.DueDate.Equal(dueMid) {
		t.Fatalf("due date after first undo: %v want %v", reverted.DueDate, dueMid)
	}
	if reverted.PostponeCount != 1 || reverted.CumulativePostponePenalty != -5 {
		t.Fatalf("trail after first undo: count=%d penalty=%d", reverted.PostponeCount, reverted.CumulativePostponePenalty)
	}
	if reverted.PostponeReason == nil || *reverted.PostponeReason != "busy" {
		t.Fatalf("reason mirror: %v", reverted.PostponeReason)
	}
	if reverted.OriginalDueDate == nil {
		t.Fatal("original due date must survive while entries remain")
	}

	reverted, err = undo.Undo(reverted, now.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !reverted.DueDate.Equal(dueBefore) {
		t.Fatalf("due date after full undo: %v want %v", reverted.DueDate, dueBefore)
	}
	if reverted.PostponeCount != 0 || reverted.CumulativePostponePenalty != 0 {
		t.Fatalf("trail after full undo: %+v", reverted)
	}
	if reverted.OriginalDueDate != nil || reverted.PostponeReason != nil {
		t.Fatal("original due date and reason mirror must clear with the trail")
	}
	if reverted.Status != domain.StatusPending {
		t.Fatalf("status: %s", reverted.Status)
	}
}

func TestUndoNothingToUndo(t *testing.T) {
	_, err := undo.Undo(pendingTask(), now)
	if !errors.Is(err, history.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestUndoLeavesSnoozeHistoryAlone(t *testing.T) {
	task, err := lifecycle.Snooze(pendingTask(), 15, "popup", now)
	if err != nil {
		t.Fatal(err)
	}
	task, err = lifecycle.Postpone(task, now.AddDate(0, 0, 2), "busy", -5, now)
	if err != nil {
		t.Fatal(err)
	}
	reverted, err := undo.Undo(task, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(reverted.SnoozeHistory) != 1 {
		t.Fatalf("snooze history: %+v", reverted.SnoozeHistory)
	}
}
