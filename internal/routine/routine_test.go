package routine_test

import (
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/routine"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNextInstanceFirstOccurrence(t *testing.T) {
	src := domain.TaskRecord{
		ID:              "task-1",
		Title:           "weekly review",
		Kind:            domain.KindRoutine,
		Status:          domain.StatusCompleted,
		RecurrenceIndex: 0,
		Subtasks: []domain.Subtask{
			{Title: "clear inbox", IsCompleted: true},
			{Title: "plan week", IsCompleted: true},
		},
	}
	due := now.AddDate(0, 0, 7)
	next := routine.NextInstance(src, "task-2", due, nil, now, now)

	if next.RoutineGroupID == nil || *next.RoutineGroupID != "task-1" {
		t.Fatalf("group defaults to the source id: %v", next.RoutineGroupID)
	}
	if next.RecurrenceIndex != 1 {
		t.Fatalf("index: %d", next.RecurrenceIndex)
	}
	if next.Status != domain.StatusPending {
		t.Fatalf("status: %s", next.Status)
	}
	if len(next.PostponeHistory) != 0 || len(next.SnoozeHistory) != 0 || next.PostponeCount != 0 {
		t.Fatal("history must start empty")
	}
	if next.ProgressStartDate == nil || !next.ProgressStartDate.Equal(now) {
		t.Fatalf("progress start: %v", next.ProgressStartDate)
	}
	for _, s := range next.Subtasks {
		if s.IsCompleted {
			t.Fatalf("subtasks reset for the new occurrence: %+v", next.Subtasks)
		}
	}
}

func TestNextInstanceKeepsGroup(t *testing.T) {
	group := "task-1"
	src := domain.TaskRecord{
		ID:              "task-5",
		Kind:            domain.KindRoutine,
		RoutineGroupID:  &group,
		RecurrenceIndex: 4,
	}
	next := routine.NextInstance(src, "task-6", now.AddDate(0, 0, 1), nil, now, now)
	if *next.RoutineGroupID != "task-1" || next.RecurrenceIndex != 5 {
		t.Fatalf("chain: group=%v index=%d", next.RoutineGroupID, next.RecurrenceIndex)
	}
}

func TestAnchorProgressStart(t *testing.T) {
	completed := now.Add(-2 * time.Hour)
	task := domain.TaskRecord{CompletedAt: &completed}
	if got := routine.AnchorProgressStart(task, now); !got.Equal(completed) {
		t.Fatalf("anchor: %v", got)
	}
	if got := routine.AnchorProgressStart(domain.TaskRecord{}, now); !got.Equal(now) {
		t.Fatalf("fallback anchor: %v", got)
	}
}

func TestProgressFraction(t *testing.T) {
	start := now
	due := now.Add(10 * time.Hour)
	cases := []struct {
		at   time.Time
		want float64
	}{
		{start, 0},
		{start.Add(5 * time.Hour), 0.5},
		{due, 1},
		{start.Add(-time.Hour), 0},
		{due.Add(time.Hour), 1},
	}
	for _, c := range cases {
		if got := routine.ProgressFraction(c.at, start, due); got != c.want {
			t.Fatalf("at %v: got %v want %v", c.at, got, c.want)
		}
	}
	// Degenerate window counts as elapsed.
	if got := routine.ProgressFraction(now, due, due); got != 1 {
		t.Fatalf("degenerate window: %v", got)
	}
}

func TestNextAfter(t *testing.T) {
	cases := []struct {
		rule domain.RecurrenceRule
		want time.Time
	}{
		{domain.RecurrenceRule{Freq: "daily", Interval: 1, Count: 1}, now.AddDate(0, 0, 1)},
		{domain.RecurrenceRule{Freq: "daily", Interval: 3, Count: 1}, now.AddDate(0, 0, 3)},
		{domain.RecurrenceRule{Freq: "weekly", Interval: 2, Count: 1}, now.AddDate(0, 0, 14)},
		{domain.RecurrenceRule{Freq: "monthly", Interval: 1, Count: 1}, now.AddDate(0, 1, 0)},
	}
	for _, c := range cases {
		got, err := routine.NextAfter(c.rule, now)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("%+v: got %v want %v", c.rule, got, c.want)
		}
	}
	if _, err := routine.NextAfter(domain.RecurrenceRule{Freq: "hourly", Interval: 1}, now); err == nil {
		t.Fatal("expected invalid freq error")
	}
	if _, err := routine.NextAfter(domain.RecurrenceRule{Freq: "daily", Interval: 0}, now); err == nil {
		t.Fatal("expected invalid interval error")
	}
}

func TestOccurrences(t *testing.T) {
	rule := domain.RecurrenceRule{Freq: "weekly", Interval: 1, Count: 3}
	got, err := routine.Occurrences(rule, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len: %d", len(got))
	}
	if !got[0].Equal(now) || !got[1].Equal(now.AddDate(0, 0, 7)) || !got[2].Equal(now.AddDate(0, 0, 14)) {
		t.Fatalf("series: %v", got)
	}
}
