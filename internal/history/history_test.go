package history_test

import (
	"errors"
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/history"
)

func TestAppendPostponeDoesNotMutateInput(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC) }
	trail := []domain.PostponeEntry{
		{From: day(1), To: day(2), Reason: "busy", PenaltyApplied: -5},
	}
	entry := domain.PostponeEntry{From: day(2), To: day(3), Reason: "still busy", PenaltyApplied: -5}
	out, err := history.AppendPostpone(trail, entry)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || len(trail) != 1 {
		t.Fatalf("expected fresh slice, got out=%d in=%d", len(out), len(trail))
	}
	if out[1].Reason != "still busy" {
		t.Fatalf("appended entry: %+v", out[1])
	}
}

func TestAppendPostponeRejectsPositivePenalty(t *testing.T) {
	_, err := history.AppendPostpone(nil, domain.PostponeEntry{PenaltyApplied: 5})
	if err == nil {
		t.Fatal("expected rejection")
	}
}

func TestAppendSnoozeRejectsNonPositiveMinutes(t *testing.T) {
	for _, minutes := range []int{0, -15} {
		_, err := history.AppendSnooze(nil, domain.SnoozeEntry{Minutes: minutes})
		if err == nil {
			t.Fatalf("minutes=%d: expected rejection", minutes)
		}
	}
}

func TestPopLastPostpone(t *testing.T) {
	trail := []domain.PostponeEntry{
		{Reason: "first", PenaltyApplied: -5},
		{Reason: "second", PenaltyApplied: -3},
	}
	last, rest, err := history.PopLastPostpone(trail)
	if err != nil {
		t.Fatal(err)
	}
	if last.Reason != "second" {
		t.Fatalf("popped wrong entry: %+v", last)
	}
	if len(rest) != 1 || rest[0].Reason != "first" {
		t.Fatalf("rest: %+v", rest)
	}
	if len(trail) != 2 {
		t.Fatal("input mutated")
	}
}

func TestPopLastPostponeEmpty(t *testing.T) {
	_, _, err := history.PopLastPostpone(nil)
	if !errors.Is(err, history.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	trail := []domain.PostponeEntry{
		{From: at, To: at.AddDate(0, 0, 1), Reason: "meeting ran over", PostponedAt: at, PenaltyApplied: -5},
	}
	raw, err := history.EncodePostpones(trail)
	if err != nil {
		t.Fatal(err)
	}
	back := history.DecodePostpones("task-1", raw, nil)
	if len(back) != 1 || !back[0].From.Equal(at) || back[0].Reason != "meeting ran over" {
		t.Fatalf("round trip: %+v", back)
	}

	snoozes := []domain.SnoozeEntry{{At: at, Minutes: 15, Until: at.Add(15 * time.Minute), Source: "popup"}}
	rawS, err := history.EncodeSnoozes(snoozes)
	if err != nil {
		t.Fatal(err)
	}
	backS := history.DecodeSnoozes("task-1", rawS, nil)
	if len(backS) != 1 || backS[0].Minutes != 15 || backS[0].Source != "popup" {
		t.Fatalf("snooze round trip: %+v", backS)
	}
}

func TestEncodeEmptyTrail(t *testing.T) {
	raw, err := history.EncodePostpones(nil)
	if err != nil {
		t.Fatal(err)
	}
	if raw != "[]" {
		t.Fatalf("empty trail encoding: %q", raw)
	}
}

type captureReporter struct {
	taskID string
	field  string
	err    error
}

func (c *captureReporter) ReportDecodeFailure(taskID, field string, err error) {
	c.taskID, c.field, c.err = taskID, field, err
}

func TestDecodeMalformedDegradesToEmpty(t *testing.T) {
	rep := &captureReporter{}
	trail := history.DecodePostpones("task-9", "{not json", rep)
	if trail != nil {
		t.Fatalf("expected empty trail, got %+v", trail)
	}
	if rep.taskID != "task-9" || rep.field != "postpone_history" || rep.err == nil {
		t.Fatalf("report not captured: %+v", rep)
	}

	rep = &captureReporter{}
	snoozes := history.DecodeSnoozes("task-9", "[1,2", rep)
	if snoozes != nil || rep.field != "snooze_history" {
		t.Fatalf("snooze degradation: %+v %+v", snoozes, rep)
	}
}
