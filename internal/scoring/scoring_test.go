package scoring_test

import (
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/scoring"
)

func TestResolveDefaults(t *testing.T) {
	v := scoring.Resolve(nil)
	if v.RewardOnDone != 0 || v.PenaltyNotDone != 0 {
		t.Fatalf("untyped tasks earn nothing: %+v", v)
	}
	if v.PenaltyPostpone != -5 {
		t.Fatalf("default postpone penalty: got %d", v.PenaltyPostpone)
	}
}

func TestResolveCoercesPositivePenalties(t *testing.T) {
	tt := &domain.TaskType{ID: "t1", Name: "chores", RewardOnDone: 10, PenaltyNotDone: 10, PenaltyPostpone: 5}
	v := scoring.Resolve(tt)
	if v.PenaltyNotDone != -10 || v.PenaltyPostpone != -5 {
		t.Fatalf("penalties must be <= 0: %+v", v)
	}
	if v.RewardOnDone != 10 {
		t.Fatalf("reward passes through: %+v", v)
	}
}

func TestCumulativePenalty(t *testing.T) {
	if got := scoring.CumulativePenalty(nil); got != 0 {
		t.Fatalf("empty history: got %d", got)
	}
	history := []domain.PostponeEntry{
		{PenaltyApplied: -5},
		{PenaltyApplied: -5},
		{PenaltyApplied: 0},
	}
	if got := scoring.CumulativePenalty(history); got != -10 {
		t.Fatalf("sum: got %d", got)
	}
}

func TestNetPointsFormula(t *testing.T) {
	task := domain.TaskRecord{
		PointsEarned:              10,
		CumulativePostponePenalty: -10,
	}
	if got := scoring.NetPoints(task); got != 0 {
		t.Fatalf("net points: got %d", got)
	}
}

func TestProjectionWhilePending(t *testing.T) {
	tt := &domain.TaskType{ID: "t1", Name: "work", RewardOnDone: 10, PenaltyPostpone: -5, CreatedAt: time.Now()}
	task := domain.TaskRecord{
		Status: domain.StatusPending,
		PostponeHistory: []domain.PostponeEntry{
			{PenaltyApplied: -5},
		},
	}
	if got := scoring.Projection(task, tt); got != 5 {
		t.Fatalf("projection: got %d", got)
	}
	if got := scoring.Projection(task, nil); got != -5 {
		t.Fatalf("untyped projection: got %d", got)
	}
}
