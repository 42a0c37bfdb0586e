// Package scoring resolves task types into point values and sums postpone
// penalties. Everything here is a pure function over in-memory values.
package scoring

import "dayline/internal/domain"

// DefaultPenaltyPostpone applies to tasks without a task type: they earn no
// points on completion but are still lightly penalized for postponing.
const DefaultPenaltyPostpone = -5

// Values are the resolved point magnitudes for a task. Penalties are
// guaranteed to be <= 0.
type Values struct {
	RewardOnDone    int
	PenaltyNotDone  int
	PenaltyPostpone int
}

// Resolve returns the point values for an optional task type. Positive
// penalties in stored config are treated as magnitudes and negated.
func Resolve(tt *domain.TaskType) Values {
	if tt == nil {
		return Values{RewardOnDone: 0, PenaltyNotDone: 0, PenaltyPostpone: DefaultPenaltyPostpone}
	}
	return Values{
		RewardOnDone:    tt.RewardOnDone,
		PenaltyNotDone:  coercePenalty(tt.PenaltyNotDone),
		PenaltyPostpone: coercePenalty(tt.PenaltyPostpone),
	}
}

func coercePenalty(v int) int {
	if v > 0 {
		return -v
	}
	return v
}

// CumulativePenalty sums the applied penalties over a postpone history.
// Returns 0 for empty history.
func CumulativePenalty(history []domain.PostponeEntry) int {
	sum := 0
	for _, e := range history {
		sum += e.PenaltyApplied
	}
	return sum
}

// NetPoints is the resolved reward minus accumulated postpone penalties.
func NetPoints(t domain.TaskRecord) int {
	return t.PointsEarned + t.CumulativePostponePenalty
}

// Projection is the "what would I earn if I finish now" figure shown while a
// task is still open.
func Projection(t domain.TaskRecord, tt *domain.TaskType) int {
	return Resolve(tt).RewardOnDone + CumulativePenalty(t.PostponeHistory)
}
