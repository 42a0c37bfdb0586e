// Package history owns the append-only postpone and snooze trails and their
// persisted JSON encoding.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"dayline/internal/domain"
)

// ErrEmptyHistory is returned when popping from an empty trail. Callers must
// not offer undo when there is nothing to undo.
var ErrEmptyHistory = errors.New("history: empty")

// Reporter receives malformed-history reports. Decode failures never reach
// the state machine; the trail degrades to empty so the user is not blocked.
type Reporter interface {
	ReportDecodeFailure(taskID, field string, err error)
}

// LogReporter reports through the standard logger.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) ReportDecodeFailure(taskID, field string, err error) {
	l := r.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("history: malformed %s for task %s: %v", field, taskID, err)
}

// AppendPostpone returns a new trail with entry appended. The input slice is
// never mutated.
func AppendPostpone(trail []domain.PostponeEntry, entry domain.PostponeEntry) ([]domain.PostponeEntry, error) {
	if entry.PenaltyApplied > 0 {
		return nil, fmt.Errorf("history: postpone penalty must be <= 0, got %d", entry.PenaltyApplied)
	}
	out := make([]domain.PostponeEntry, 0, len(trail)+1)
	out = append(out, trail...)
	out = append(out, entry)
	return out, nil
}

// AppendSnooze returns a new trail with entry appended.
func AppendSnooze(trail []domain.SnoozeEntry, entry domain.SnoozeEntry) ([]domain.SnoozeEntry, error) {
	if entry.Minutes <= 0 {
		return nil, fmt.Errorf("history: snooze minutes must be > 0, got %d", entry.Minutes)
	}
	out := make([]domain.SnoozeEntry, 0, len(trail)+1)
	out = append(out, trail...)
	out = append(out, entry)
	return out, nil
}

// PopLastPostpone removes the most recent entry. Used only by undo.
func PopLastPostpone(trail []domain.PostponeEntry) (domain.PostponeEntry, []domain.PostponeEntry, error) {
	if len(trail) == 0 {
		return domain.PostponeEntry{}, nil, ErrEmptyHistory
	}
	last := trail[len(trail)-1]
	rest := make([]domain.PostponeEntry, len(trail)-1)
	copy(rest, trail[:len(trail)-1])
	return last, rest, nil
}

// EncodePostpones serializes a trail for the record's history column. An
// empty trail encodes as "[]" so the column round-trips exactly.
func EncodePostpones(trail []domain.PostponeEntry) (string, error) {
	if trail == nil {
		trail = []domain.PostponeEntry{}
	}
	b, err := json.Marshal(trail)
	if err != nil {
		return "", fmt.Errorf("history: encode postpones: %w", err)
	}
	return string(b), nil
}

// EncodeSnoozes serializes a snooze trail for persistence.
func EncodeSnoozes(trail []domain.SnoozeEntry) (string, error) {
	if trail == nil {
		trail = []domain.SnoozeEntry{}
	}
	b, err := json.Marshal(trail)
	if err != nil {
		return "", fmt.Errorf("history: encode snoozes: %w", err)
	}
	return string(b), nil
}

// DecodePostpones parses a persisted trail. Malformed data degrades to an
// empty trail and is reported; it is never an error to the caller.
func DecodePostpones(taskID, raw string, r Reporter) []domain.PostponeEntry {
	if raw == "" {
		return nil
	}
	var trail []domain.PostponeEntry
	if err := json.Unmarshal([]byte(raw), &trail); err != nil {
		report(r, taskID, "postpone_history", err)
		return nil
	}
	if len(trail) == 0 {
		return nil
	}
	return trail
}

// DecodeSnoozes parses a persisted snooze trail with the same degradation
// contract as DecodePostpones.
func DecodeSnoozes(taskID, raw string, r Reporter) []domain.SnoozeEntry {
	if raw == "" {
		return nil
	}
	var trail []domain.SnoozeEntry
	if err := json.Unmarshal([]byte(raw), &trail); err != nil {
		report(r, taskID, "snooze_history", err)
		return nil
	}
	if len(trail) == 0 {
		return nil
	}
	return trail
}

func report(r Reporter, taskID, field string, err error) {
	if r == nil {
		r = LogReporter{}
	}
	r.ReportDecodeFailure(taskID, field, err)
}
