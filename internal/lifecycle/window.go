package lifecycle

import (
	"errors"
	"time"

	"livebid/internal/models"
)

var (
	ErrNotStarted = errors.New("auction has not started yet")
	ErrEnded      = errors.New("auction has ended")
	ErrBadWindow  = errors.New("start time must be before end time")
)

// Started reports whether now is at or past start. A nil start counts as started.
func Started(now time.Time, start *time.Time) bool {
	return start == nil || !now.Before(*start)
}

// Ended reports whether now is at or past end.
func Ended(now, end time.Time) bool {
	return !now.Before(end)
}

// CheckOpen returns nil when now lies in [start, end).
func CheckOpen(now time.Time, start *time.Time, end time.Time) error {
	if !Started(now, start) {
		return ErrNotStarted
	}
	if Ended(now, end) {
		return ErrEnded
	}
	return nil
}

// ValidateWindow checks that a new auction has end set and start < end.
func ValidateWindow(start *time.Time, end time.Time) error {
	if end.IsZero() {
		return ErrBadWindow
	}
	if start != nil && !start.Before(end) {
		return ErrBadWindow
	}
	return nil
}

// ComputeStatus derives the status an auction should hold at now.
func ComputeStatus(now time.Time, start *time.Time, end time.Time) models.Status {
	switch {
	case Ended(now, end):
		return models.StatusCompleted
	case Started(now, start):
		return models.StatusOngoing
	default:
		return models.StatusUpcoming
	}
}

// Advance returns whichever of current and computed is further along the
// lifecycle. Status never moves backward, even when the clock appears to.
func Advance(current, computed models.Status) models.Status {
	if computed.Rank() > current.Rank() {
		return computed
	}
	return current
}
