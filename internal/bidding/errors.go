package bidding

import "errors"

// Rejections. Every one is terminal for the attempt.
var (
	ErrNotFound   = errors.New("auction not found")
	ErrNotStarted = errors.New("auction hasn't started yet")
	ErrExpired    = errors.New("auction expired")
	ErrTooLow     = errors.New("bid too low")
	ErrRejected   = errors.New("bid rejected")
	ErrInvalidBid = errors.New("invalid bid")
)

// Stable reason codes for client feedback.
const (
	ReasonNotFound   = "not_found"
	ReasonNotStarted = "not_started"
	ReasonExpired    = "expired"
	ReasonTooLow     = "too_low"
	ReasonRejected   = "rejected"
	ReasonInvalidBid = "invalid_bid"
)

// Reason returns the reason code of a rejection, or "" for any other error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrNotStarted):
		return ReasonNotStarted
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrTooLow):
		return ReasonTooLow
	case errors.Is(err, ErrRejected):
		return ReasonRejected
	case errors.Is(err, ErrInvalidBid):
		return ReasonInvalidBid
	default:
		return ""
	}
}

// IsRejection reports whether err is one of the bid rejections above.
func IsRejection(err error) bool { return Reason(err) != "" }
