package auctionhandler

import (
	"errors"
	"net/http"

	"livebid/internal/bidding"
	"livebid/internal/services/auction"
)

const (
	CodeValidation = "validation"
	CodeInternal   = "internal"
)

// MapErrorToHTTP turns a service error into a status code and body.
func MapErrorToHTTP(err error) (int, ErrorResponse) {
	if reason := bidding.Reason(err); reason != "" {
		return reasonStatus(reason), ErrorResponse{Error: err.Error(), Code: reason}
	}
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: bidding.ReasonNotFound}
	case errors.Is(err, auction.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal}
}

func reasonStatus(reason string) int {
	switch reason {
	case bidding.ReasonNotFound:
		return http.StatusNotFound
	case bidding.ReasonNotStarted:
		return http.StatusTooEarly
	case bidding.ReasonExpired:
		return http.StatusGone
	case bidding.ReasonTooLow:
		return http.StatusUnprocessableEntity
	case bidding.ReasonRejected:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
