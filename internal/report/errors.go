package report

import (
	"errors"
	"fmt"
)

// Code classifies a report failure for API clients.
type Code string

const (
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodeGenerationFailed Code = "GENERATION_FAILED"
	CodeShuttingDown     Code = "SHUTTING_DOWN"
)

var (
	// ErrInvalidKind is returned for report kinds other than daily and commodity.
	ErrInvalidKind = errors.New("invalid report kind")
	// ErrMissingCommodity is returned when a commodity report names no slug.
	ErrMissingCommodity = errors.New("commodity report requires a slug")
)

// Error is the structured failure returned by Generator.Get.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Remaining *Remaining // set for CodeQuotaExceeded
	Cause     error
}

// Remaining is what is left of a user's daily quota.
type Remaining struct {
	Reports int    `json:"reports"`
	Tokens  int    `json:"tokens"`
	Resets  string `json:"resets"` // day key of the next period
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("report: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("report: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var re *Error
	ok := errors.As(err, &re)
	return re, ok
}
