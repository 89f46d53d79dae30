package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTimestamp means the when-line carried no usable UTC time. The
	// report cannot be keyed and is discarded.
	ErrNoTimestamp = errors.New("report has no parsable observation time")

	// ErrEmptyReport means the report is missing its locale or when-line.
	ErrEmptyReport = errors.New("report has fewer than two lines")
)

// FormatViolationError reports a section whose shape contradicts the
// expected grammar, e.g. a hemisphere letter outside N/S/E/W.
type FormatViolationError struct {
	Field string
	Value string
}

func (e *FormatViolationError) Error() string {
	return fmt.Sprintf("format violation in %s: %q", e.Field, e.Value)
}

// UnavailableReason classifies why a station feed could not be retrieved.
type UnavailableReason string

const (
	ReasonForbidden UnavailableReason = "forbidden"
	ReasonNotFound  UnavailableReason = "not-found"
	ReasonTimeout   UnavailableReason = "timeout"
)

// UnavailableError is returned by fetchers when a station feed is blocked,
// missing or did not answer in time. Ingestion skips such stations.
type UnavailableError struct {
	Station string
	Reason  UnavailableReason
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("station %s unavailable (%s): %v", e.Station, e.Reason, e.Err)
	}
	return fmt.Sprintf("station %s unavailable (%s)", e.Station, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) an UnavailableError and
// returns its reason.
func IsUnavailable(err error) (UnavailableReason, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	return "", false
}
