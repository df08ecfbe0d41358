package slots

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMeetingLength = errors.New("meeting length must be positive")
	ErrMalformedInterval    = errors.New("interval ends before it starts")
	ErrOutOfRangeTime       = errors.New("time of day out of range")
	ErrInvalidWindow        = errors.New("invalid day window")
)

// IntervalError reports which input interval failed validation.
// Err is ErrMalformedInterval or ErrOutOfRangeTime.
type IntervalError struct {
	PersonID int
	Index    int
	Interval Interval
	Err      error
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("person %d busy[%d] %d-%d: %v", e.PersonID, e.Index, e.Interval.Start, e.Interval.End, e.Err)
}

func (e *IntervalError) Unwrap() error {
	return e.Err
}
