package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive end of the day window in minute space.
const MinutesPerDay = 24 * 60

// TimeOfDay is a count of minutes since midnight of the reference day.
type TimeOfDay int

// Interval is a half-open range [Start, End) of minutes within one day.
// The same shape is used for busy input and free output.
type Interval struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

// Person is one participant and the intervals already booked on their calendar.
type Person struct {
	ID   int        `json:"id" yaml:"id"`
	Busy []Interval `json:"busy" yaml:"busy"`
}

// Window bounds the part of the day searched for free time.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Day is the full-day window [00:00, 24:00).
var Day = Window{Start: 0, End: MinutesPerDay}

// Len returns the length of the interval in minutes.
func (iv Interval) Len() int {
	return int(iv.End - iv.Start)
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// String formats the offset as HH:MM. The end of day is rendered as 24:00.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the offset to the calendar day of ref, in ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return midnight.Add(time.Duration(t) * time.Minute)
}

// MinutesSinceMidnight truncates t to whole minutes past its own midnight.
func MinutesSinceMidnight(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as the end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q: %w", s, ErrOutOfRangeTime)
	}
	return TimeOfDay(h*60 + m), nil
}

// ParseInterval parses "HH:MM-HH:MM". It does not check ordering; Validate does.
func ParseInterval(s string) (Interval, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Interval{}, fmt.Errorf("interval %q: expected HH:MM-HH:MM", s)
	}
	start, err := ParseTimeOfDay(a)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseTimeOfDay(b)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}
