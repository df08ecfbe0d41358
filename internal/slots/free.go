package slots

// FreeIntervals returns the free intervals of at least minLength minutes
// across the whole day, given every person's busy time.
//
// Input is validated first; on error no partial result is returned.
func FreeIntervals(persons []Person, minLength int) ([]Interval, error) {
	return FreeIntervalsIn(persons, minLength, Day)
}

// FreeIntervalsIn is FreeIntervals restricted to a sub-window of the day,
// e.g. working hours.
func FreeIntervalsIn(persons []Person, minLength int, w Window) ([]Interval, error) {
	if minLength <= 0 {
		return nil, ErrInvalidMeetingLength
	}
	if w.Start < 0 || w.End > MinutesPerDay || w.End <= w.Start {
		return nil, ErrInvalidWindow
	}
	if err := Validate(persons); err != nil {
		return nil, err
	}

	merged := Merge(Collect(persons))
	return Gaps(merged, w, minLength), nil
}
