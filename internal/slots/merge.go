package slots

import (
	"cmp"
	"slices"
)

// Validate checks every busy interval before any work is done.
//
// Start must lie in [0, 1440) and End in [0, 1440]; End == 1440 means the
// booking runs until midnight. An interval whose End precedes its Start is
// rejected rather than swapped or wrapped past midnight.
func Validate(persons []Person) error {
	for _, p := range persons {
		for i, iv := range p.Busy {
			if err := validateInterval(iv); err != nil {
				return &IntervalError{PersonID: p.ID, Index: i, Interval: iv, Err: err}
			}
		}
	}
	return nil
}

func validateInterval(iv Interval) error {
	if iv.Start < 0 || iv.Start >= MinutesPerDay {
		return ErrOutOfRangeTime
	}
	if iv.End < 0 || iv.End > MinutesPerDay {
		return ErrOutOfRangeTime
	}
	if iv.End < iv.Start {
		return ErrMalformedInterval
	}
	return nil
}

// Collect flattens every person's busy list into one new slice of copies.
// Zero-length intervals cover no time and are left out, so they never split
// a gap: a day whose only booking is [600,600) is free for a 1440-minute
// meeting.
func Collect(persons []Person) []Interval {
	n := 0
	for _, p := range persons {
		n += len(p.Busy)
	}

	out := make([]Interval, 0, n)
	for _, p := range persons {
		for _, iv := range p.Busy {
			if iv.Len() == 0 {
				continue
			}
			out = append(out, iv)
		}
	}
	return out
}

// Merge sorts intervals by start (then end) and coalesces overlapping or
// touching intervals. The result is sorted and strictly disjoint:
// out[i].End < out[i+1].Start. The input slice is not modified.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})

	out := make([]Interval, 0, len(sorted))
	for _, iv := range sorted {
		last := len(out) - 1
		// Touching intervals (iv.Start == last End) merge; only a strict gap
		// starts a new block.
		if last < 0 || out[last].End < iv.Start {
			out = append(out, iv)
			continue
		}
		out[last].End = max(out[last].End, iv.End)
	}
	return out
}
