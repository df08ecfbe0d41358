package slots

// Gaps walks merged busy blocks (sorted and disjoint, as returned by Merge)
// and returns the free intervals inside w that are at least minLength long.
//
// Busy blocks that extend past the window are clipped to it, so the gap
// list always lies within [w.Start, w.End].
func Gaps(merged []Interval, w Window, minLength int) []Interval {
	var free []Interval

	prevEnd := w.Start
	for _, b := range merged {
		if b.End <= w.Start {
			continue
		}
		if b.Start >= w.End {
			break
		}
		start := max(b.Start, w.Start)
		if int(start-prevEnd) >= minLength {
			free = append(free, Interval{Start: prevEnd, End: start})
		}
		prevEnd = max(prevEnd, min(b.End, w.End))
	}

	if int(w.End-prevEnd) >= minLength {
		free = append(free, Interval{Start: prevEnd, End: w.End})
	}
	return free
}
