package present

import (
	"time"

	"freeslots/internal/slots"
)

// Slot is the JSON view of one free interval anchored to a calendar day.
// Minutes are elapsed from the day's midnight; Start and End are clamped to
// the next calendar midnight, so on a 23-hour DST day a slot ending at
// minute 1440 still ends at midnight.
type Slot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Minutes     int       `json:"minutes"`
	Label       string    `json:"label"`
}

// Format renders an interval as local clock times, e.g. "9:00 AM - 10:30 AM".
// An interval running to the end of the day reads "... - Midnight".
func Format(iv slots.Interval, day time.Time) string {
	const layout = "3:04 PM"
	end := "Midnight"
	if iv.End < slots.MinutesPerDay {
		end = clampOn(iv.End, day).Format(layout)
	}
	return clampOn(iv.Start, day).Format(layout) + " - " + end
}

// clampOn anchors t to day, never past the following calendar midnight.
func clampOn(t slots.TimeOfDay, day time.Time) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
	if at := t.On(day); at.Before(midnight) {
		return at
	}
	return midnight
}

// Slots converts free intervals into DTOs. It never returns nil so the
// JSON form is always an array.
func Slots(free []slots.Interval, day time.Time) []Slot {
	out := make([]Slot, 0, len(free))
	for _, iv := range free {
		out = append(out, Slot{
			Start:       clampOn(iv.Start, day),
			End:         clampOn(iv.End, day),
			StartMinute: int(iv.Start),
			EndMinute:   int(iv.End),
			Minutes:     iv.Len(),
			Label:       Format(iv, day),
		})
	}
	return out
}
