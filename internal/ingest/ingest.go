// Package ingest converts calendar data with full timestamps into the
// minute-offset busy lists the slot computation works on. Every input of
// one call is interpreted against a single day in a single location.
package ingest

import (
	"time"

	"freeslots/internal/model"
	"freeslots/internal/slots"
)

// Member is one person as known to the ingestion step: fixed daily
// bookings plus calendar occurrences from any source.
type Member struct {
	ID          int
	Busy        []slots.Interval
	Occurrences []model.Occurrence
}

type instance struct {
	uid, key string
}

// DayRange returns [midnight, next midnight) for date's calendar day in loc.
// On DST transition days the range is 23 or 25 hours long.
func DayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}

// Clip maps an occurrence onto the day [dayStart, dayEnd). It reports false
// when the occurrence does not block any time on that day.
//
// Timestamps are measured as elapsed minutes from dayStart, so a DST day
// keeps intervals ordered; anything beyond the 1440-minute model is clipped.
// Partial minutes are widened: a booking ending 10:00:30 blocks until 10:01.
func Clip(o model.Occurrence, dayStart, dayEnd time.Time) (slots.Interval, bool) {
	if !o.Blocks() {
		return slots.Interval{}, false
	}
	if !o.Start.Before(dayEnd) || !o.End.After(dayStart) {
		return slots.Interval{}, false
	}
	if o.AllDay {
		return slots.Interval{Start: 0, End: slots.MinutesPerDay}, true
	}

	start := slots.TimeOfDay(0)
	if o.Start.After(dayStart) {
		start = slots.TimeOfDay(o.Start.Sub(dayStart) / time.Minute)
	}
	end := slots.TimeOfDay(slots.MinutesPerDay)
	if o.End.Before(dayEnd) {
		elapsed := o.End.Sub(dayStart)
		end = slots.TimeOfDay(elapsed / time.Minute)
		if elapsed%time.Minute != 0 {
			end++
		}
	}

	start = min(start, slots.MinutesPerDay-1)
	end = min(end, slots.MinutesPerDay)
	if end <= start {
		return slots.Interval{}, false
	}
	return slots.Interval{Start: start, End: end}, true
}

// Persons builds the slot input for one day. Member order is preserved;
// fixed bookings come first, then clipped occurrences. Occurrences sharing
// a UID and InstanceKey are counted once. Member busy lists are copied,
// never shared.
func Persons(members []Member, date time.Time, loc *time.Location) []slots.Person {
	dayStart, dayEnd := DayRange(date, loc)

	out := make([]slots.Person, 0, len(members))
	for _, m := range members {
		p := slots.Person{
			ID:   m.ID,
			Busy: make([]slots.Interval, 0, len(m.Busy)+len(m.Occurrences)),
		}
		p.Busy = append(p.Busy, m.Busy...)
		seen := make(map[instance]bool, len(m.Occurrences))
		for _, o := range m.Occurrences {
			if o.UID != "" {
				k := instance{uid: o.UID, key: o.InstanceKey}
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			if iv, ok := Clip(o, dayStart, dayEnd); ok {
				p.Busy = append(p.Busy, iv)
			}
		}
		out = append(out, p)
	}
	return out
}
