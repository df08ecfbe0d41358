package ics

import (
	"errors"
	"math"
	"time"

	"github.com/teambition/rrule-go"

	appLog "freeslots/internal/log"
	"freeslots/internal/model"
)

const defaultMaxOccurrences = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location all occurrences are converted to. Nil means time.Local.
	Location *time.Location

	// Occurrences overlapping the half-open range [RangeStart, RangeEnd) are kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences caps expansion per event. Zero means defaultMaxOccurrences.
	MaxOccurrences int
}

// Expand turns parsed events into concrete occurrences within the range.
// RRULE, EXDATE and RECURRENCE-ID overrides are honored. Events whose
// RRULE cannot be parsed are logged and contribute only their first instance.
func Expand(events []Event, cfg ExpandConfig) ([]model.Occurrence, error) {
	if !cfg.RangeEnd.After(cfg.RangeStart) {
		return nil, errors.New("expand: empty range")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	bases := make([]Event, 0, len(events))
	overrides := make(map[string][]Event)
	for _, ev := range events {
		if ev.AllDay {
			ev = floatAllDay(ev, cfg.Location)
		}
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]model.Occurrence, 0)
	for _, ev := range bases {
		ov := overrides[ev.UID]
		if ev.RRule == "" {
			if o, ok := overrideFor(ov, ev.Start); ok {
				ev = withBase(o, ev)
			}
			if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
				out = append(out, occurrence(ev, ev.Start, ev.End, cfg.Location))
			}
			continue
		}
		out = append(out, expandRecurring(ev, ov, cfg)...)
	}

	// Overrides whose series is not in this feed still block time.
	for uid, ovs := range overrides {
		for _, o := range ovs {
			if hasBase(bases, uid) {
				continue
			}
			if overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
				out = append(out, occurrence(o, o.Start, o.End, cfg.Location))
			}
		}
	}

	return out, nil
}

func expandRecurring(ev Event, overrides []Event, cfg ExpandConfig) []model.Occurrence {
	out := make([]model.Occurrence, 0)

	r, err := buildRule(ev)
	if err != nil {
		appLog.Error("expand: bad RRULE, using first instance only", err, "uid", ev.UID, "summary", ev.Summary, "rrule", ev.RRule)
		if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			out = append(out, occurrence(ev, ev.Start, ev.End, cfg.Location))
		}
		return out
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	// Instances that started before the range but are still running count too.
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)
	if len(starts) > cfg.MaxOccurrences {
		appLog.Warn("expand: occurrence cap reached", "uid", ev.UID, "cap", cfg.MaxOccurrences)
		starts = starts[:cfg.MaxOccurrences]
	}

	for _, s := range starts {
		inst := ev
		start, end := s, s.Add(dur)
		if ev.AllDay {
			start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			end = start.AddDate(0, 0, max(1, int(math.Round(dur.Hours()/24))))
		}
		if o, ok := overrideFor(overrides, s); ok {
			inst = withBase(o, ev)
			start, end = o.Start, o.End
		}
		if overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			out = append(out, occurrence(inst, start, end, cfg.Location))
		}
	}
	return out
}

// floatAllDay pins a DATE-valued event to calendar midnights in loc.
// DATE values carry no zone and parse as UTC midnight; converting that
// instant would shift the event into a neighbouring day.
func floatAllDay(ev Event, loc *time.Location) Event {
	ev.Start = floatDate(ev.Start, loc)
	ev.End = floatDate(ev.End, loc)
	if len(ev.ExDates) > 0 {
		ex := make([]time.Time, 0, len(ev.ExDates))
		for _, t := range ev.ExDates {
			ex = append(ex, floatDate(t, loc))
		}
		ev.ExDates = ex
	}
	if ev.Recurrence != nil {
		r := floatDate(*ev.Recurrence, loc)
		ev.Recurrence = &r
	}
	return ev
}

func floatDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// buildRule anchors the RRULE at the event's DTSTART.
func buildRule(ev Event) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(ev.RRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = ev.Start
	return rrule.NewRRule(*opt)
}

// overrideFor finds the override whose RECURRENCE-ID equals start.
func overrideFor(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

// withBase keeps the series identity on an override instance.
func withBase(o, base Event) Event {
	o.Source = base.Source
	o.UID = base.UID
	return o
}

func hasBase(bases []Event, uid string) bool {
	for _, b := range bases {
		if b.UID == uid {
			return true
		}
	}
	return false
}

func occurrence(ev Event, start, end time.Time, loc *time.Location) model.Occurrence {
	start = start.In(loc)
	end = end.In(loc)
	return model.Occurrence{
		PersonID:    ev.Source.PersonID,
		UID:         ev.UID,
		InstanceKey: start.Format(time.RFC3339),
		AllDay:      ev.AllDay,
		Transparent: ev.Transparent,
		Cancelled:   ev.Cancelled,
		Start:       start,
		End:         end,
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
// A zero-length a at bStart counts as inside.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
