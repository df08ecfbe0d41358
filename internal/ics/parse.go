package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "freeslots/internal/log"
)

// Event is a VEVENT reduced to the fields that matter for busy time.
// Recurrences are kept unexpanded; see Expand.
type Event struct {
	Source Source

	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	Transparent bool
	Cancelled   bool

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set only on overrides
}

// IsOverride reports whether the event replaces one instance of a recurring series.
func (e Event) IsOverride() bool {
	return e.Recurrence != nil
}

// ParseICS parses one calendar payload. Events that cannot be parsed are
// logged and skipped; the rest are returned.
func ParseICS(src Source, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "person", src.PersonID, "event_count", len(events))
	return events, nil
}

func parseEvent(src Source, ve *ical.VEvent) (Event, error) {
	ev := Event{Source: src}

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("event %s: missing DTSTART", uid)
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", uid, err)
	}
	ev.Start = start
	ev.AllDay = isDateValue(dtStart)

	if end, err := ve.GetEndAt(); err == nil && ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		ev.End = end
	} else if raw := propValue(ve, "DURATION"); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return ev, fmt.Errorf("event %s: %w", uid, err)
		}
		ev.End = ev.Start.Add(d)
	} else if ev.AllDay {
		ev.End = ev.Start.AddDate(0, 0, 1)
	} else {
		ev.End = ev.Start
	}
	if ev.End.Before(ev.Start) {
		return ev, fmt.Errorf("event %s: DTEND before DTSTART", uid)
	}

	ev.Transparent = strings.EqualFold(propValue(ve, "TRANSP"), "TRANSPARENT")
	ev.Cancelled = strings.EqualFold(propValue(ve, "STATUS"), "CANCELLED")
	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzid(p, start.Location())); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, tzid(p, start.Location())); err == nil {
			ev.Recurrence = &t
		}
	}

	return ev, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	p := ve.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// isDateValue detects DATE (all-day) values: VALUE=DATE or no time part.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// tzid resolves the TZID parameter of p, falling back to def.
func tzid(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// parseDuration parses the RFC 5545 DURATION subset used by calendar
// servers: [+|-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("duration %q: negative durations are not supported", v)
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("duration %q: invalid", v)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("duration %q: invalid", v)
		}
		n, _ := strconv.Atoi(num)
		num = ""
		unit := time.Duration(n)
		switch {
		case r == 'W' && !inTime:
			d += unit * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			d += unit * 24 * time.Hour
		case r == 'H' && inTime:
			d += unit * time.Hour
		case r == 'M' && inTime:
			d += unit * time.Minute
		case r == 'S' && inTime:
			d += unit * time.Second
		default:
			return 0, fmt.Errorf("duration %q: unexpected %q", v, r)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("duration %q: trailing number", v)
	}
	return d, nil
}
