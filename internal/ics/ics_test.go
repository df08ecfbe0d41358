package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"freeslots/internal/ingest"
	"freeslots/internal/slots"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//freeslots//test//EN
BEGIN:VEVENT
UID:standup
SUMMARY:Standup
DTSTART:20261014T090000Z
DTEND:20261014T103000Z
END:VEVENT
BEGIN:VEVENT
UID:focus
SUMMARY:Focus time
DTSTART:20261014T130000Z
DTEND:20261014T150000Z
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
UID:dropped
DTSTART:20261014T160000Z
DTEND:20261014T170000Z
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:review
DTSTART:20261014T170000Z
DURATION:PT45M
END:VEVENT
BEGIN:VEVENT
SUMMARY:no uid
DTSTART:20261014T180000Z
DTEND:20261014T190000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseICS(t *testing.T) {
	src := Source{ID: "work", URL: "https://cal.example.com/a.ics", PersonID: 3}
	events, err := ParseICS(src, crlf(sampleICS))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events (one without UID skipped), got %d", len(events))
	}

	byUID := make(map[string]Event)
	for _, ev := range events {
		byUID[ev.UID] = ev
	}

	standup := byUID["standup"]
	if standup.Source.PersonID != 3 || standup.Summary != "Standup" {
		t.Fatalf("unexpected standup: %+v", standup)
	}
	if want := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC); !standup.Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, standup.Start)
	}
	if standup.End.Sub(standup.Start) != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", standup.End.Sub(standup.Start))
	}
	if !byUID["focus"].Transparent {
		t.Fatalf("expected focus to be transparent")
	}
	if !byUID["dropped"].Cancelled {
		t.Fatalf("expected dropped to be cancelled")
	}
	if d := byUID["review"].End.Sub(byUID["review"].Start); d != 45*time.Minute {
		t.Fatalf("expected DURATION 45m, got %s", d)
	}
}

func TestParseICS_Empty(t *testing.T) {
	if _, err := ParseICS(Source{ID: "x"}, nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT1H":      time.Hour,
		"PT1H30M":   90 * time.Minute,
		"P1D":       24 * time.Hour,
		"P1W":       7 * 24 * time.Hour,
		"P1DT2H":    26 * time.Hour,
		"+PT15M":    15 * time.Minute,
		"PT10M30S":  10*time.Minute + 30*time.Second,
		" pt5m ":    5 * time.Minute,
		"P0D":       0,
		"PT0H0M20S": 20 * time.Second,
	}
	for in, want := range cases {
		got, err := parseDuration(in)
		if err != nil {
			t.Errorf("parseDuration(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseDuration(%q) = %s, want %s", in, got, want)
		}
	}

	for _, bad := range []string{"", "P", "1H", "PT", "PTH", "P1H", "-PT1H", "PT1X", "PT5"} {
		if _, err := parseDuration(bad); err == nil {
			t.Errorf("parseDuration(%q): expected error", bad)
		}
	}
}

func TestExpand_Recurring(t *testing.T) {
	src := Source{ID: "team", PersonID: 1}
	at := func(day, hour int) time.Time {
		return time.Date(2026, 10, day, hour, 0, 0, 0, time.UTC)
	}
	moved := at(12, 9)

	events := []Event{
		{
			Source:  src,
			UID:     "weekly",
			Start:   at(5, 9),
			End:     at(5, 10),
			RRule:   "FREQ=WEEKLY;COUNT=4",
			ExDates: []time.Time{at(19, 9)},
		},
		{
			Source:     src,
			UID:        "weekly",
			Start:      at(12, 14),
			End:        at(12, 15),
			Recurrence: &moved,
		},
		{Source: src, UID: "once", Start: at(30, 8), End: at(30, 9)},
		{Source: src, UID: "outside", Start: at(2, 8), End: at(2, 9)},
	}

	occs, err := Expand(events, ExpandConfig{
		Location:   time.UTC,
		RangeStart: at(3, 0),
		RangeEnd:   time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []time.Time{at(5, 9), at(12, 14), at(26, 9), at(30, 8)}
	if len(occs) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %+v", len(want), len(occs), occs)
	}
	for i, w := range want {
		if !occs[i].Start.Equal(w) {
			t.Fatalf("occurrence %d: expected %s, got %s", i, w, occs[i].Start)
		}
		if occs[i].PersonID != 1 {
			t.Fatalf("occurrence %d lost its person", i)
		}
	}
	if occs[1].End.Sub(occs[1].Start) != time.Hour {
		t.Fatalf("override should keep its own end")
	}
}

func TestExpand_RunningIntoRange(t *testing.T) {
	events := []Event{{
		UID:   "night",
		Start: time.Date(2026, 10, 13, 23, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 14, 2, 0, 0, 0, time.UTC),
		RRule: "FREQ=DAILY;COUNT=2",
	}}
	occs, err := Expand(events, ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("expected the overnight instance and the same-day one, got %d", len(occs))
	}
}

const allDayICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//freeslots//test//EN
BEGIN:VEVENT
UID:offsite
DTSTART;VALUE=DATE:20261014
DTEND;VALUE=DATE:20261015
END:VEVENT
BEGIN:VEVENT
UID:leave
DTSTART;VALUE=DATE:20261020
DTEND;VALUE=DATE:20261021
RRULE:FREQ=DAILY;COUNT=3
EXDATE;VALUE=DATE:20261021
END:VEVENT
END:VCALENDAR
`

func TestAllDayEvents_StayOnTheirDate(t *testing.T) {
	events, err := ParseICS(Source{ID: "hr", PersonID: 1}, crlf(allDayICS))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zones := []*time.Location{
		time.UTC,
		time.FixedZone("EDT", -4*60*60),
		time.FixedZone("KST", 9*60*60),
	}
	// Days blocked in full; every other day must stay untouched.
	busyDays := map[int]bool{14: true, 20: true, 22: true}

	for _, loc := range zones {
		for day := 13; day <= 23; day++ {
			dayStart, dayEnd := ingest.DayRange(time.Date(2026, 10, day, 12, 0, 0, 0, loc), loc)
			occs, err := Expand(events, ExpandConfig{Location: loc, RangeStart: dayStart, RangeEnd: dayEnd})
			if err != nil {
				t.Fatalf("%s 10/%d: unexpected error: %v", loc, day, err)
			}

			var blocked []slots.Interval
			for _, o := range occs {
				if iv, ok := ingest.Clip(o, dayStart, dayEnd); ok {
					blocked = append(blocked, iv)
				}
			}

			if !busyDays[day] {
				if len(blocked) != 0 {
					t.Fatalf("%s 10/%d: expected a free day, got %v", loc, day, blocked)
				}
				continue
			}
			if len(blocked) != 1 || blocked[0] != (slots.Interval{Start: 0, End: slots.MinutesPerDay}) {
				t.Fatalf("%s 10/%d: expected the whole day blocked, got %v", loc, day, blocked)
			}
		}
	}
}

func TestExpand_EmptyRange(t *testing.T) {
	now := time.Now()
	if _, err := Expand(nil, ExpandConfig{RangeStart: now, RangeEnd: now}); err == nil {
		t.Fatalf("expected error for empty range")
	}
}

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var failing atomic.Bool
	var notModified atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	src := Source{ID: "a", URL: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	res, err := f.Fetch(ctx, src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if res.FromCache || len(res.Body) == 0 {
		t.Fatalf("expected fresh body")
	}

	res, err = f.Fetch(ctx, src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !res.FromCache || notModified.Load() != 1 {
		t.Fatalf("expected 304 revalidation served from cache")
	}

	failing.Store(true)
	res, err = f.Fetch(ctx, src)
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if !res.FromCache {
		t.Fatalf("expected FromCache on server error")
	}

	results, errs := f.FetchAll(ctx, []Source{src, {ID: "empty"}})
	if len(results) != 1 || len(errs) != 1 {
		t.Fatalf("expected 1 result and 1 error, got %d and %d", len(results), len(errs))
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://calendar.example.com/private/abc.ics?token=s3cr3t")
	if got != "https://calendar.example.com/...(redacted)" {
		t.Fatalf("unexpected redaction: %s", got)
	}
	if redactURL("not a url") != "ics://...(redacted)" {
		t.Fatalf("expected generic redaction")
	}
}

func TestSaveCache_ReplacesFiles(t *testing.T) {
	dir := t.TempDir()
	meta := feedMeta{URL: "https://cal.example.com/a.ics", ETag: `"v1"`}

	if err := saveCache(dir, meta, []byte("first")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	meta.ETag = `"v2"`
	if err := saveCache(dir, meta, []byte("second")); err != nil {
		t.Fatalf("second save: %v", err)
	}

	body, err := os.ReadFile(filepath.Join(dir, "body.ics"))
	if err != nil || string(body) != "second" {
		t.Fatalf("expected the latest body, got %q (%v)", body, err)
	}
	got, err := loadMeta(dir)
	if err != nil || got.ETag != `"v2"` {
		t.Fatalf("expected the latest meta, got %+v (%v)", got, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only body.ics and meta.json, got %v", names)
	}
}

func TestFetch_ConcurrentReadersSeeWholeBodies(t *testing.T) {
	var version atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := version.Add(1)
		_, _ = w.Write(bytes.Repeat([]byte{byte('a' + v%2)}, 64<<10))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 5*time.Second)
	src := Source{ID: "shared", URL: srv.URL + "/feed.ics"}
	dir := f.cacheDirFor(src.URL)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				if _, err := f.Fetch(context.Background(), src); err != nil {
					t.Errorf("fetch: %v", err)
					return
				}
				if body, err := os.ReadFile(filepath.Join(dir, "body.ics")); err == nil && len(body) != 64<<10 {
					t.Errorf("read a partial cache body of %d bytes", len(body))
					return
				}
			}
		}()
	}
	wg.Wait()
}
