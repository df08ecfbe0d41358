package slots

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("09:00-10:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv != (Interval{540, 630}) {
		t.Fatalf("expected 540-630, got %v", iv)
	}

	iv, err = ParseInterval(" 23:00 - 24:00 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv != (Interval{1380, 1440}) {
		t.Fatalf("expected 1380-1440, got %v", iv)
	}

	for _, bad := range []string{"0900-1000", "09:00", "25:00-26:00", "09:60-10:00", "24:30-24:45", "aa:00-10:00"} {
		if _, err := ParseInterval(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, err := ParseTimeOfDay("24:01"); !errors.Is(err, ErrOutOfRangeTime) {
		t.Fatalf("expected ErrOutOfRangeTime, got %v", err)
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	ref := time.Date(2026, 10, 14, 17, 45, 12, 0, loc)

	got := TimeOfDay(630).On(ref)
	want := time.Date(2026, 10, 14, 10, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format(time.RFC3339), got.Format(time.RFC3339))
	}

	midnight := TimeOfDay(MinutesPerDay).On(ref)
	if !midnight.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, loc)) {
		t.Fatalf("expected next midnight, got %s", midnight.Format(time.RFC3339))
	}

	if m := MinutesSinceMidnight(ref); m != 17*60+45 {
		t.Fatalf("expected %d, got %d", 17*60+45, m)
	}
	if s := TimeOfDay(545).String(); s != "09:05" {
		t.Fatalf("expected 09:05, got %s", s)
	}
}
