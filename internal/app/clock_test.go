package app

import (
	"testing"
	"time"
)

func TestDeadlineFromTwelveHourLabels(t *testing.T) {
	clock, err := NewRegionClock("+05:30")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}

	cases := []struct {
		date  string
		label string
		hour  int
		min   int
	}{
		{"2026-03-14", "02:45 PM", 14, 45},
		{"2026-03-14", "12:05 PM", 12, 5},
		{"2026-03-14", "12:05 AM", 0, 5},
		{"2026-03-14", "9 AM", 9, 0},
		{"2026/03/14", "11:59 PM", 23, 59},
		{"14-03-2026", "01:00 AM", 1, 0},
	}
	for _, tc := range cases {
		deadline, err := clock.DeadlineFrom(tc.date, tc.label)
		if err != nil {
			t.Fatalf("DeadlineFrom(%q, %q): %v", tc.date, tc.label, err)
		}
		if deadline.Hour() != tc.hour || deadline.Minute() != tc.min {
			t.Fatalf("DeadlineFrom(%q, %q) = %v, want %02d:%02d", tc.date, tc.label, deadline, tc.hour, tc.min)
		}
		if deadline.Year() != 2026 || deadline.Month() != time.March || deadline.Day() != 14 {
			t.Fatalf("DeadlineFrom(%q, %q) date = %v", tc.date, tc.label, deadline)
		}
	}
}

func TestDeadlineFromIgnoresDeviceTimezone(t *testing.T) {
	clock, err := NewRegionClock("+05:30")
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	deadline, err := clock.DeadlineFrom("2026-03-14", "12:05 PM")
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}
	utc := deadline.UTC()
	// 12:05 at +05:30 is 06:35 UTC.
	if utc.Hour() != 6 || utc.Minute() != 35 {
		t.Fatalf("expected 06:35 UTC, got %v", utc)
	}
}

func TestDeadlineFromRejectsMalformedInput(t *testing.T) {
	clock, _ := NewRegionClock("+00:00")
	for _, tc := range []struct{ date, label string }{
		{"2026-03", "02:45 PM"},
		{"2026-13-01", "02:45 PM"},
		{"2026-03-14", "02:45"},
		{"2026-03-14", "13:00 PM"},
		{"2026-03-14", "07:61 AM"},
	} {
		if _, err := clock.DeadlineFrom(tc.date, tc.label); err == nil {
			t.Fatalf("expected error for (%q, %q)", tc.date, tc.label)
		}
	}
}

func TestRemainingClampsAtZero(t *testing.T) {
	deadline := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if got := Remaining(deadline.Add(-time.Minute), deadline); got != time.Minute {
		t.Fatalf("expected one minute remaining, got %v", got)
	}
	if got := Remaining(deadline, deadline); got != 0 {
		t.Fatalf("expected zero at deadline, got %v", got)
	}
	if got := Remaining(deadline.Add(time.Hour), deadline); got != 0 {
		t.Fatalf("expected zero past deadline, got %v", got)
	}
}

func TestNewRegionClockRejectsBadOffsets(t *testing.T) {
	for _, offset := range []string{"", "0530", "+25:00", "+05:75"} {
		if _, err := NewRegionClock(offset); err == nil {
			t.Fatalf("expected error for offset %q", offset)
		}
	}
}
