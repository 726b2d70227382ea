package timeutils

import (
	"testing"
	"time"
)

func TestAddBusinessHoursSkipsWeekend(t *testing.T) {
	// Friday 10:00 UTC + 48h lands on Sunday, which rolls to Tuesday.
	friday := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	due := AddBusinessHours(friday, 48)

	if due.Weekday() == time.Saturday || due.Weekday() == time.Sunday {
		t.Fatalf("due date landed on a weekend: %s", due)
	}
	if !due.After(friday.Add(48 * time.Hour)) {
		t.Fatalf("weekend skip should push the deadline past the raw 48h: %s", due)
	}
}

func TestAddBusinessHoursMidweek(t *testing.T) {
	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	due := AddBusinessHours(monday, 48)

	want := monday.Add(48 * time.Hour)
	if !due.Equal(want) {
		t.Fatalf("midweek deadline should be exact: got %s want %s", due, want)
	}
}

func TestLocalNowFallsBackToUTC(t *testing.T) {
	now := LocalNow("Not/AZone")
	if now.Location() != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC, got %s", now.Location())
	}
}
