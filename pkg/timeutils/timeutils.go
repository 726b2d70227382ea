package timeutils

import "time"

// LocalNow returns the current time in the named zone, falling back to
// UTC when the zone cannot be loaded.
func LocalNow(tzName string) time.Time {
	now := time.Now().UTC()
	if loc, err := time.LoadLocation(tzName); err == nil {
		now = now.In(loc)
	}
	return now
}

// AddBusinessHours walks a deadline forward hour by hour, skipping
// weekends. A due date that lands on Saturday or Sunday rolls to the
// following Monday.
func AddBusinessHours(start time.Time, hours int) time.Time {
	due := start
	remaining := time.Duration(hours) * time.Hour
	for remaining > 0 {
		step := 24 * time.Hour
		if remaining < step {
			step = remaining
		}
		due = due.Add(step)
		remaining -= step
		for due.Weekday() == time.Saturday || due.Weekday() == time.Sunday {
			due = due.Add(24 * time.Hour)
		}
	}
	return due
}
