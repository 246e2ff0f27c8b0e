package timezone

import "time"

// snapshot dates are UTC calendar dates; pinning the location here keeps
// the daily batch and the trend cutoff math on the same calendar no matter
// where the host happens to run
var Location = time.UTC

func Now() time.Time {
	return time.Now().In(Location)
}

// Date formats a moment as the calendar-date string used as the snapshot
// row key ("2006-01-02").
func Date(t time.Time) string {
	return t.In(Location).Format(time.DateOnly)
}

// Today returns the current UTC calendar date string.
func Today() string {
	return Date(Now())
}
