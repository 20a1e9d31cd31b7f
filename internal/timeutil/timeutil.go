// Package timeutil pins all trading-time arithmetic to the KRX session zone.
package timeutil

import (
	"fmt"
	"time"
)

// KST is the fixed Korean trading timezone. The whole system assumes a
// single local zone; daily budgets and day keys are derived from it.
var KST = time.FixedZone("KST", 9*60*60)

// NowKST returns the current time in KST.
func NowKST() time.Time {
	return time.Now().In(KST)
}

// DayKey returns the calendar-date key used for daily order budgets.
func DayKey(t time.Time) string {
	return t.In(KST).Format("2006-01-02")
}

// ISO formats a timestamp the way persisted rows store it.
func ISO(t time.Time) string {
	return t.In(KST).Format("2006-01-02T15:04:05+09:00")
}

// krxHolidays lists KRX full-day closures beyond weekends, keyed by
// DayKey. Lunar-calendar dates must be refreshed each year.
var krxHolidays = map[string]bool{
	"2025-01-01": true, "2025-01-28": true, "2025-01-29": true, "2025-01-30": true,
	"2025-03-03": true, "2025-05-01": true, "2025-05-05": true, "2025-05-06": true,
	"2025-06-06": true, "2025-08-15": true, "2025-10-03": true, "2025-10-06": true,
	"2025-10-07": true, "2025-10-08": true, "2025-10-09": true, "2025-12-25": true,
	"2025-12-31": true,
	"2026-01-01": true, "2026-02-16": true, "2026-02-17": true, "2026-02-18": true,
	"2026-03-02": true, "2026-05-01": true, "2026-05-05": true, "2026-05-25": true,
	"2026-08-17": true, "2026-09-24": true, "2026-09-25": true, "2026-10-05": true,
	"2026-10-09": true, "2026-12-25": true, "2026-12-31": true,
}

// IsOpenDay reports whether the KRX holds a session on t's KST date.
func IsOpenDay(t time.Time) bool {
	local := t.In(KST)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !krxHolidays[DayKey(local)]
}

// WithinWindow reports whether now's KST wall clock falls inside the
// inclusive [start, end] window, each given as "HH:MM".
func WithinWindow(now time.Time, startHM, endHM string) (bool, error) {
	start, err := parseHM(startHM)
	if err != nil {
		return false, err
	}
	end, err := parseHM(endHM)
	if err != nil {
		return false, err
	}
	local := now.In(KST)
	current := local.Hour()*60 + local.Minute()
	return start <= current && current <= end, nil
}

func parseHM(hm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("timeutil: bad window %q: %w", hm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("timeutil: bad window %q", hm)
	}
	return h*60 + m, nil
}
