package hours

import (
	"strconv"
	"strings"
	"time"

	"seatrelay/internal/models"
	"seatrelay/internal/timeutil"
)

var weekdayCodes = map[string]time.Weekday{
	"su": time.Sunday,
	"mo": time.Monday,
	"tu": time.Tuesday,
	"we": time.Wednesday,
	"th": time.Thursday,
	"fr": time.Friday,
	"sa": time.Saturday,
}

// IsOpen reports whether the merchant is open at the given unix timestamp
// under the weekly schedule in specs, localized to tzid.
//
// An empty schedule means no hours constraint was declared and is
// permissive. A timezone that fails to load means the local time cannot be
// determined; the check fails closed. Malformed specs are skipped.
//
// The opening minute is inclusive and the closing minute exclusive: a
// reservation exactly at closing time is outside hours.
func IsOpen(unixSeconds int64, tzid string, specs []models.OpeningHoursSpec) bool {
	if len(specs) == 0 {
		return true
	}

	local, err := timeutil.Localize(unixSeconds, tzid)
	if err != nil {
		return false
	}

	for _, spec := range specs {
		if !matchesDay(spec.Days, local.Weekday) {
			continue
		}
		start, ok := parseMinute(spec.StartTime)
		if !ok {
			continue
		}
		end, ok := parseMinute(spec.EndTime)
		if !ok {
			continue
		}

		m := local.MinuteOfDay
		if start <= end {
			if m >= start && m < end {
				return true
			}
		} else {
			// Window wraps past midnight, e.g. 22:00-02:00.
			if m >= start || m < end {
				return true
			}
		}
	}
	return false
}

func matchesDay(days []string, weekday time.Weekday) bool {
	for _, d := range days {
		if wd, ok := weekdayCodes[strings.ToLower(strings.TrimSpace(d))]; ok && wd == weekday {
			return true
		}
	}
	return false
}

// parseMinute parses "HH:MM" to a minute-of-day.
func parseMinute(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
