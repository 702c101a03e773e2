package timeutil

import (
	"fmt"
	"time"
)

// LocalTime is a timestamp localized into a merchant's timezone, reduced to
// the two components opening-hours checks care about.
type LocalTime struct {
	Weekday     time.Weekday
	MinuteOfDay int // 0..1439
}

// Localize converts a unix-seconds timestamp into the local weekday and
// minute-of-day for the given IANA timezone id.
func Localize(unixSeconds int64, tzid string) (LocalTime, error) {
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return LocalTime{}, fmt.Errorf("load timezone %q: %w", tzid, err)
	}
	t := time.Unix(unixSeconds, 0).In(loc)
	return LocalTime{
		Weekday:     t.Weekday(),
		MinuteOfDay: t.Hour()*60 + t.Minute(),
	}, nil
}

// Overlaps reports whether the half-open intervals [a0, a1) and [b0, b1)
// intersect. Intervals that merely touch at an endpoint do not overlap, so
// back-to-back reservations never collide.
func Overlaps(a0, a1, b0, b1 int64) bool {
	return a0 < b1 && a1 > b0
}
