package hours

import (
	"testing"
	"time"

	"seatrelay/internal/models"
)

func mustLoc(t *testing.T, tzid string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func weekdayHours() []models.OpeningHoursSpec {
	return []models.OpeningHoursSpec{
		{Days: []string{"mo", "tu", "we", "th", "fr"}, StartTime: "11:00", EndTime: "21:00"},
	}
}

func TestIsOpenBoundaries(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	specs := weekdayHours()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		// 2024-06-03 is a Monday.
		{"opening minute inclusive", time.Date(2024, 6, 3, 11, 0, 0, 0, la), true},
		{"closing minute exclusive", time.Date(2024, 6, 3, 21, 0, 0, 0, la), false},
		{"one minute before opening", time.Date(2024, 6, 3, 10, 59, 0, 0, la), false},
		{"one minute before closing", time.Date(2024, 6, 3, 20, 59, 0, 0, la), true},
		{"midday", time.Date(2024, 6, 3, 14, 0, 0, 0, la), true},
		{"sunday closed", time.Date(2024, 6, 2, 14, 0, 0, 0, la), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOpen(tt.at.Unix(), "America/Los_Angeles", specs); got != tt.want {
				t.Errorf("IsOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsOpenEmptyScheduleIsPermissive(t *testing.T) {
	if !IsOpen(time.Now().Unix(), "America/Los_Angeles", nil) {
		t.Error("empty schedule must mean always open")
	}
	if !IsOpen(0, "Europe/Berlin", []models.OpeningHoursSpec{}) {
		t.Error("empty schedule must mean always open")
	}
}

func TestIsOpenWrapsPastMidnight(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	specs := []models.OpeningHoursSpec{
		{Days: []string{"fr"}, StartTime: "22:00", EndTime: "02:00"},
	}

	// 2024-06-07 is a Friday.
	friday2300 := time.Date(2024, 6, 7, 23, 0, 0, 0, la)
	if !IsOpen(friday2300.Unix(), "America/Los_Angeles", specs) {
		t.Error("Friday 23:00 should be inside the 22:00-02:00 window")
	}

	friday2159 := time.Date(2024, 6, 7, 21, 59, 0, 0, la)
	if IsOpen(friday2159.Unix(), "America/Los_Angeles", specs) {
		t.Error("Friday 21:59 should be before the 22:00-02:00 window")
	}

	// Saturday 01:00 local matches the spec only through the Saturday
	// weekday, which the spec does not list; the wrapped tail of a Friday
	// window lives in Saturday's early hours.
	saturday0100 := time.Date(2024, 6, 8, 1, 0, 0, 0, la)
	if IsOpen(saturday0100.Unix(), "America/Los_Angeles", specs) {
		t.Error("Saturday 01:00 does not match a Friday-only spec")
	}

	specs[0].Days = append(specs[0].Days, "sa")
	if !IsOpen(saturday0100.Unix(), "America/Los_Angeles", specs) {
		t.Error("Saturday 01:00 should match once Saturday is listed")
	}
}

func TestIsOpenInvalidTimezoneFailsClosed(t *testing.T) {
	if IsOpen(time.Now().Unix(), "Not/AZone", weekdayHours()) {
		t.Error("invalid timezone must fail closed")
	}
}

func TestIsOpenSkipsMalformedSpecs(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	monday14 := time.Date(2024, 6, 3, 14, 0, 0, 0, la).Unix()

	specs := []models.OpeningHoursSpec{
		{Days: nil, StartTime: "00:00", EndTime: "23:59"},                        // no days
		{Days: []string{"mo"}, StartTime: "eleven", EndTime: "21:00"},            // bad start
		{Days: []string{"mo"}, StartTime: "11:00", EndTime: "25:00"},             // bad end
		{Days: []string{"mo"}, StartTime: "11:00", EndTime: "21:00"},             // valid
	}
	if !IsOpen(monday14, "America/Los_Angeles", specs) {
		t.Error("valid spec should match despite malformed siblings")
	}

	onlyBad := specs[:3]
	if IsOpen(monday14, "America/Los_Angeles", onlyBad) {
		t.Error("malformed specs alone should never match")
	}
}

func TestIsOpenSecondsIgnored(t *testing.T) {
	la := mustLoc(t, "America/Los_Angeles")
	// 20:59:59 is still inside minute 20:59.
	at := time.Date(2024, 6, 3, 20, 59, 59, 0, la)
	if !IsOpen(at.Unix(), "America/Los_Angeles", weekdayHours()) {
		t.Error("seconds within the final open minute should still count as open")
	}
}
