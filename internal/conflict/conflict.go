package conflict

import (
	"seatrelay/internal/models"
	"seatrelay/internal/timeutil"
)

// CountOverlaps counts confirmed reservations whose occupancy interval
// intersects the candidate interval [candidateStart, candidateStart+duration).
// Entries that are not confirmed or carry no start time are ignored.
// Durations (candidate and existing) default to defaultDurationSeconds when
// absent. All interval math is half-open, so a reservation ending exactly
// when another begins does not count.
func CountOverlaps(candidateStart, candidateDuration int64, confirmed []models.ReservationResponse, defaultDurationSeconds int64) int {
	if candidateDuration <= 0 {
		candidateDuration = defaultDurationSeconds
	}
	a0 := candidateStart
	a1 := candidateStart + candidateDuration

	count := 0
	for i := range confirmed {
		r := &confirmed[i]
		if !r.IsConfirmed() {
			continue
		}
		b0 := *r.Time
		d := defaultDurationSeconds
		if r.Duration != nil && *r.Duration > 0 {
			d = *r.Duration
		}
		if timeutil.Overlaps(a0, a1, b0, b0+d) {
			count++
		}
	}
	return count
}

// HasConflict reports whether accepting the candidate would reach the
// merchant's simultaneous-reservation limit. The limit triggers once the
// overlap count reaches maxSimultaneous; with no overlapping reservations
// there is nothing to conflict with regardless of the limit.
func HasConflict(candidateStart, candidateDuration int64, confirmed []models.ReservationResponse, maxSimultaneous int, defaultDurationSeconds int64) bool {
	count := CountOverlaps(candidateStart, candidateDuration, confirmed, defaultDurationSeconds)
	if count == 0 {
		return false
	}
	return count >= maxSimultaneous
}
