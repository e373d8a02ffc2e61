package history

import "time"

// NextStreak applies the day-boundary streak rule: practicing the calendar
// day after the last recorded practice extends the streak, practicing again
// on the same day leaves it unchanged, anything else resets it to 1.
func NextStreak(current int, last *time.Time, today time.Time) int {
	if last == nil {
		return 1
	}

	switch daysBetween(*last, today) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// daysBetween counts calendar-day boundaries crossed between a and b,
// compared in UTC.
func daysBetween(a, b time.Time) int {
	a, b = a.UTC(), b.UTC()
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
