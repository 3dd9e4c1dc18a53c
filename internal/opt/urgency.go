package opt

import "time"

// OverdueScore is the priority of a shipment whose deadline is now or past.
// It dwarfs any 1/seconds score so overdue shipments are packed first.
const OverdueScore = 1000.0

// Priority scores a deadline relative to now: the inverse of the remaining
// seconds, or OverdueScore once no time is left.
func Priority(deadline, now time.Time) float64 {
	secs := deadline.Sub(now).Seconds()
	if secs <= 0 {
		return OverdueScore
	}
	return 1 / secs
}
