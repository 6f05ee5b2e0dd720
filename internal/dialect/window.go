package dialect

import "time"

// AlignWindow computes the effective bounds of a windowed aggregation.
// The requested stop is kept exact and the start is floored to the window
// grid anchored at the stop: stop - ceil((stop-start)/every)*every. Both
// dialects window the full requested range, so the effective range never
// shrinks, it only extends backwards to a whole number of windows.
func AlignWindow(start, stop time.Time, every time.Duration) (time.Time, time.Time) {
	if every <= 0 || !start.Before(stop) {
		return start, stop
	}
	span := stop.Sub(start)
	n := span / every
	if span%every != 0 {
		n++
	}
	return stop.Add(-n * every), stop
}
