package availability

import "time"

// DaysPerWeek is the width of the query window.
const DaysPerWeek = 7

// WeekAnchor is the left edge of a 7-day query window. It is always the
// first instant of a Sunday in the location it was computed in: 00:00:00.000,
// or the end of the DST gap in zones where that Sunday skips midnight.
type WeekAnchor struct {
	time.Time
}

// LastSunday returns the most recent Sunday at or before t, truncated to
// the start of that day in t's location.
func LastSunday(t time.Time) WeekAnchor {
	y, m, d := t.Date()
	return WeekAnchor{Time: Midnight(y, m, d-int(t.Weekday()), t.Location())}
}

// Midnight returns the first instant of the given calendar date in loc.
// Out-of-range days normalize as in time.Date. When a DST switch skips
// 00:00, time.Date lands on the previous evening; the result is moved
// forward to where the date actually begins.
func Midnight(y int, m time.Month, d int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	wy, wm, wd := time.Date(y, m, d, 12, 0, 0, 0, loc).Date()
	if ty, tm, td := t.Date(); ty == wy && tm == wm && td == wd {
		return t
	}
	h, mi, sec := t.Clock()
	sinceMidnight := time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(t.Nanosecond())
	return t.Add(24*time.Hour - sinceMidnight)
}

// Next returns the anchor one week later.
func (a WeekAnchor) Next() WeekAnchor {
	return a.shift(DaysPerWeek)
}

// Prev returns the anchor one week earlier.
func (a WeekAnchor) Prev() WeekAnchor {
	return a.shift(-DaysPerWeek)
}

// Day returns midnight of the i-th day of the window (0 = Sunday).
func (a WeekAnchor) Day(i int) time.Time {
	return a.shift(i).Time
}

// Days returns the midnights of all seven days in the window.
func (a WeekAnchor) Days() []time.Time {
	out := make([]time.Time, DaysPerWeek)
	for i := range out {
		out[i] = a.Day(i)
	}
	return out
}

// End returns the exclusive end of the window (the following Sunday).
func (a WeekAnchor) End() time.Time {
	return a.Next().Time
}

// Overlaps reports whether the span [start, end] touches the window, using
// the same rule as OnDay.
func (a WeekAnchor) Overlaps(start, end time.Time) bool {
	return OnDay(start, end, a.Time, a.End())
}

func (a WeekAnchor) shift(days int) WeekAnchor {
	y, m, d := a.Date()
	return WeekAnchor{Time: Midnight(y, m, d+days, a.Location())}
}

// DayBounds returns the half-open window [midnight, next midnight) of the
// day containing t.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	return Midnight(y, m, d, t.Location()), Midnight(y, m, d+1, t.Location())
}
