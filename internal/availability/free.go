package availability

import (
	"time"

	"freecal/internal/model"
)

// DefaultMinFree is the shortest gap still reported as free time.
const DefaultMinFree = 60 * time.Minute

// Snapshot holds the calendars one source delivered for the current query
// window. A nil *Snapshot means the source has not loaded yet.
type Snapshot struct {
	Calendars []model.Calendar
	FetchedAt time.Time
}

// Options tunes the free-time sweep.
type Options struct {
	// MinDuration drops free gaps shorter than this. Zero keeps every gap.
	MinDuration time.Duration
}

// DefaultOptions returns the options used by the query facade unless
// configured otherwise.
func DefaultOptions() Options {
	return Options{MinDuration: DefaultMinFree}
}

// MergeBusy combines the events of all calendars on the given day into
// maximal busy intervals: sorted by start, non-overlapping and non-touching.
func MergeBusy(calendars []model.Calendar, day time.Time) []model.BusyInterval {
	dayStart, dayEnd := DayBounds(day)

	out := make([]model.BusyInterval, 0)
	for _, s := range daySpans(dayStart, dayEnd, calendars) {
		if n := len(out); n > 0 && !s.start.After(out[n-1].End) {
			if s.end.After(out[n-1].End) {
				out[n-1].End = s.end
			}
			continue
		}
		out = append(out, model.BusyInterval{Start: s.start, End: s.end})
	}
	return out
}

// FreeTime returns the free intervals of the given day across the primary
// and friend calendars, ordered by start, with every interval at least
// opts.MinDuration long.
//
// If either snapshot is nil the result is empty: availability is never
// guessed from partial data.
//
// Busy merging and gap emission happen in the same sweep: current tracks the
// earliest instant not yet known to be busy, latest the furthest end seen.
func FreeTime(primary, friend *Snapshot, day time.Time, opts Options) []model.FreeInterval {
	if primary == nil || friend == nil {
		return []model.FreeInterval{}
	}

	dayStart, dayEnd := DayBounds(day)
	spans := daySpans(dayStart, dayEnd, primary.Calendars, friend.Calendars)

	gaps := make([]model.FreeInterval, 0, len(spans)+1)
	if len(spans) == 0 {
		gaps = append(gaps, model.FreeInterval{Start: dayStart, End: dayEnd})
		return filterShort(gaps, opts.MinDuration)
	}

	current := dayStart
	latest := current
	for _, s := range spans {
		if current.Before(s.start) {
			gaps = append(gaps, model.FreeInterval{Start: current, End: s.start})
		}
		if s.end.After(latest) {
			latest = s.end
		}
		current = latest
	}
	if current.Before(dayEnd) {
		gaps = append(gaps, model.FreeInterval{Start: current, End: dayEnd})
	}

	return filterShort(gaps, opts.MinDuration)
}

func filterShort(gaps []model.FreeInterval, minDur time.Duration) []model.FreeInterval {
	if minDur <= 0 {
		return gaps
	}
	out := gaps[:0]
	for _, g := range gaps {
		if g.Duration() >= minDur {
			out = append(out, g)
		}
	}
	return out
}
