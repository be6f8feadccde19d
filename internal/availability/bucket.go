package availability

import (
	"sort"
	"time"

	"freecal/internal/model"
)

// OnDay is the single day-membership predicate used by both bucketing and the
// free-time sweep: an event belongs to every day its span touches, where a
// day is the half-open window [dayStart, dayEnd). Zero-length events belong
// to the day their instant falls in.
func OnDay(start, end, dayStart, dayEnd time.Time) bool {
	if !start.Before(dayEnd) {
		return false
	}
	return !start.Before(dayStart) || end.After(dayStart)
}

// span is an event's extent clipped to one day.
type span struct {
	start time.Time
	end   time.Time
}

func clip(start, end, dayStart, dayEnd time.Time) span {
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}
	return span{start: start, end: end}
}

// EventsOnDay returns the events of all calendars that fall on the day
// starting at dayStart, clipped to that day and annotated with their source
// calendar. The result is ordered by start; ties keep calendar order.
func EventsOnDay(calendars []model.Calendar, dayStart time.Time) []model.DayEvent {
	dayStart, dayEnd := DayBounds(dayStart)

	out := make([]model.DayEvent, 0)
	for _, cal := range calendars {
		ref := model.CalendarRef{Name: cal.Name, Color: cal.Color}
		for _, ev := range cal.Events {
			if !OnDay(ev.Start, ev.End, dayStart, dayEnd) {
				continue
			}
			s := clip(ev.Start, ev.End, dayStart, dayEnd)
			out = append(out, model.DayEvent{
				Calendar: ref,
				UID:      ev.UID,
				Name:     ev.Name,
				Start:    s.start,
				End:      s.end,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// daySpans flattens every calendar's events that occupy time on the given
// day into clipped spans sorted by start. Zero-length events occupy no time
// and are skipped.
func daySpans(dayStart, dayEnd time.Time, calendars ...[]model.Calendar) []span {
	spans := make([]span, 0)
	for _, group := range calendars {
		for _, cal := range group {
			for _, ev := range cal.Events {
				if !OnDay(ev.Start, ev.End, dayStart, dayEnd) {
					continue
				}
				s := clip(ev.Start, ev.End, dayStart, dayEnd)
				if !s.end.After(s.start) {
					continue
				}
				spans = append(spans, s)
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start.Before(spans[j].start)
	})
	return spans
}
