package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// ParseICS turns a feed body into concrete events expressed in loc.
//
//   - TZID handling is left to the library; results are converted to loc.
//   - All-day events (DATE values) cover whole days in loc.
//   - A missing DTEND is derived from DURATION, else one day for all-day
//     events, else the event is a single instant.
//   - TRANSPARENT and CANCELLED events do not block time and are skipped.
//   - Events ending before they start are dropped here; the availability
//     engine does not re-validate.
//   - RRULEs are not expanded; only the first instance is kept.
func ParseICS(feed Feed, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", feed.ID)
		return nil, fmt.Errorf("ics: parse %s: %w", feed.ID, err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, keep, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", feed.ID, "cause", perr)
			continue
		}
		if !keep {
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", feed.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.Event, bool, error) {
	var out model.Event

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Name = p.Value
	}

	if p := ve.GetProperty("TRANSP"); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT") {
		return out, false, nil
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED") {
		return out, false, nil
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, false, fmt.Errorf("uid %q: missing DTSTART", out.UID)
	}
	allDay := isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return out, false, fmt.Errorf("uid %q: DTSTART: %w", out.UID, err)
	}
	if allDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	} else {
		start = start.In(loc)
	}

	var end time.Time
	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		e, err := ve.GetEndAt()
		if err != nil {
			return out, false, fmt.Errorf("uid %q: DTEND: %w", out.UID, err)
		}
		if allDay {
			end = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc)
		} else {
			end = e.In(loc)
		}
	case ve.GetProperty("DURATION") != nil:
		d, err := parseDuration(ve.GetProperty("DURATION").Value)
		if err != nil {
			return out, false, fmt.Errorf("uid %q: DURATION: %w", out.UID, err)
		}
		end = addDuration(start, d)
	case allDay:
		end = start.AddDate(0, 0, 1)
	default:
		end = start
	}

	if end.Before(start) {
		return out, false, fmt.Errorf("uid %q: DTEND before DTSTART", out.UID)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		appLog.Debug("ics recurring event kept as single instance", "uid", out.UID, "rrule", p.Value)
	}

	out.Start = start
	out.End = end
	return out, true, nil
}

// isDateValue reports whether a DTSTART carries a DATE (all-day) value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// icsDuration is an RFC 5545 dur-value split into its calendar part (days,
// which follow wall-clock days) and its exact part.
type icsDuration struct {
	days  int
	exact time.Duration
}

func addDuration(t time.Time, d icsDuration) time.Time {
	return t.AddDate(0, 0, d.days).Add(d.exact)
}

// parseDuration parses values such as "PT1H30M", "P1D", "P2W", "-PT15M".
func parseDuration(v string) (icsDuration, error) {
	var d icsDuration
	s := strings.ToUpper(strings.TrimSpace(v))
	sign := 1
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return d, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return icsDuration{}, fmt.Errorf("invalid duration %q", v)
		}
		num = ""
		switch {
		case r == 'W' && !inTime:
			d.days += 7 * n
		case r == 'D' && !inTime:
			d.days += n
		case r == 'H' && inTime:
			d.exact += time.Duration(n) * time.Hour
		case r == 'M' && inTime:
			d.exact += time.Duration(n) * time.Minute
		case r == 'S' && inTime:
			d.exact += time.Duration(n) * time.Second
		default:
			return icsDuration{}, fmt.Errorf("invalid duration %q", v)
		}
	}
	if num != "" {
		return icsDuration{}, fmt.Errorf("invalid duration %q", v)
	}

	d.days *= sign
	d.exact *= time.Duration(sign)
	return d, nil
}
