package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//freecal//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func vevent(props ...string) []string {
	out := append([]string{"BEGIN:VEVENT", "DTSTAMP:20240301T000000Z"}, props...)
	return append(out, "END:VEVENT")
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var sampleCalendar = icsBody(concat(
	vevent("UID:standup", "DTSTART:20240313T090000Z", "DTEND:20240313T100000Z", "SUMMARY:Standup"),
	vevent("UID:offsite", "DTSTART;VALUE=DATE:20240314", "DTEND;VALUE=DATE:20240315", "SUMMARY:Offsite"),
	vevent("UID:call", "DTSTART:20240313T140000Z", "DURATION:PT45M", "SUMMARY:Call"),
	vevent("UID:hold", "DTSTART:20240313T160000Z", "DTEND:20240313T170000Z", "TRANSP:TRANSPARENT"),
	vevent("UID:cancelled", "DTSTART:20240313T180000Z", "DTEND:20240313T190000Z", "STATUS:CANCELLED"),
	vevent("UID:backwards", "DTSTART:20240313T120000Z", "DTEND:20240313T110000Z"),
	vevent("UID:weekly", "DTSTART:20240311T070000Z", "DTEND:20240311T073000Z", "RRULE:FREQ=WEEKLY"),
)...)

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Feed{ID: "work"}, sampleCalendar, time.UTC)
	require.NoError(t, err)

	byUID := map[string]struct{ start, end time.Time }{}
	for _, ev := range events {
		byUID[ev.UID] = struct{ start, end time.Time }{ev.Start, ev.End}
	}
	require.Len(t, byUID, 4, "transparent, cancelled and backwards events are skipped")

	assert.Equal(t, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), byUID["standup"].start)
	assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC), byUID["standup"].end)

	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), byUID["offsite"].start)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), byUID["offsite"].end)

	assert.Equal(t, time.Date(2024, 3, 13, 14, 45, 0, 0, time.UTC), byUID["call"].end)

	// Recurrences are not expanded.
	assert.Equal(t, time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC), byUID["weekly"].start)
}

func TestParseICSConvertsToLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	events, err := ParseICS(Feed{ID: "work"}, icsBody(vevent(
		"UID:late", "DTSTART:20240313T200000Z", "DTEND:20240313T210000Z",
	)...), tokyo)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, 14, events[0].Start.Day())
	assert.Equal(t, 5, events[0].Start.Hour())
	assert.Equal(t, tokyo, events[0].Start.Location())
}

func TestParseICSMissingEnd(t *testing.T) {
	events, err := ParseICS(Feed{ID: "x"}, icsBody(concat(
		vevent("UID:allday", "DTSTART;VALUE=DATE:20240313"),
		vevent("UID:instant", "DTSTART:20240313T090000Z"),
	)...), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	for _, ev := range events {
		switch ev.UID {
		case "allday":
			assert.Equal(t, 24*time.Hour, ev.End.Sub(ev.Start))
		case "instant":
			assert.True(t, ev.End.Equal(ev.Start))
		}
	}
}

func TestParseICSEmptyBody(t *testing.T) {
	_, err := ParseICS(Feed{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		days    int
		exact   time.Duration
		wantErr bool
	}{
		{in: "PT1H30M", exact: 90 * time.Minute},
		{in: "P1D", days: 1},
		{in: "P2W", days: 14},
		{in: "P1DT2H", days: 1, exact: 2 * time.Hour},
		{in: "PT15S", exact: 15 * time.Second},
		{in: "-PT15M", exact: -15 * time.Minute},
		{in: "1H", wantErr: true},
		{in: "P1H", wantErr: true},
		{in: "PT5", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.days, d.days)
			assert.Equal(t, tt.exact, d.exact)
		})
	}
}
