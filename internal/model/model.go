package model

import "time"

// Calendar is one named, colored source of events (one per feed, for the
// user or for a friend). Calendars are delivered as fresh snapshots on every
// query and are never mutated afterwards.
type Calendar struct {
	ID    string // feed ID from config
	Name  string // display label
	Color string // rendering hint only

	// Events keep the order the source produced them in.
	Events []Event
}

// Event is a single concrete calendar entry. Sources guarantee Start <= End.
type Event struct {
	UID  string
	Name string

	Start time.Time
	End   time.Time
}

// CalendarRef is the back-reference attached to an event when it is placed
// on a day. It is not stored on the source data.
type CalendarRef struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DayEvent is an Event as placed on one day: annotated with its source
// calendar and with Start/End clipped to the day.
type DayEvent struct {
	Calendar CalendarRef `json:"calendar"`
	UID      string      `json:"uid"`
	Name     string      `json:"name"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
}

// BusyInterval is a maximal span of one day during which at least one
// contributing calendar has an event.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeInterval is a span of one day with no events.
type FreeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (f FreeInterval) Duration() time.Duration {
	return f.End.Sub(f.Start)
}

// Minutes returns the interval length in whole minutes.
func (f FreeInterval) Minutes() int {
	return int(f.Duration() / time.Minute)
}
