package query

import (
	"time"

	"freecal/internal/availability"
	"freecal/internal/model"
)

// State is the query-state record: which week is shown, which friend is
// overlaid and the instant used for the "now" marker.
type State struct {
	Anchor   availability.WeekAnchor
	FriendID string
	Now      time.Time
}

// Request identifies one fetch issued for a State. Only a response
// carrying the latest token may update the session.
type Request struct {
	Token    uint64
	Anchor   availability.WeekAnchor
	FriendID string
}

// DayView is what the presentation layer needs to draw one day column.
type DayView struct {
	Date   time.Time            `json:"date"`
	Events []model.DayEvent     `json:"events"`
	Free   []model.FreeInterval `json:"free"`
}

// WeekView is the seven-day window plus the current instant.
type WeekView struct {
	Anchor   time.Time `json:"anchor"`
	Now      time.Time `json:"now"`
	FriendID string    `json:"friend_id,omitempty"`

	// Loaded is false until every source the query needs has delivered data.
	// Free lists stay empty until then.
	Loaded bool `json:"loaded"`

	// FetchedAt is when the oldest snapshot in use was fetched. Zero while
	// nothing is loaded.
	FetchedAt time.Time `json:"fetched_at"`

	Days []DayView `json:"days"`
}
