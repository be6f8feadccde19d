package query

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freecal/internal/availability"
	"freecal/internal/friends"
	"freecal/internal/model"
)

// Wednesday 13 March 2024; the window starts Sunday the 10th.
var wednesday = time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)

func hour(dayIdx, h int) time.Time {
	return time.Date(2024, 3, 10+dayIdx, h, 0, 0, 0, time.UTC)
}

type countingRecorder struct {
	stale, weeks, days atomic.Int32
}

func (c *countingRecorder) StaleDiscarded()   { c.stale.Add(1) }
func (c *countingRecorder) WeekViewed()       { c.weeks.Add(1) }
func (c *countingRecorder) FreeIntervals(int) { c.days.Add(1) }

func newSession(t *testing.T, sel *friends.Selection, solo bool) (*Session, *countingRecorder) {
	t.Helper()
	rec := &countingRecorder{}
	s, err := NewSession(wednesday, sel, Options{
		Location:          time.UTC,
		FreeWithoutFriend: solo,
		Recorder:          rec,
	})
	require.NoError(t, err)
	return s, rec
}

func ownSnapshot(events ...model.Event) *availability.Snapshot {
	return &availability.Snapshot{Calendars: []model.Calendar{{ID: "me", Name: "Me", Color: "#123", Events: events}}}
}

func TestNewSessionAnchorsOnLastSunday(t *testing.T) {
	s, _ := newSession(t, nil, true)
	st := s.State()
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), st.Anchor.Time)
	assert.Equal(t, wednesday, st.Now)
	assert.Empty(t, st.FriendID)
}

func TestNavigationRoundTrip(t *testing.T) {
	s, _ := newSession(t, nil, true)
	orig := s.State().Anchor

	r1 := s.NextWeek()
	assert.Equal(t, orig.Next().Time, r1.Anchor.Time)
	r2 := s.PreviousWeek()
	assert.Equal(t, orig.Time, r2.Anchor.Time)
	assert.Greater(t, r2.Token, r1.Token)

	s.PreviousWeek()
	s.PreviousWeek()
	r3 := s.JumpToToday(wednesday.AddDate(0, 0, 14))
	assert.Equal(t, orig.Next().Next().Time, r3.Anchor.Time)
	assert.Equal(t, wednesday.AddDate(0, 0, 14), s.State().Now)
}

func TestWeekNotLoadedIsEmpty(t *testing.T) {
	s, _ := newSession(t, nil, true)
	w := s.Week()

	assert.False(t, w.Loaded)
	require.Len(t, w.Days, 7)
	for i, d := range w.Days {
		assert.Equal(t, hour(i, 0), d.Date)
		assert.Empty(t, d.Events)
		assert.Empty(t, d.Free)
	}
}

func TestWeekPrimaryOnly(t *testing.T) {
	s, rec := newSession(t, nil, true)
	require.True(t, s.Apply(s.Current(), ownSnapshot(model.Event{UID: "a", Name: "Standup", Start: hour(3, 9), End: hour(3, 10)}), nil))

	w := s.Week()
	assert.True(t, w.Loaded)

	wed := w.Days[3]
	require.Len(t, wed.Events, 1)
	assert.Equal(t, "Standup", wed.Events[0].Name)
	assert.Equal(t, model.CalendarRef{Name: "Me", Color: "#123"}, wed.Events[0].Calendar)
	assert.Equal(t, []model.FreeInterval{
		{Start: hour(3, 0), End: hour(3, 9)},
		{Start: hour(3, 10), End: hour(4, 0)},
	}, wed.Free)

	// Untouched days are entirely free.
	assert.Equal(t, []model.FreeInterval{{Start: hour(0, 0), End: hour(1, 0)}}, w.Days[0].Free)
	assert.EqualValues(t, 1, rec.weeks.Load())
}

func TestNoFriendWithoutSoloFree(t *testing.T) {
	s, _ := newSession(t, nil, false)
	require.True(t, s.Apply(s.Current(), ownSnapshot(), nil))

	w := s.Week()
	assert.True(t, w.Loaded)
	for _, d := range w.Days {
		assert.Empty(t, d.Free)
	}
}

func TestFriendNotLoadedYieldsNoFreeTime(t *testing.T) {
	sel := friends.NewSelection("sam")
	s, _ := newSession(t, sel, true)
	req := s.Current()
	assert.Equal(t, "sam", req.FriendID)

	require.True(t, s.Apply(req, ownSnapshot(model.Event{Start: hour(2, 9), End: hour(2, 10)}), nil))

	w := s.Week()
	assert.False(t, w.Loaded)
	assert.NotEmpty(t, w.Days[2].Events, "own events still render")
	for _, d := range w.Days {
		assert.Empty(t, d.Free)
	}

	friendSnap := &availability.Snapshot{Calendars: []model.Calendar{{Name: "Sam", Events: []model.Event{
		{Start: hour(2, 11), End: hour(2, 13)},
	}}}}
	require.True(t, s.Apply(req, nil, friendSnap))

	w = s.Week()
	assert.True(t, w.Loaded)
	assert.Equal(t, []model.FreeInterval{
		{Start: hour(2, 0), End: hour(2, 9)},
		{Start: hour(2, 10), End: hour(2, 11)},
		{Start: hour(2, 13), End: hour(3, 0)},
	}, w.Days[2].Free)
	assert.Len(t, w.Days[2].Events, 1, "friend events are not listed")
}

func TestStaleResponseDiscarded(t *testing.T) {
	s, rec := newSession(t, nil, true)
	old := s.Current()
	fresh := s.NextWeek()

	assert.False(t, s.Apply(old, ownSnapshot(), nil))
	assert.False(t, s.Loaded())
	assert.EqualValues(t, 1, rec.stale.Load())

	assert.True(t, s.Apply(fresh, ownSnapshot(), nil))
	assert.True(t, s.Loaded())
}

func TestNavigationDropsSnapshots(t *testing.T) {
	s, _ := newSession(t, nil, true)
	require.True(t, s.Apply(s.Current(), ownSnapshot(), nil))
	require.True(t, s.Loaded())

	s.NextWeek()
	assert.False(t, s.Loaded())
}

func TestMemoInvalidation(t *testing.T) {
	s, rec := newSession(t, nil, true)
	req := s.Current()
	require.True(t, s.Apply(req, ownSnapshot(), nil))

	first, err := s.Day(3)
	require.NoError(t, err)
	require.Len(t, first.Free, 1)

	// Memoized: no recomputation.
	_, err = s.Day(3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.days.Load())

	// The clock does not invalidate.
	s.SetNow(wednesday.Add(time.Minute))
	_, _ = s.Day(3)
	assert.EqualValues(t, 1, rec.days.Load())
	assert.Equal(t, wednesday.Add(time.Minute), s.Week().Now)

	// Fresh data does.
	require.True(t, s.Apply(req, ownSnapshot(model.Event{Start: hour(3, 12), End: hour(3, 14)}), nil))
	second, err := s.Day(3)
	require.NoError(t, err)
	assert.Len(t, second.Free, 2)
}

func TestDayOutOfRange(t *testing.T) {
	s, _ := newSession(t, nil, true)
	_, err := s.Day(7)
	assert.Error(t, err)
	_, err = s.Day(-1)
	assert.Error(t, err)
}

func TestFriendsChanged(t *testing.T) {
	sel := friends.NewSelection()
	s, _ := newSession(t, sel, true)
	require.True(t, s.Apply(s.Current(), ownSnapshot(), nil))
	before := s.Current()

	same := s.FriendsChanged()
	assert.Equal(t, before, same)

	sel.Select("sam")
	sel.Select("alex")
	changed := s.FriendsChanged()
	assert.Equal(t, "sam", changed.FriendID)
	assert.Greater(t, changed.Token, before.Token)
	assert.False(t, s.Loaded(), "friend data now missing")

	// Own calendars survive a friend change.
	assert.True(t, s.Apply(changed, nil, &availability.Snapshot{}))
	assert.True(t, s.Loaded())
}

func TestWeekReportsOldestFetch(t *testing.T) {
	s, _ := newSession(t, friends.NewSelection("sam"), true)
	req := s.Current()
	assert.True(t, s.Week().FetchedAt.IsZero())

	own := ownSnapshot()
	own.FetchedAt = wednesday.Add(-time.Minute)
	friend := &availability.Snapshot{FetchedAt: wednesday.Add(-5 * time.Minute)}
	require.True(t, s.Apply(req, own, friend))
	assert.Equal(t, wednesday.Add(-5*time.Minute), s.Week().FetchedAt)

	s.NextWeek()
	assert.True(t, s.Week().FetchedAt.IsZero(), "navigation drops snapshots")
}
