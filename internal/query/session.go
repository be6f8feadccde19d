package query

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"freecal/internal/availability"
	"freecal/internal/friends"
	appLog "freecal/internal/log"
	"freecal/internal/model"
)

const defaultMemoSize = 64

// Recorder receives query metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	StaleDiscarded()
	WeekViewed()
	FreeIntervals(n int)
}

type nopRecorder struct{}

func (nopRecorder) StaleDiscarded()   {}
func (nopRecorder) WeekViewed()       {}
func (nopRecorder) FreeIntervals(int) {}

// Options configures a Session.
type Options struct {
	// Location frames week anchors and day boundaries. Defaults to time.Local.
	Location *time.Location

	// MinFree drops shorter free gaps. Zero means availability.DefaultMinFree.
	MinFree time.Duration

	// FreeWithoutFriend computes free time from the user's calendars alone
	// when no friend is selected. When false, no free time is reported
	// until a friend is selected and loaded.
	FreeWithoutFriend bool

	// MemoSize bounds the per-day memo. Zero means a default.
	MemoSize int

	Recorder Recorder
}

// Session is the calendar query facade. It holds the query state, the
// latest delivered snapshots and a memo of computed days. It is safe for
// concurrent use; every state change invalidates the memo and issues a new
// request token.
type Session struct {
	mu sync.RWMutex

	loc      *time.Location
	freeOpts availability.Options
	soloFree bool
	rec      Recorder

	selection *friends.Selection
	state     State
	token     uint64

	own    *availability.Snapshot
	friend *availability.Snapshot

	memo *lru.Cache[int64, DayView]
}

// NewSession starts a session on the week containing now. selection may be
// shared with whatever edits the friend list.
func NewSession(now time.Time, selection *friends.Selection, opts Options) (*Session, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MinFree <= 0 {
		opts.MinFree = availability.DefaultMinFree
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultMemoSize
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if selection == nil {
		selection = friends.NewSelection()
	}

	memo, err := lru.New[int64, DayView](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("query: memo: %w", err)
	}

	now = now.In(opts.Location)
	return &Session{
		loc:       opts.Location,
		freeOpts:  availability.Options{MinDuration: opts.MinFree},
		soloFree:  opts.FreeWithoutFriend,
		rec:       opts.Recorder,
		selection: selection,
		state: State{
			Anchor:   availability.LastSunday(now),
			FriendID: selection.First(),
			Now:      now,
		},
		token: 1,
		memo:  memo,
	}, nil
}

// State returns a copy of the current query state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Selection returns the friend selection the session reads from.
func (s *Session) Selection() *friends.Selection {
	return s.selection
}

// Current returns a request for the current state without superseding
// anything. Used for the initial load and periodic refreshes.
func (s *Session) Current() Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestLocked()
}

// PreviousWeek moves the window one week back.
func (s *Session) PreviousWeek() Request {
	return s.update(func(st *State) { st.Anchor = st.Anchor.Prev() })
}

// NextWeek moves the window one week forward.
func (s *Session) NextWeek() Request {
	return s.update(func(st *State) { st.Anchor = st.Anchor.Next() })
}

// JumpToToday moves the window to the week containing now.
func (s *Session) JumpToToday(now time.Time) Request {
	now = now.In(s.loc)
	return s.update(func(st *State) {
		st.Anchor = availability.LastSunday(now)
		st.Now = now
	})
}

// FriendsChanged re-reads the first selected friend. If it did not change
// the current request is returned and nothing is invalidated.
func (s *Session) FriendsChanged() Request {
	first := s.selection.First()

	s.mu.RLock()
	same := first == s.state.FriendID
	s.mu.RUnlock()
	if same {
		return s.Current()
	}
	return s.update(func(st *State) { st.FriendID = first })
}

// update applies fn to the state, supersedes in-flight requests and drops
// data that no longer matches the query.
func (s *Session) update(fn func(*State)) Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	fn(&s.state)
	s.state.FriendID = s.selection.First()
	s.token++

	if !prev.Anchor.Equal(s.state.Anchor.Time) {
		s.own = nil
		s.friend = nil
	} else if prev.FriendID != s.state.FriendID {
		s.friend = nil
	}
	s.memo.Purge()

	appLog.Info("query state changed",
		"anchor", s.state.Anchor.Time,
		"friend", s.state.FriendID,
		"token", s.token,
	)
	return s.requestLocked()
}

func (s *Session) requestLocked() Request {
	return Request{Token: s.token, Anchor: s.state.Anchor, FriendID: s.state.FriendID}
}

// Apply stores fetched snapshots for req. A nil snapshot leaves the
// current one in place. Responses to superseded requests are discarded and
// Apply reports false.
func (s *Session) Apply(req Request, own, friend *availability.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Token != s.token {
		appLog.Info("stale query response discarded",
			"token", req.Token,
			"latest", s.token,
			"anchor", req.Anchor.Time,
		)
		s.rec.StaleDiscarded()
		return false
	}

	if own != nil {
		s.own = own
	}
	if friend != nil && req.FriendID != "" {
		s.friend = friend
	}
	s.memo.Purge()
	return true
}

// SetNow moves the "now" marker. Computed days stay valid.
func (s *Session) SetNow(now time.Time) {
	s.mu.Lock()
	s.state.Now = now.In(s.loc)
	s.mu.Unlock()
}

// Loaded reports whether every source the current query needs has data.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedLocked()
}

func (s *Session) loadedLocked() bool {
	if s.own == nil {
		return false
	}
	return s.state.FriendID == "" || s.friend != nil
}

// Day returns the view of day i (0 = Sunday) of the current window.
func (s *Session) Day(i int) (DayView, error) {
	if i < 0 || i >= availability.DaysPerWeek {
		return DayView{}, fmt.Errorf("query: day index %d out of range", i)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dayLocked(i), nil
}

// Week returns all seven days of the current window.
func (s *Session) Week() WeekView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]DayView, availability.DaysPerWeek)
	for i := range days {
		days[i] = s.dayLocked(i)
	}
	s.rec.WeekViewed()

	return WeekView{
		Anchor:    s.state.Anchor.Time,
		Now:       s.state.Now,
		FriendID:  s.state.FriendID,
		Loaded:    s.loadedLocked(),
		FetchedAt: s.fetchedAtLocked(),
		Days:      days,
	}
}

// fetchedAtLocked returns the oldest FetchedAt among the loaded snapshots.
func (s *Session) fetchedAtLocked() time.Time {
	var oldest time.Time
	for _, snap := range []*availability.Snapshot{s.own, s.friend} {
		if snap == nil || snap.FetchedAt.IsZero() {
			continue
		}
		if oldest.IsZero() || snap.FetchedAt.Before(oldest) {
			oldest = snap.FetchedAt
		}
	}
	return oldest
}

func (s *Session) dayLocked(i int) DayView {
	date := s.state.Anchor.Day(i)
	key := date.Unix()
	if v, ok := s.memo.Get(key); ok {
		return v
	}

	v := DayView{Date: date}
	if s.own != nil {
		v.Events = availability.EventsOnDay(s.own.Calendars, date)
	} else {
		v.Events = []model.DayEvent{}
	}
	v.Free = availability.FreeTime(s.own, s.friendSnapshotLocked(), date, s.freeOpts)
	s.rec.FreeIntervals(len(v.Free))

	s.memo.Add(key, v)
	return v
}

// friendSnapshotLocked returns the snapshot the free-time sweep should use
// for the friend side. With no friend selected it is an empty, loaded
// snapshot when solo free time is enabled, else nil (not loaded).
func (s *Session) friendSnapshotLocked() *availability.Snapshot {
	if s.state.FriendID != "" {
		return s.friend
	}
	if s.soloFree {
		return &availability.Snapshot{}
	}
	return nil
}
