package ics

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freecal/internal/config"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]string
}

func (r *recordingObserver) ObserveFetch(feedID, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]string{}
	}
	r.calls[feedID] = result
}

var weekOf13th = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func TestProviderFetchLimitsToWeek(t *testing.T) {
	own := newFeedServer(t, icsBody(concat(
		vevent("UID:in", "DTSTART:20240313T090000Z", "DTEND:20240313T100000Z", "SUMMARY:In"),
		vevent("UID:before", "DTSTART:20240308T090000Z", "DTEND:20240308T100000Z"),
		vevent("UID:after", "DTSTART:20240317T000000Z", "DTEND:20240317T010000Z"),
		vevent("UID:straddle", "DTSTART:20240309T230000Z", "DTEND:20240310T010000Z"),
	)...))

	obs := &recordingObserver{}
	p := NewProvider(NewFetcher(t.TempDir()), time.UTC,
		[]Feed{{ID: "work", Name: "Work", Color: "#00f", URL: own.URL}}, nil).WithObserver(obs)

	cals, err := p.Fetch(context.Background(), weekOf13th)
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, "Work", cals[0].Name)
	assert.Equal(t, "#00f", cals[0].Color)

	uids := []string{}
	for _, ev := range cals[0].Events {
		uids = append(uids, ev.UID)
	}
	assert.ElementsMatch(t, []string{"in", "straddle"}, uids)
	assert.Equal(t, ResultOK, obs.calls["work"])
}

func TestProviderWeekStartsAfterSkippedMidnight(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// Sunday 4 November 2018 began at 01:00 -02 (03:00 UTC).
	own := newFeedServer(t, icsBody(concat(
		vevent("UID:saturday-late", "DTSTART:20181104T013000Z", "DTEND:20181104T023000Z"),
		vevent("UID:sunday", "DTSTART:20181104T040000Z", "DTEND:20181104T050000Z"),
	)...))
	p := NewProvider(NewFetcher(t.TempDir()), sp, []Feed{{ID: "work", URL: own.URL}}, nil)

	cals, err := p.Fetch(context.Background(), time.Date(2018, 11, 7, 12, 0, 0, 0, sp))
	require.NoError(t, err)
	require.Len(t, cals, 1)
	require.Len(t, cals[0].Events, 1)
	assert.Equal(t, "sunday", cals[0].Events[0].UID)
}

func TestProviderFetchFriend(t *testing.T) {
	friendSrv := newFeedServer(t, sampleCalendar)
	p := NewProvider(NewFetcher(t.TempDir()), time.UTC, nil, map[string][]Feed{
		"sam": {{ID: "sam-main", Name: "Sam", URL: friendSrv.URL}},
	})

	cals, err := p.FetchFriend(context.Background(), weekOf13th, "sam")
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.NotEmpty(t, cals[0].Events)
	assert.True(t, p.HasFriend("sam"))

	_, err = p.FetchFriend(context.Background(), weekOf13th, "nobody")
	assert.ErrorIs(t, err, ErrUnknownFriend)
	assert.False(t, p.HasFriend("nobody"))
}

func TestProviderFailureFailsWholeLoad(t *testing.T) {
	ok := newFeedServer(t, sampleCalendar)
	bad := newFeedServer(t, sampleCalendar)
	bad.broken.Store(true)

	obs := &recordingObserver{}
	p := NewProvider(NewFetcher(t.TempDir()), time.UTC, []Feed{
		{ID: "ok", URL: ok.URL},
		{ID: "bad", URL: bad.URL},
	}, nil).WithObserver(obs)

	_, err := p.Fetch(context.Background(), weekOf13th)
	require.Error(t, err)
	assert.Equal(t, ResultError, obs.calls["bad"])
}

func TestProviderNoFeeds(t *testing.T) {
	p := NewProvider(NewFetcher(t.TempDir()), time.UTC, nil, nil)
	cals, err := p.Fetch(context.Background(), weekOf13th)
	require.NoError(t, err)
	assert.Empty(t, cals)
}

func TestNewProviderFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Calendars = []config.FeedConfig{
		{ID: "work", URL: "https://example.com/w.ics"},
		{ID: "no-url"},
	}
	cfg.Friends = []config.FriendConfig{{ID: "sam", Calendars: []config.FeedConfig{{ID: "s", Name: "Sam", URL: "https://example.com/s.ics"}}}}

	p := NewProviderFromConfig(cfg, NewFetcher(t.TempDir()), time.UTC)
	require.Len(t, p.own, 1)
	assert.Equal(t, "work", p.own[0].Name, "name falls back to ID")
	assert.True(t, p.HasFriend("sam"))
	assert.Equal(t, "Sam", p.friends["sam"][0].Name)
}
