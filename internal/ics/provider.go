package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freecal/internal/availability"
	"freecal/internal/config"
	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// ErrUnknownFriend is returned by FetchFriend for an ID not in the config.
var ErrUnknownFriend = errors.New("ics: unknown friend")

// Provider serves calendars for the query window from ICS feeds: the
// user's own feeds and those of configured friends.
type Provider struct {
	fetcher  *Fetcher
	loc      *time.Location
	own      []Feed
	friends  map[string][]Feed
	observer FetchObserver
}

// NewProvider builds a Provider. Events are expressed in loc.
func NewProvider(fetcher *Fetcher, loc *time.Location, own []Feed, friends map[string][]Feed) *Provider {
	if loc == nil {
		loc = time.Local
	}
	if friends == nil {
		friends = map[string][]Feed{}
	}
	return &Provider{
		fetcher: fetcher,
		loc:     loc,
		own:     own,
		friends: friends,
	}
}

// NewProviderFromConfig wires feeds and friends straight from cfg.
func NewProviderFromConfig(cfg *config.Config, fetcher *Fetcher, loc *time.Location) *Provider {
	friends := make(map[string][]Feed, len(cfg.Friends))
	for _, fr := range cfg.Friends {
		friends[fr.ID] = FeedsFromConfig(fr.Calendars)
	}
	return NewProvider(fetcher, loc, FeedsFromConfig(cfg.Calendars), friends)
}

// FeedsFromConfig converts configured feeds, skipping entries without URL.
func FeedsFromConfig(cfgs []config.FeedConfig) []Feed {
	out := make([]Feed, 0, len(cfgs))
	for _, c := range cfgs {
		if c.URL == "" {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		out = append(out, Feed{ID: c.ID, Name: name, Color: c.Color, URL: c.URL})
	}
	return out
}

// WithObserver attaches a fetch observer (metrics).
func (p *Provider) WithObserver(o FetchObserver) *Provider {
	p.observer = o
	return p
}

// Fetch returns the user's calendars limited to the week starting at
// weekStart.
func (p *Provider) Fetch(ctx context.Context, weekStart time.Time) ([]model.Calendar, error) {
	return p.load(ctx, p.own, weekStart)
}

// FetchFriend returns the calendars of friend userID for the week starting
// at weekStart.
func (p *Provider) FetchFriend(ctx context.Context, weekStart time.Time, userID string) ([]model.Calendar, error) {
	feeds, ok := p.friends[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFriend, userID)
	}
	return p.load(ctx, feeds, weekStart)
}

// HasFriend reports whether userID is configured.
func (p *Provider) HasFriend(userID string) bool {
	_, ok := p.friends[userID]
	return ok
}

// load fetches and parses every feed. Any feed that cannot produce a body
// fails the whole load: a calendar silently missing would show its busy
// time as free.
func (p *Provider) load(ctx context.Context, feeds []Feed, weekStart time.Time) ([]model.Calendar, error) {
	week := availability.LastSunday(weekStart.In(p.loc))

	results, err := p.fetcher.FetchAll(ctx, feeds)
	if err != nil {
		p.observe(feeds, ResultError)
		return nil, err
	}

	calendars := make([]model.Calendar, 0, len(results))
	for _, res := range results {
		p.observeOne(res.Feed.ID, res.Result)

		events, err := ParseICS(res.Feed, res.Body, p.loc)
		if err != nil {
			return nil, err
		}

		inWeek := make([]model.Event, 0, len(events))
		for _, ev := range events {
			if week.Overlaps(ev.Start, ev.End) {
				inWeek = append(inWeek, ev)
			}
		}

		calendars = append(calendars, model.Calendar{
			ID:     res.Feed.ID,
			Name:   res.Feed.Name,
			Color:  res.Feed.Color,
			Events: inWeek,
		})
	}

	appLog.Info("calendars loaded",
		"feeds", len(feeds),
		"week_start", week.Time,
		"from_cache", countFromCache(results),
	)
	return calendars, nil
}

func (p *Provider) observe(feeds []Feed, result string) {
	for _, f := range feeds {
		p.observeOne(f.ID, result)
	}
}

func (p *Provider) observeOne(feedID, result string) {
	if p.observer != nil {
		p.observer.ObserveFetch(feedID, result)
	}
}

func countFromCache(results []FetchResult) int {
	n := 0
	for _, r := range results {
		if r.FromCache {
			n++
		}
	}
	return n
}
