package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"freecal/internal/availability"
	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// OwnSource delivers the user's calendars for the week starting at weekStart.
type OwnSource interface {
	Fetch(ctx context.Context, weekStart time.Time) ([]model.Calendar, error)
}

// FriendSource delivers a friend's calendars for the week starting at weekStart.
type FriendSource interface {
	FetchFriend(ctx context.Context, weekStart time.Time, userID string) ([]model.Calendar, error)
}

// Loader runs the fetches for a Request and hands the results to the
// session. The friend fetch is skipped when no friend is selected.
type Loader struct {
	own     OwnSource
	friends FriendSource
	now     func() time.Time
}

func NewLoader(own OwnSource, friends FriendSource) *Loader {
	return &Loader{own: own, friends: friends, now: time.Now}
}

// Load fetches both sources concurrently and applies the result. A failed
// source leaves its side of the session as it was (not loaded after a
// navigation). It reports whether the response was applied; false means a
// newer request superseded this one.
func (l *Loader) Load(ctx context.Context, s *Session, req Request) (bool, error) {
	var (
		ownSnap, friendSnap *availability.Snapshot
		ownErr, friendErr   error
	)

	// Errors are collected per source so one failing side does not cancel
	// the other.
	var g errgroup.Group
	g.Go(func() error {
		cals, err := l.own.Fetch(ctx, req.Anchor.Time)
		if err != nil {
			ownErr = fmt.Errorf("own calendars: %w", err)
			return nil
		}
		ownSnap = &availability.Snapshot{Calendars: cals, FetchedAt: l.now()}
		return nil
	})
	if req.FriendID != "" && l.friends != nil {
		g.Go(func() error {
			cals, err := l.friends.FetchFriend(ctx, req.Anchor.Time, req.FriendID)
			if err != nil {
				friendErr = fmt.Errorf("friend %q calendars: %w", req.FriendID, err)
				return nil
			}
			friendSnap = &availability.Snapshot{Calendars: cals, FetchedAt: l.now()}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(ownErr, friendErr)
	if err != nil {
		appLog.Error("query load incomplete", err, "token", req.Token, "anchor", req.Anchor.Time)
	}

	applied := s.Apply(req, ownSnap, friendSnap)
	return applied, err
}

// Refresh reloads the session's current query.
func (l *Loader) Refresh(ctx context.Context, s *Session) (bool, error) {
	return l.Load(ctx, s, s.Current())
}
