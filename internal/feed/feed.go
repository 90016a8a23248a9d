// Package feed serves the ranked set listings and records votes.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/areufunny/areufunny/internal/observe"
	"github.com/areufunny/areufunny/internal/store"
)

// DefaultPageSize is how many sets one feed page carries.
const DefaultPageSize = 10

// MaxPageSize caps a caller-requested page size.
const MaxPageSize = 50

// ErrUnknownTab means the requested tab is not one of new, top, hot, or
// worst.
var ErrUnknownTab = errors.New("feed: unknown tab")

// Page is one feed page.
type Page struct {
	Entries []store.FeedEntry
	HasMore bool
}

// Service reads feed pages and casts votes. Safe for concurrent use.
type Service struct {
	sets    store.SetStore
	votes   store.VoteStore
	metrics *observe.Metrics
}

// NewService builds a feed service. metrics may be nil for
// [observe.DefaultMetrics].
func NewService(sets store.SetStore, votes store.VoteStore, metrics *observe.Metrics) (*Service, error) {
	var errs []error
	if sets == nil {
		errs = append(errs, errors.New("feed: set store is required"))
	}
	if votes == nil {
		errs = append(errs, errors.New("feed: vote store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Service{sets: sets, votes: votes, metrics: metrics}, nil
}

// Page returns one page of the tab for callerID. A non-positive limit takes
// [DefaultPageSize]; limits above [MaxPageSize] are clamped; a negative
// offset is treated as zero.
func (s *Service) Page(ctx context.Context, tab store.FeedTab, callerID string, limit, offset int) (Page, error) {
	if !tab.Valid() {
		return Page{}, fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	entries, hasMore, err := s.sets.FeedPage(ctx, tab, callerID, store.Page{Limit: limit, Offset: offset})
	if err != nil {
		return Page{}, fmt.Errorf("feed: read page: %w", err)
	}
	return Page{Entries: entries, HasMore: hasMore}, nil
}

// Vote records userID's verdict on a set and returns the set with updated
// tallies. Casting the same value again is a no-op on the tallies.
func (s *Service) Vote(ctx context.Context, setID, userID string, value int) (store.Set, error) {
	set, err := s.votes.CastVote(ctx, store.Vote{SetID: setID, UserID: userID, Value: value})
	if err != nil {
		return store.Set{}, fmt.Errorf("feed: cast vote: %w", err)
	}
	s.metrics.RecordVote(ctx, value)
	return set, nil
}
