// Package store defines the persistence model for areufunny: recorded sets,
// votes, and the ranked feed reads the HTTP surface serves. Implementations
// live in subpackages (postgres for production, mock for tests).
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations.
var (
	// ErrSetNotFound means the referenced set does not exist.
	ErrSetNotFound = errors.New("store: set not found")

	// ErrNotOwner means the caller tried to modify a set they do not own.
	ErrNotOwner = errors.New("store: caller does not own this set")

	// ErrInvalidVote means the vote value was not +1 or -1.
	ErrInvalidVote = errors.New("store: vote value must be +1 or -1")
)

// Set is one recorded one-minute set.
type Set struct {
	// ID is the set's unique identifier (UUID).
	ID string

	// OwnerID identifies the user who recorded the set.
	OwnerID string

	// AudioURL is the public location of the encoded audio in object
	// storage.
	AudioURL string

	// Duration is the recorded length.
	Duration time.Duration

	// Waveform is the amplitude summary collected during capture, one
	// sample per cadence tick, each in [0, 100].
	Waveform []float64

	// Codec is the codec identifier the audio was encoded with.
	Codec string

	// Posted reports whether the set is visible in the public feed.
	// A freshly uploaded set starts unposted; the owner either posts or
	// scratches it.
	Posted bool

	// UpVotes and DownVotes are the maintained tallies.
	UpVotes   int
	DownVotes int

	// CreatedAt is when the set row was inserted.
	CreatedAt time.Time
}

// Score is the set's net vote score.
func (s Set) Score() int { return s.UpVotes - s.DownVotes }

// Vote is one user's verdict on one set. At most one row exists per
// (set, user); re-voting replaces the previous value.
type Vote struct {
	SetID  string
	UserID string

	// Value is +1 (funny) or -1 (not funny).
	Value int
}

// FeedTab selects the ordering of a feed page.
type FeedTab string

const (
	// FeedNew orders by creation time, newest first.
	FeedNew FeedTab = "new"

	// FeedTop orders by net score, highest first.
	FeedTop FeedTab = "top"

	// FeedHot orders recent sets by a time-decayed score.
	FeedHot FeedTab = "hot"

	// FeedWorst orders by net score, lowest first. Bombing on stage is
	// content too.
	FeedWorst FeedTab = "worst"
)

// Valid reports whether t names a known tab.
func (t FeedTab) Valid() bool {
	switch t {
	case FeedNew, FeedTop, FeedHot, FeedWorst:
		return true
	}
	return false
}

// Page is a limit/offset window into a feed.
type Page struct {
	Limit  int
	Offset int
}

// FeedEntry is one set as seen by a particular caller.
type FeedEntry struct {
	Set

	// CallerVote is the requesting user's own vote on this set:
	// +1, -1, or 0 when they have not voted.
	CallerVote int
}

// SetStore persists sets and serves ranked feed pages.
type SetStore interface {
	// InsertSet stores a new set row.
	InsertSet(ctx context.Context, set Set) error

	// GetSet returns one set by ID. Returns [ErrSetNotFound] when absent.
	GetSet(ctx context.Context, id string) (Set, error)

	// DeleteSet removes a set owned by ownerID. Returns [ErrSetNotFound]
	// when absent and [ErrNotOwner] when owned by someone else.
	DeleteSet(ctx context.Context, id, ownerID string) error

	// MarkPosted flips a set owned by ownerID into the public feed.
	// Same error contract as DeleteSet.
	MarkPosted(ctx context.Context, id, ownerID string) error

	// FeedPage returns one page of posted sets in the tab's order,
	// annotated with callerID's own votes, and reports whether more pages
	// follow.
	FeedPage(ctx context.Context, tab FeedTab, callerID string, page Page) ([]FeedEntry, bool, error)

	// ListSetsByOwner returns one page of ownerID's own sets, newest
	// first, posted or not. Backs the history view.
	ListSetsByOwner(ctx context.Context, ownerID string, page Page) ([]Set, bool, error)

	// CountPostedSince counts sets ownerID has posted at or after since.
	// Backs the daily post limit.
	CountPostedSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}

// VoteStore records votes and maintains the tallies on the set row.
type VoteStore interface {
	// CastVote upserts v and returns the set with updated tallies.
	// Re-casting the same value is a no-op on the tallies.
	CastVote(ctx context.Context, v Vote) (Set, error)
}
