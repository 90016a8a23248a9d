// Package mock provides an in-memory test double for the [store.SetStore]
// and [store.VoteStore] interfaces.
//
// The mock is functional: inserts, deletes, votes and feed reads behave like
// the real store over an in-memory map, so service tests can exercise whole
// flows without a database. Exported *Err fields force failures for error
// path tests, and every method invocation is recorded.
//
// Typical usage:
//
//	st := mock.NewStore()
//	_ = st.InsertSet(ctx, store.Set{ID: "s1", OwnerID: "u1", Posted: true})
//
//	st.InsertSetErr = errors.New("boom") // subsequent inserts fail
//
//	if got := st.CallCount("InsertSet"); got != 2 {
//	    t.Errorf("expected 2 InsertSet calls, got %d", got)
//	}
package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/areufunny/areufunny/internal/store"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Compile-time interface checks.
var (
	_ store.SetStore  = (*Store)(nil)
	_ store.VoteStore = (*Store)(nil)
)

// Store is a functional in-memory [store.SetStore] and [store.VoteStore].
// Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	sets  map[string]store.Set
	votes map[string]map[string]int // set ID → user ID → value
	calls []Call

	// Now supplies the current time for feed ranking and defaults to
	// [time.Now]. Override for deterministic hot-tab tests.
	Now func() time.Time

	// InsertSetErr is returned by InsertSet when non-nil.
	InsertSetErr error

	// GetSetErr is returned by GetSet when non-nil.
	GetSetErr error

	// DeleteSetErr is returned by DeleteSet when non-nil.
	DeleteSetErr error

	// MarkPostedErr is returned by MarkPosted when non-nil.
	MarkPostedErr error

	// FeedPageErr is returned by FeedPage when non-nil.
	FeedPageErr error

	// ListSetsByOwnerErr is returned by ListSetsByOwner when non-nil.
	ListSetsByOwnerErr error

	// CountPostedSinceErr is returned by CountPostedSince when non-nil.
	CountPostedSinceErr error

	// CastVoteErr is returned by CastVote when non-nil.
	CastVoteErr error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sets:  make(map[string]store.Set),
		votes: make(map[string]map[string]int),
		Now:   time.Now,
	}
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// InsertSet implements [store.SetStore].
func (m *Store) InsertSet(_ context.Context, set store.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "InsertSet", Args: []any{set}})
	if m.InsertSetErr != nil {
		return m.InsertSetErr
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = m.Now()
	}
	m.sets[set.ID] = set
	return nil
}

// GetSet implements [store.SetStore].
func (m *Store) GetSet(_ context.Context, id string) (store.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetSet", Args: []any{id}})
	if m.GetSetErr != nil {
		return store.Set{}, m.GetSetErr
	}
	set, ok := m.sets[id]
	if !ok {
		return store.Set{}, store.ErrSetNotFound
	}
	return set, nil
}

// DeleteSet implements [store.SetStore].
func (m *Store) DeleteSet(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteSet", Args: []any{id, ownerID}})
	if m.DeleteSetErr != nil {
		return m.DeleteSetErr
	}
	set, ok := m.sets[id]
	if !ok {
		return store.ErrSetNotFound
	}
	if set.OwnerID != ownerID {
		return store.ErrNotOwner
	}
	delete(m.sets, id)
	delete(m.votes, id)
	return nil
}

// MarkPosted implements [store.SetStore].
func (m *Store) MarkPosted(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "MarkPosted", Args: []any{id, ownerID}})
	if m.MarkPostedErr != nil {
		return m.MarkPostedErr
	}
	set, ok := m.sets[id]
	if !ok {
		return store.ErrSetNotFound
	}
	if set.OwnerID != ownerID {
		return store.ErrNotOwner
	}
	set.Posted = true
	m.sets[id] = set
	return nil
}

// FeedPage implements [store.SetStore].
func (m *Store) FeedPage(_ context.Context, tab store.FeedTab, callerID string, page store.Page) ([]store.FeedEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "FeedPage", Args: []any{tab, callerID, page}})
	if m.FeedPageErr != nil {
		return nil, false, m.FeedPageErr
	}

	now := m.Now()
	var entries []store.FeedEntry
	for _, set := range m.sets {
		if !set.Posted {
			continue
		}
		entries = append(entries, store.FeedEntry{
			Set:        set,
			CallerVote: m.votes[set.ID][callerID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch tab {
		case store.FeedTop:
			if a.Score() != b.Score() {
				return a.Score() > b.Score()
			}
		case store.FeedWorst:
			if a.Score() != b.Score() {
				return a.Score() < b.Score()
			}
		case store.FeedHot:
			ra, rb := hotRank(a.Set, now), hotRank(b.Set, now)
			if ra != rb {
				return ra > rb
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if page.Offset >= len(entries) {
		return nil, false, nil
	}
	entries = entries[page.Offset:]
	hasMore := len(entries) > page.Limit
	if hasMore {
		entries = entries[:page.Limit]
	}
	return entries, hasMore, nil
}

// ListSetsByOwner implements [store.SetStore].
func (m *Store) ListSetsByOwner(_ context.Context, ownerID string, page store.Page) ([]store.Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "ListSetsByOwner", Args: []any{ownerID, page}})
	if m.ListSetsByOwnerErr != nil {
		return nil, false, m.ListSetsByOwnerErr
	}

	var sets []store.Set
	for _, set := range m.sets {
		if set.OwnerID == ownerID {
			sets = append(sets, set)
		}
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})

	if page.Offset >= len(sets) {
		return nil, false, nil
	}
	sets = sets[page.Offset:]
	hasMore := len(sets) > page.Limit
	if hasMore {
		sets = sets[:page.Limit]
	}
	return sets, hasMore, nil
}

// hotRank mirrors the production store's decayed-score ordering.
func hotRank(s store.Set, now time.Time) float64 {
	hours := now.Sub(s.CreatedAt).Hours()
	return float64(s.Score()) / math.Pow(hours+2, 1.5)
}

// CountPostedSince implements [store.SetStore].
func (m *Store) CountPostedSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CountPostedSince", Args: []any{ownerID, since}})
	if m.CountPostedSinceErr != nil {
		return 0, m.CountPostedSinceErr
	}
	n := 0
	for _, set := range m.sets {
		if set.OwnerID == ownerID && set.Posted && !set.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// CastVote implements [store.VoteStore].
func (m *Store) CastVote(_ context.Context, v store.Vote) (store.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CastVote", Args: []any{v}})
	if m.CastVoteErr != nil {
		return store.Set{}, m.CastVoteErr
	}
	if v.Value != 1 && v.Value != -1 {
		return store.Set{}, store.ErrInvalidVote
	}
	set, ok := m.sets[v.SetID]
	if !ok {
		return store.Set{}, store.ErrSetNotFound
	}

	if m.votes[v.SetID] == nil {
		m.votes[v.SetID] = make(map[string]int)
	}
	old := m.votes[v.SetID][v.UserID]
	m.votes[v.SetID][v.UserID] = v.Value

	if v.Value == 1 && old != 1 {
		set.UpVotes++
	}
	if v.Value != 1 && old == 1 {
		set.UpVotes--
	}
	if v.Value == -1 && old != -1 {
		set.DownVotes++
	}
	if v.Value != -1 && old == -1 {
		set.DownVotes--
	}
	m.sets[v.SetID] = set
	return set, nil
}
