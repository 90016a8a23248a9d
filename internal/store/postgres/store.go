package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/areufunny/areufunny/internal/store"
)

// Compile-time interface checks.
var (
	_ store.SetStore  = (*Store)(nil)
	_ store.VoteStore = (*Store)(nil)
)

// Store is the PostgreSQL-backed implementation of [store.SetStore] and
// [store.VoteStore]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertSet implements [store.SetStore].
func (s *Store) InsertSet(ctx context.Context, set store.Set) error {
	const q = `
		INSERT INTO sets
		    (id, owner_id, audio_url, duration_ms, waveform, codec, posted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	waveform := set.Waveform
	if waveform == nil {
		waveform = []float64{}
	}
	_, err := s.pool.Exec(ctx, q,
		set.ID,
		set.OwnerID,
		set.AudioURL,
		set.Duration.Milliseconds(),
		waveform,
		set.Codec,
		set.Posted,
	)
	if err != nil {
		return fmt.Errorf("postgres store: insert set: %w", err)
	}
	return nil
}

const setColumns = `id, owner_id, audio_url, duration_ms, waveform, codec, posted, up_votes, down_votes, created_at`

// GetSet implements [store.SetStore].
func (s *Store) GetSet(ctx context.Context, id string) (store.Set, error) {
	q := `SELECT ` + setColumns + ` FROM sets WHERE id = $1`

	set, err := scanSet(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Set{}, store.ErrSetNotFound
	}
	if err != nil {
		return store.Set{}, fmt.Errorf("postgres store: get set: %w", err)
	}
	return set, nil
}

// DeleteSet implements [store.SetStore].
func (s *Store) DeleteSet(ctx context.Context, id, ownerID string) error {
	if err := s.checkOwner(ctx, id, ownerID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM sets WHERE id = $1 AND owner_id = $2`, id, ownerID); err != nil {
		return fmt.Errorf("postgres store: delete set: %w", err)
	}
	return nil
}

// MarkPosted implements [store.SetStore].
func (s *Store) MarkPosted(ctx context.Context, id, ownerID string) error {
	if err := s.checkOwner(ctx, id, ownerID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `UPDATE sets SET posted = TRUE WHERE id = $1 AND owner_id = $2`, id, ownerID); err != nil {
		return fmt.Errorf("postgres store: mark posted: %w", err)
	}
	return nil
}

// checkOwner distinguishes a missing set from a foreign one so the caller
// can return the right status code.
func (s *Store) checkOwner(ctx context.Context, id, ownerID string) error {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT owner_id FROM sets WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrSetNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres store: check owner: %w", err)
	}
	if owner != ownerID {
		return store.ErrNotOwner
	}
	return nil
}

// FeedPage implements [store.SetStore]. It reads limit+1 rows to compute the
// has-more flag without a separate count query.
func (s *Store) FeedPage(ctx context.Context, tab store.FeedTab, callerID string, page store.Page) ([]store.FeedEntry, bool, error) {
	var order string
	switch tab {
	case store.FeedNew:
		order = `s.created_at DESC`
	case store.FeedTop:
		order = `(s.up_votes - s.down_votes) DESC, s.created_at DESC`
	case store.FeedWorst:
		order = `(s.up_votes - s.down_votes) ASC, s.created_at DESC`
	case store.FeedHot:
		// Net score decayed by age, ranking recent well-received sets above
		// old high scorers.
		order = `((s.up_votes - s.down_votes)::double precision
		          / power(EXTRACT(EPOCH FROM (now() - s.created_at)) / 3600 + 2, 1.5)) DESC,
		         s.created_at DESC`
	default:
		return nil, false, fmt.Errorf("postgres store: unknown feed tab %q", tab)
	}

	q := `
		SELECT s.id, s.owner_id, s.audio_url, s.duration_ms, s.waveform, s.codec,
		       s.posted, s.up_votes, s.down_votes, s.created_at,
		       COALESCE(v.value, 0)
		FROM   sets s
		LEFT   JOIN votes v ON v.set_id = s.id AND v.user_id = $1
		WHERE  s.posted
		ORDER  BY ` + order + `
		LIMIT  $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, q, callerID, page.Limit+1, page.Offset)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: feed page: %w", err)
	}
	defer rows.Close()

	var entries []store.FeedEntry
	for rows.Next() {
		var (
			entry      store.FeedEntry
			durationMS int64
			callerVote int16
		)
		err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.AudioURL, &durationMS,
			&entry.Waveform, &entry.Codec, &entry.Posted,
			&entry.UpVotes, &entry.DownVotes, &entry.CreatedAt,
			&callerVote,
		)
		if err != nil {
			return nil, false, fmt.Errorf("postgres store: scan feed row: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.CallerVote = int(callerVote)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("postgres store: feed page: %w", err)
	}

	hasMore := len(entries) > page.Limit
	if hasMore {
		entries = entries[:page.Limit]
	}
	return entries, hasMore, nil
}

// ListSetsByOwner implements [store.SetStore]. Like FeedPage it reads
// limit+1 rows to compute the has-more flag.
func (s *Store) ListSetsByOwner(ctx context.Context, ownerID string, page store.Page) ([]store.Set, bool, error) {
	q := `SELECT ` + setColumns + `
		FROM   sets
		WHERE  owner_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, q, ownerID, page.Limit+1, page.Offset)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: list by owner: %w", err)
	}
	defer rows.Close()

	var sets []store.Set
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, false, fmt.Errorf("postgres store: scan owner row: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("postgres store: list by owner: %w", err)
	}

	hasMore := len(sets) > page.Limit
	if hasMore {
		sets = sets[:page.Limit]
	}
	return sets, hasMore, nil
}

// CountPostedSince implements [store.SetStore].
func (s *Store) CountPostedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	const q = `SELECT count(*) FROM sets WHERE owner_id = $1 AND posted AND created_at >= $2`

	var n int
	if err := s.pool.QueryRow(ctx, q, ownerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres store: count posted: %w", err)
	}
	return n, nil
}

// CastVote implements [store.VoteStore]. The upsert and the tally update run
// as one statement: the CTE reads the previous vote from the pre-statement
// snapshot, so the tally deltas are exact even when a vote is replaced.
func (s *Store) CastVote(ctx context.Context, v store.Vote) (store.Set, error) {
	if v.Value != 1 && v.Value != -1 {
		return store.Set{}, store.ErrInvalidVote
	}

	q := `
		WITH prev AS (
		    SELECT value FROM votes WHERE set_id = $1 AND user_id = $2
		), upsert AS (
		    INSERT INTO votes (set_id, user_id, value)
		    VALUES ($1, $2, $3)
		    ON CONFLICT (set_id, user_id) DO UPDATE SET value = EXCLUDED.value
		)
		UPDATE sets SET
		    up_votes   = up_votes
		                 + (CASE WHEN $3 = 1 THEN 1 ELSE 0 END)
		                 - (CASE WHEN COALESCE((SELECT value FROM prev), 0) = 1 THEN 1 ELSE 0 END),
		    down_votes = down_votes
		                 + (CASE WHEN $3 = -1 THEN 1 ELSE 0 END)
		                 - (CASE WHEN COALESCE((SELECT value FROM prev), 0) = -1 THEN 1 ELSE 0 END)
		WHERE id = $1
		RETURNING ` + setColumns

	set, err := scanSet(s.pool.QueryRow(ctx, q, v.SetID, v.UserID, v.Value))
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.Set{}, store.ErrSetNotFound
	case errors.As(err, &pgErr) && pgErr.Code == "23503":
		// Foreign key violation: the vote referenced a set that does not exist.
		return store.Set{}, store.ErrSetNotFound
	case err != nil:
		return store.Set{}, fmt.Errorf("postgres store: cast vote: %w", err)
	}
	return set, nil
}

// scanSet reads one full sets row in setColumns order.
func scanSet(row pgx.Row) (store.Set, error) {
	var (
		set        store.Set
		durationMS int64
	)
	err := row.Scan(
		&set.ID, &set.OwnerID, &set.AudioURL, &durationMS,
		&set.Waveform, &set.Codec, &set.Posted,
		&set.UpVotes, &set.DownVotes, &set.CreatedAt,
	)
	if err != nil {
		return store.Set{}, err
	}
	set.Duration = time.Duration(durationMS) * time.Millisecond
	return set, nil
}
