// Package upload turns a finished capture into a stored set: it validates
// the result, writes the audio to object storage, inserts the set row, and
// casts the owner's automatic first upvote. It also covers the owner's two
// follow-up actions, posting a set to the feed and scratching it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/areufunny/areufunny/internal/blob"
	"github.com/areufunny/areufunny/internal/observe"
	"github.com/areufunny/areufunny/internal/store"
	"github.com/areufunny/areufunny/pkg/capture"
)

// Validation errors returned by [Pipeline.Publish].
var (
	// ErrEmptyPayload means the capture produced no audio data.
	ErrEmptyPayload = errors.New("upload: capture produced an empty payload")

	// ErrBelowMinimumDuration means the capture is shorter than the
	// publishable floor.
	ErrBelowMinimumDuration = errors.New("upload: capture is below the minimum duration")

	// ErrDailyLimitReached means the owner has already posted the maximum
	// number of sets for the day.
	ErrDailyLimitReached = errors.New("upload: daily post limit reached")
)

// Config holds the dependencies and policy for a [Pipeline].
type Config struct {
	// Blobs is the object storage audio payloads are written to. Required.
	Blobs blob.Store

	// Sets persists set rows. Required.
	Sets store.SetStore

	// Votes records the automatic initial self-upvote. Required.
	Votes store.VoteStore

	// MinValid is the floor below which a capture cannot be published.
	// Zero takes [capture.DefaultMinValid].
	MinValid time.Duration

	// DailyPostLimit caps how many sets one owner may post per day.
	// Zero or negative disables the limit.
	DailyPostLimit int

	// Metrics records upload instruments. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now supplies the current time for object keys and limit windows.
	// Defaults to [time.Now].
	Now func() time.Time
}

// Pipeline publishes capture results. Safe for concurrent use. The policy
// knobs (minimum duration, daily limit) can be changed at runtime with
// [Pipeline.SetPolicy].
type Pipeline struct {
	blobs    blob.Store
	sets     store.SetStore
	votes    store.VoteStore
	minValid atomic.Int64 // nanoseconds
	limit    atomic.Int32
	metrics  *observe.Metrics
	now      func() time.Time
}

// NewPipeline validates cfg and builds a pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	var errs []error
	if cfg.Blobs == nil {
		errs = append(errs, errors.New("upload: blob store is required"))
	}
	if cfg.Sets == nil {
		errs = append(errs, errors.New("upload: set store is required"))
	}
	if cfg.Votes == nil {
		errs = append(errs, errors.New("upload: vote store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Pipeline{
		blobs:   cfg.Blobs,
		sets:    cfg.Sets,
		votes:   cfg.Votes,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	p.SetPolicy(cfg.MinValid, cfg.DailyPostLimit)
	return p, nil
}

// SetPolicy replaces the publish floor and daily post limit. Zero or
// negative minValid restores [capture.DefaultMinValid]; zero or negative
// dailyLimit disables the limit. In-flight publishes keep the policy they
// started with.
func (p *Pipeline) SetPolicy(minValid time.Duration, dailyLimit int) {
	if minValid <= 0 {
		minValid = capture.DefaultMinValid
	}
	if dailyLimit < 0 {
		dailyLimit = 0
	}
	p.minValid.Store(int64(minValid))
	p.limit.Store(int32(dailyLimit))
}

// Publish stores res as a new unposted set owned by ownerID and returns the
// inserted set with the owner's automatic upvote already applied.
//
// Validation failures surface as [ErrEmptyPayload] or
// [ErrBelowMinimumDuration] before anything is written. When the row insert
// fails after the audio upload succeeded, the orphaned object is deleted on
// a best-effort basis.
func (p *Pipeline) Publish(ctx context.Context, ownerID string, res capture.Result) (store.Set, error) {
	start := p.now()

	if len(res.Payload) == 0 {
		p.metrics.RecordUpload(ctx, "rejected", 0)
		return store.Set{}, ErrEmptyPayload
	}
	if minValid := time.Duration(p.minValid.Load()); res.Duration < minValid {
		p.metrics.RecordUpload(ctx, "rejected", 0)
		return store.Set{}, fmt.Errorf("%w: got %v, need %v", ErrBelowMinimumDuration, res.Duration, minValid)
	}

	key := objectKey(ownerID, start, res.Codec)
	url, err := p.blobs.Put(ctx, key, contentType(res.Codec), res.Payload)
	if err != nil {
		p.metrics.RecordUpload(ctx, "error", 0)
		return store.Set{}, fmt.Errorf("upload: store audio: %w", err)
	}

	set := store.Set{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		AudioURL: url,
		Duration: res.Duration,
		Waveform: res.Waveform,
		Codec:    res.Codec,
	}
	if err := p.sets.InsertSet(ctx, set); err != nil {
		if delErr := p.blobs.Delete(ctx, key); delErr != nil {
			slog.Warn("upload: orphaned object cleanup failed", "key", key, "err", delErr)
		}
		p.metrics.RecordUpload(ctx, "error", 0)
		return store.Set{}, fmt.Errorf("upload: insert set: %w", err)
	}

	// Everyone thinks their own set is funny.
	updated, err := p.votes.CastVote(ctx, store.Vote{SetID: set.ID, UserID: ownerID, Value: 1})
	if err != nil {
		slog.Warn("upload: initial self-upvote failed", "set_id", set.ID, "err", err)
		updated = set
	}

	p.metrics.RecordUpload(ctx, "ok", p.now().Sub(start))
	slog.Info("set published",
		"set_id", set.ID,
		"owner_id", ownerID,
		"duration", res.Duration,
		"payload_bytes", len(res.Payload),
		"codec", res.Codec,
	)
	return updated, nil
}

// Post makes a set visible in the public feed. When a daily post limit is
// configured, posting past it returns [ErrDailyLimitReached].
func (p *Pipeline) Post(ctx context.Context, id, ownerID string) error {
	if limit := int(p.limit.Load()); limit > 0 {
		dayStart := p.now().Truncate(24 * time.Hour)
		n, err := p.sets.CountPostedSince(ctx, ownerID, dayStart)
		if err != nil {
			return fmt.Errorf("upload: count posted: %w", err)
		}
		if n >= limit {
			return ErrDailyLimitReached
		}
	}
	if err := p.sets.MarkPosted(ctx, id, ownerID); err != nil {
		return fmt.Errorf("upload: post set: %w", err)
	}
	return nil
}

// Scratch discards a set the owner decided against, removing both the row
// and the stored audio.
func (p *Pipeline) Scratch(ctx context.Context, id, ownerID string) error {
	set, err := p.sets.GetSet(ctx, id)
	if err != nil {
		return fmt.Errorf("upload: scratch: %w", err)
	}
	if err := p.sets.DeleteSet(ctx, id, ownerID); err != nil {
		return fmt.Errorf("upload: scratch: %w", err)
	}
	if key, ok := keyFromURL(set.AudioURL); ok {
		if err := p.blobs.Delete(ctx, key); err != nil {
			slog.Warn("upload: scratched audio cleanup failed", "set_id", id, "err", err)
		}
	}
	return nil
}

// objectKey builds the storage key for a capture's audio:
// "<owner>/<RFC3339 timestamp><extension>".
func objectKey(ownerID string, at time.Time, codec string) string {
	return ownerID + "/" + at.UTC().Format(time.RFC3339) + extension(codec)
}

// extension maps a codec identifier to a file extension, defaulting to the
// opus-in-webm container.
func extension(codec string) string {
	switch {
	case strings.HasPrefix(codec, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(codec, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(codec, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(codec, "audio/opus"):
		return ".opus"
	default:
		return ".webm"
	}
}

// contentType strips codec parameters from the identifier for the storage
// metadata, defaulting to audio/webm.
func contentType(codec string) string {
	if codec == "" {
		return "audio/webm"
	}
	if i := strings.IndexByte(codec, ';'); i >= 0 {
		return codec[:i]
	}
	return codec
}

// keyFromURL recovers the object key from a stored audio URL. The key is the
// last two path segments (owner and file name).
func keyFromURL(url string) (string, bool) {
	parts := strings.Split(url, "/")
	if len(parts) < 2 {
		return "", false
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], true
}
