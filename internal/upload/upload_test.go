package upload_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	blobmock "github.com/areufunny/areufunny/internal/blob/mock"
	"github.com/areufunny/areufunny/internal/store"
	storemock "github.com/areufunny/areufunny/internal/store/mock"
	"github.com/areufunny/areufunny/internal/upload"
	"github.com/areufunny/areufunny/pkg/capture"
)

var testTime = time.Date(2026, 8, 14, 21, 30, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, limit int) (*upload.Pipeline, *blobmock.Store, *storemock.Store) {
	t.Helper()

	blobs := blobmock.NewStore()
	st := storemock.NewStore()
	st.Now = func() time.Time { return testTime }

	p, err := upload.NewPipeline(upload.Config{
		Blobs:          blobs,
		Sets:           st,
		Votes:          st,
		DailyPostLimit: limit,
		Now:            func() time.Time { return testTime },
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, blobs, st
}

func goodResult() capture.Result {
	return capture.Result{
		Payload:  []byte("encoded-audio"),
		Duration: 12345 * time.Millisecond,
		Waveform: []float64{10, 25, 40},
		Codec:    "audio/webm;codecs=opus",
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	p, blobs, st := newTestPipeline(t, 0)
	ctx := context.Background()

	set, err := p.Publish(ctx, "user-1", goodResult())
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if set.OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want %q", set.OwnerID, "user-1")
	}
	if set.Duration != 12345*time.Millisecond {
		t.Errorf("Duration = %v, want %v", set.Duration, 12345*time.Millisecond)
	}
	if set.Posted {
		t.Error("a freshly published set must start unposted")
	}
	if set.UpVotes != 1 || set.DownVotes != 0 {
		t.Errorf("tallies = %d/%d, want 1/0 after the automatic self-upvote", set.UpVotes, set.DownVotes)
	}
	if set.ID == "" {
		t.Error("set ID should not be empty")
	}

	wantKey := "user-1/" + testTime.Format(time.RFC3339) + ".webm"
	obj, ok := blobs.Object(wantKey)
	if !ok {
		t.Fatalf("audio object %q not stored", wantKey)
	}
	if obj.ContentType != "audio/webm" {
		t.Errorf("content type = %q, want %q", obj.ContentType, "audio/webm")
	}
	if string(obj.Data) != "encoded-audio" {
		t.Errorf("stored payload = %q, want %q", obj.Data, "encoded-audio")
	}
	if !strings.HasSuffix(set.AudioURL, wantKey) {
		t.Errorf("AudioURL = %q, want suffix %q", set.AudioURL, wantKey)
	}

	stored, err := st.GetSet(ctx, set.ID)
	if err != nil {
		t.Fatalf("GetSet: %v", err)
	}
	if stored.UpVotes != 1 {
		t.Errorf("stored tallies = %d up, want 1", stored.UpVotes)
	}
}

func TestPublish_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*capture.Result)
		wantErr error
	}{
		{
			name:    "empty payload",
			mutate:  func(r *capture.Result) { r.Payload = nil },
			wantErr: upload.ErrEmptyPayload,
		},
		{
			name:    "below minimum duration",
			mutate:  func(r *capture.Result) { r.Duration = 400 * time.Millisecond },
			wantErr: upload.ErrBelowMinimumDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, blobs, st := newTestPipeline(t, 0)
			res := goodResult()
			tt.mutate(&res)

			_, err := p.Publish(context.Background(), "user-1", res)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if blobs.CallCountPut != 0 {
				t.Error("rejected capture must not reach object storage")
			}
			if st.CallCount("InsertSet") != 0 {
				t.Error("rejected capture must not reach the set store")
			}
		})
	}
}

func TestPublish_BlobFailure(t *testing.T) {
	t.Parallel()

	p, blobs, st := newTestPipeline(t, 0)
	blobs.PutErr = errors.New("bucket unavailable")

	_, err := p.Publish(context.Background(), "user-1", goodResult())
	if err == nil {
		t.Fatal("Publish() returned nil, want error")
	}
	if st.CallCount("InsertSet") != 0 {
		t.Error("no set row may be inserted when the upload failed")
	}
}

func TestPublish_InsertFailureCleansUpObject(t *testing.T) {
	t.Parallel()

	p, blobs, st := newTestPipeline(t, 0)
	st.InsertSetErr = errors.New("database down")

	_, err := p.Publish(context.Background(), "user-1", goodResult())
	if err == nil {
		t.Fatal("Publish() returned nil, want error")
	}
	if blobs.CallCountDelete != 1 {
		t.Fatalf("orphan cleanup deletes = %d, want 1", blobs.CallCountDelete)
	}
	wantKey := "user-1/" + testTime.Format(time.RFC3339) + ".webm"
	if blobs.DeletedKeys[0] != wantKey {
		t.Errorf("cleaned up key = %q, want %q", blobs.DeletedKeys[0], wantKey)
	}
	if blobs.Len() != 0 {
		t.Errorf("objects left in storage = %d, want 0", blobs.Len())
	}
}

func TestPost(t *testing.T) {
	t.Parallel()

	p, _, st := newTestPipeline(t, 0)
	ctx := context.Background()

	set, err := p.Publish(ctx, "user-1", goodResult())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Post(ctx, set.ID, "user-1"); err != nil {
		t.Fatalf("Post() error: %v", err)
	}

	stored, err := st.GetSet(ctx, set.ID)
	if err != nil {
		t.Fatalf("GetSet: %v", err)
	}
	if !stored.Posted {
		t.Error("set was not marked posted")
	}
}

func TestPost_DailyLimit(t *testing.T) {
	t.Parallel()

	p, _, st := newTestPipeline(t, 1)
	ctx := context.Background()

	// One set already posted today.
	if err := st.InsertSet(ctx, store.Set{
		ID: "earlier", OwnerID: "user-1", Posted: true, CreatedAt: testTime.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("InsertSet: %v", err)
	}

	set, err := p.Publish(ctx, "user-1", goodResult())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Post(ctx, set.ID, "user-1"); !errors.Is(err, upload.ErrDailyLimitReached) {
		t.Fatalf("Post() error = %v, want %v", err, upload.ErrDailyLimitReached)
	}
}

func TestSetPolicy(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, 0)
	ctx := context.Background()

	// Raise the floor above the result's duration.
	p.SetPolicy(20*time.Second, 0)
	if _, err := p.Publish(ctx, "user-1", goodResult()); !errors.Is(err, upload.ErrBelowMinimumDuration) {
		t.Fatalf("Publish() error = %v, want %v", err, upload.ErrBelowMinimumDuration)
	}

	// Lower it back down and the same result goes through.
	p.SetPolicy(time.Second, 0)
	if _, err := p.Publish(ctx, "user-1", goodResult()); err != nil {
		t.Fatalf("Publish() after relax: %v", err)
	}
}

func TestScratch(t *testing.T) {
	t.Parallel()

	p, blobs, st := newTestPipeline(t, 0)
	ctx := context.Background()

	set, err := p.Publish(ctx, "user-1", goodResult())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Scratch(ctx, set.ID, "user-1"); err != nil {
		t.Fatalf("Scratch() error: %v", err)
	}

	if _, err := st.GetSet(ctx, set.ID); !errors.Is(err, store.ErrSetNotFound) {
		t.Errorf("GetSet after scratch error = %v, want %v", err, store.ErrSetNotFound)
	}
	if blobs.Len() != 0 {
		t.Errorf("objects left in storage = %d, want 0", blobs.Len())
	}
}

func TestScratch_ForeignSet(t *testing.T) {
	t.Parallel()

	p, blobs, _ := newTestPipeline(t, 0)
	ctx := context.Background()

	set, err := p.Publish(ctx, "user-1", goodResult())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Scratch(ctx, set.ID, "user-2"); !errors.Is(err, store.ErrNotOwner) {
		t.Fatalf("Scratch() error = %v, want %v", err, store.ErrNotOwner)
	}
	if blobs.Len() != 1 {
		t.Errorf("objects in storage = %d, want 1 (nothing deleted)", blobs.Len())
	}
}
