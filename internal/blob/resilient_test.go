package blob_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/areufunny/areufunny/internal/blob"
	"github.com/areufunny/areufunny/internal/blob/mock"
	"github.com/areufunny/areufunny/internal/resilience"
)

func TestWithBreaker_PassesThrough(t *testing.T) {
	t.Parallel()
	inner := mock.NewStore()
	st := blob.WithBreaker(inner, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "blob"}))

	url, err := st.Put(context.Background(), "a/b.opus", "audio/opus", []byte("data"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "mock://a/b.opus" {
		t.Errorf("url = %q, want mock://a/b.opus", url)
	}
	if err := st.Delete(context.Background(), "a/b.opus"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if inner.CallCountPut != 1 || inner.CallCountDelete != 1 {
		t.Errorf("inner calls = %d puts, %d deletes; want 1 each", inner.CallCountPut, inner.CallCountDelete)
	}
}

func TestWithBreaker_OpensAfterFailures(t *testing.T) {
	t.Parallel()
	inner := mock.NewStore()
	inner.PutErr = errors.New("bucket on fire")
	st := blob.WithBreaker(inner, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "blob",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}))

	for i := 0; i < 2; i++ {
		if _, err := st.Put(context.Background(), "k", "audio/opus", nil); !errors.Is(err, inner.PutErr) {
			t.Fatalf("Put %d: err = %v, want %v", i, err, inner.PutErr)
		}
	}

	// Breaker is now open; the inner store must not see further calls.
	if _, err := st.Put(context.Background(), "k", "audio/opus", nil); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Put after trip: err = %v, want ErrCircuitOpen", err)
	}
	if inner.CallCountPut != 2 {
		t.Errorf("inner puts = %d, want 2", inner.CallCountPut)
	}
}
