package blob

import (
	"context"

	"github.com/areufunny/areufunny/internal/resilience"
)

// resilientStore wraps a [Store] with a circuit breaker so a misbehaving
// object store fails fast instead of stacking up slow uploads.
type resilientStore struct {
	inner   Store
	breaker *resilience.CircuitBreaker
}

var _ Store = (*resilientStore)(nil)

// WithBreaker returns a [Store] whose calls go through breaker. When the
// breaker is open, calls fail immediately with [resilience.ErrCircuitOpen].
func WithBreaker(inner Store, breaker *resilience.CircuitBreaker) Store {
	return &resilientStore{inner: inner, breaker: breaker}
}

func (r *resilientStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	var url string
	err := r.breaker.Execute(func() error {
		var err error
		url, err = r.inner.Put(ctx, key, contentType, data)
		return err
	})
	return url, err
}

func (r *resilientStore) Delete(ctx context.Context, key string) error {
	return r.breaker.Execute(func() error {
		return r.inner.Delete(ctx, key)
	})
}
