// Package mock provides an in-memory test double for [blob.Store].
package mock

import (
	"context"
	"sync"

	"github.com/areufunny/areufunny/internal/blob"
)

// Compile-time interface check.
var _ blob.Store = (*Store)(nil)

// Object is one stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// Store keeps objects in a map keyed by object key. Public URLs are
// "mock://<key>". Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object

	// PutErr is returned by Put when non-nil; nothing is stored.
	PutErr error

	// DeleteErr is returned by Delete when non-nil; nothing is removed.
	DeleteErr error

	// CallCountPut records how many times Put was called.
	CallCountPut int

	// CallCountDelete records how many times Delete was called.
	CallCountDelete int

	// DeletedKeys records the key of every Delete call, in order.
	DeletedKeys []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Put implements [blob.Store].
func (m *Store) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountPut++
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return "mock://" + key, nil
}

// Delete implements [blob.Store].
func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountDelete++
	m.DeletedKeys = append(m.DeletedKeys, key)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.objects, key)
	return nil
}

// Object returns the stored object at key, if any.
func (m *Store) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Len reports how many objects are stored.
func (m *Store) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
