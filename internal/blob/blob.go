// Package blob abstracts the object storage that holds encoded set audio.
// The production implementation lives in the s3 subpackage; tests use mock.
package blob

import "context"

// Store uploads and removes audio objects.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data under key with the given content type and returns
	// the public URL the object is reachable at.
	Put(ctx context.Context, key, contentType string, data []byte) (url string, err error)

	// Delete removes the object at key. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, key string) error
}
