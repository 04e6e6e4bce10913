// Package noop discards archived content when archiving is disabled.
package noop

import "context"

// BlobStore drops everything and reports an empty URI.
type BlobStore struct{}

// NewBlobStore creates a no-op blob store.
func NewBlobStore() *BlobStore { return &BlobStore{} }

// Put discards the content.
func (s *BlobStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
