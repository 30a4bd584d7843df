package kvstore

import "context"

// Backend is a partitioned document store.
//
// Implementations must return ErrNotFound (possibly wrapped) when a document
// does not exist, so that it can be told apart from transport failures.
// Concurrent calls are expected; per-document writes are last-writer-wins.
type Backend interface {
	// ReadDocument fetches the document with id in partition collection.
	ReadDocument(ctx context.Context, collection, id string) (*Document, error)
	// UpsertDocument creates or replaces doc in partition doc.Collection.
	UpsertDocument(ctx context.Context, doc *Document) error
	// DeleteDocument removes the document with id in partition collection.
	DeleteDocument(ctx context.Context, collection, id string) error
	// Kind names the backend for logs and metrics, e.g. "cosmos".
	Kind() string
}
