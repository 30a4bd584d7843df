package instrumentation

import "sync"

// Cardinality management for metric labels.
//
// Collections are caller-chosen strings, so recording them verbatim would
// let a client create unbounded label values. Only registered collections
// are reported by name; everything else collapses to CollectionOther.

// CollectionOther is the label used for collections that were not registered.
const CollectionOther = "other"

var (
	knownCollectionsMu sync.RWMutex
	knownCollections   = map[string]struct{}{}
)

// RegisterCollections marks collection names as safe to use as metric labels.
func RegisterCollections(names ...string) {
	knownCollectionsMu.Lock()
	defer knownCollectionsMu.Unlock()
	for _, n := range names {
		if n != "" {
			knownCollections[n] = struct{}{}
		}
	}
}

// CollectionLabel returns the metric label value for a collection.
//
// Example:
//
//	RegisterCollections("oauth-clients")
//	CollectionLabel("oauth-clients") // "oauth-clients"
//	CollectionLabel("tenant-42")     // "other"
func CollectionLabel(collection string) string {
	knownCollectionsMu.RLock()
	defer knownCollectionsMu.RUnlock()
	if _, ok := knownCollections[collection]; ok {
		return collection
	}
	return CollectionOther
}

// Backend operation names used by RecordKVOperation and store spans.
const (
	OperationRead   = "read"
	OperationUpsert = "upsert"
	OperationDelete = "delete"
	OperationQuery  = "query"
	OperationCreate = "create"
)
