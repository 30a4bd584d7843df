package kvstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IDSeparator joins collection and key into a document ID.
const IDSeparator = ":"

// Document is the persisted form of an entry.
//
// The JSON shape is shared by every backend:
//
//	{"id": "clients:abc123", "collection": "clients", "key": "abc123",
//	 "entry": {"value": {...}, "created_at": "...", "expires_at": null},
//	 "ttl": 60}
type Document struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Key        string        `json:"key"`
	Entry      DocumentEntry `json:"entry"`
	// TTL is the native expiry hint in seconds. Backends may use it to
	// delete the document on their own schedule.
	TTL *int `json:"ttl,omitempty"`
}

// DocumentEntry is the serialized Entry.
type DocumentEntry struct {
	Value     map[string]any `json:"value"`
	CreatedAt *time.Time     `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

// DocumentID returns the ID of the document holding key in collection.
// Uniqueness holds together with the collection, which is also the partition.
func DocumentID(collection, key string) string {
	return collection + IDSeparator + key
}

// NewDocument wraps an entry for storage. ttl is the lifetime used to
// build the entry; a positive value sets the native TTL hint.
func NewDocument(collection, key string, entry Entry, ttl time.Duration) *Document {
	createdAt := entry.CreatedAt.UTC()
	doc := &Document{
		ID:         DocumentID(collection, key),
		Collection: collection,
		Key:        key,
		Entry: DocumentEntry{
			Value:     entry.Value,
			CreatedAt: &createdAt,
		},
	}
	if entry.ExpiresAt != nil {
		expiresAt := entry.ExpiresAt.UTC()
		doc.Entry.ExpiresAt = &expiresAt
	}
	if ttl > 0 {
		secs := nativeTTLSeconds(ttl)
		doc.TTL = &secs
	}
	return doc
}

// ManagedEntry converts the document back into an Entry. A null
// created_at becomes the zero time.
func (d *Document) ManagedEntry() Entry {
	e := Entry{Value: d.Entry.Value}
	if d.Entry.CreatedAt != nil {
		e.CreatedAt = *d.Entry.CreatedAt
	}
	if d.Entry.ExpiresAt != nil {
		expiresAt := *d.Entry.ExpiresAt
		e.ExpiresAt = &expiresAt
	}
	return e
}

// MarshalDocument encodes a document as JSON.
func MarshalDocument(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %q: %w", doc.ID, err)
	}
	return data, nil
}

// UnmarshalDocument decodes a JSON document. Backend-specific system
// properties such as _etag are ignored. Numbers in the value are
// normalized by normalizeNumbers.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Entry.Value != nil {
		doc.Entry.Value = normalizeNumbers(doc.Entry.Value).(map[string]any)
	}
	return &doc, nil
}

// normalizeNumbers replaces json.Number with int64 for integers that fit
// and float64 for everything else. Integers outside the int64 range keep
// their digits as json.Number.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if !strings.ContainsAny(t.String(), ".eE") {
			return t
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}
