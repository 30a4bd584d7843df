// Package kvstore provides a TTL-aware key-value store over a partitioned
// document backend.
//
// Every value is wrapped in an Entry that records when it was written and,
// optionally, when it expires. Entries are persisted as Documents whose ID is
// derived from the collection and key, and whose collection doubles as the
// backend partition key. All operations on a key must therefore use the same
// collection that was used when it was written.
//
// # Failure semantics
//
// Reads never fail: a missing, expired or unreadable document yields a Result
// whose Found method reports false. Expired documents are deleted as a side
// effect of the read. Backend read errors are logged and reported through
// Result.Err for callers that care.
//
// Writes return errors. A batch whose keys and values differ in length is
// rejected with a *ValidationError before any backend call is made.
//
// # Backends
//
//   - MemoryBackend (this package): process-local, used in development and tests
//   - cosmos.Backend: Azure Cosmos DB container partitioned on /collection
//   - redis.Backend: Redis, using key expiry as the native TTL hint
package kvstore
