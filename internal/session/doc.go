// Package session implements the session lifecycle core of the agentd
// runtime.
//
// # Architecture
//
// Three collaborators make up the core:
//
//   - Manager: top-level orchestration. Race-free creation, memory-first
//     retrieval with storage fallback, TTL-based memory eviction, capacity
//     enforcement, continuation chains, and per-session token-usage
//     accounting.
//   - ChatSession: the in-memory runtime object bound to one session id. It
//     owns a history store and an LLM service, and forwards every
//     session-local event to the agent-wide bus tagged with the session id.
//   - CompactionService: replaces a long conversation with a continuation
//     session seeded by a summary, linking the old and new records.
//
// # Lifetime split
//
// The persisted SessionRecord (database key "session:<id>") is the source of
// truth. ChatSessions are a memory cache over it: eviction and End dispose
// the in-memory object only, and a later Get or Create transparently
// restores it from the still-present record. Only Delete removes storage
// state, cascading over both the record and the "messages:<id>" history key.
//
// # Concurrency
//
// Concurrent Create calls for one id coalesce on an in-flight creation
// future; every caller receives the same ChatSession. Token-usage
// accumulation is serialized per session through a keyed FIFO lock: one
// call's read-modify-write, including persistence, finishes before the next
// call's read starts. Different sessions accumulate in parallel.
// Accumulation racing a Reset or Delete of the same session is deliberately
// left undefined; callers must not interleave those paths.
package session
