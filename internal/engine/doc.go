// Package engine is the command/snapshot pipeline: a single-writer worker
// that owns the authoritative player state, applies commands strictly in
// arrival order, and republishes an immutable Snapshot after every
// mutation.
//
// Thread-safety model:
//   - command methods (AddItem, CheckLocation, ...): safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Snapshot: lock-free read of the latest published snapshot
//
// All state mutation happens inside the Run loop goroutine. Callers that
// need a consistency point issue Ping: its completion guarantees every
// command enqueued before it has been applied and its snapshot published.
package engine
