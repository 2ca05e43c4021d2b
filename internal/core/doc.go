// Package core provides the resumable chunked batch-job engine.
//
// Long-running catalog operations (CSV export, CSV import, search index
// rebuilds) cannot run inside a single request: the host imposes a hard
// execution ceiling and there is no background worker. The engine splits
// each operation into bounded chunks and persists all progress in a [Job]
// record between requests. The client drives the job by calling
// [Dispatcher.Step] until the job reports a terminal status.
//
// # Architecture
//
//   - Job: the persisted unit of work (status, counters, opaque handler
//     context, immutable options, error log).
//   - Store: cross-request persistence keyed by job id with a sliding TTL.
//     Implementations live under internal/store.
//   - Handler: operation-specific logic. Most handlers are thin wrappers
//     around [RunChunk], which owns offset bookkeeping and the termination rule.
//   - Registry: operation id to handler factory, filled explicitly at startup.
//   - Dispatcher: the only entry point clients use (Create, Step, Cancel).
//
// # Step Flow
//
//  1. Acquire the per-id lock ([Locker]); a held lock yields [ErrBusy]
//  2. Load the record; terminal records are returned unchanged
//  3. Run one chunk through the handler, converting errors and panics
//     into status "error"
//  4. Save with an optimistic revision check; a conflict yields [ErrBusy]
//  5. Return a [Snapshot] for the progress bar
//
// # Termination
//
// A job finishes when a chunk comes back short or empty. The total computed
// at creation is advisory and only feeds the percentage.
package core
