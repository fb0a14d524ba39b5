// Package storage persists the engine's durable state:
//
//   - Seen set: activity ids already routed into a batch (append-only)
//   - Pending batch: ids awaiting a flush, plus the batch open timestamp
//   - Usage ledger: total kudos sent, active-day count, last flush time
//
// The store is the single source of truth; no in-memory cache is
// authoritative. Each Store method is individually atomic so the engine
// can compose them without a separate lock around the persistence layer.
package storage
