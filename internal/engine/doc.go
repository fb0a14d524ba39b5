// Package engine implements the kudos batching core: it accumulates
// discovered activity ids into a persistent pending batch, deduplicates
// ids across the push (webhook) and pull (feed poll) sources, decides
// when to flush by batch size or batch age, and drains the batch with
// rate-limited sequential kudos sends while keeping the usage ledger
// consistent across restarts.
//
// The engine owns no goroutines. The webhook handler and the scheduler
// call into it; a single flush mutex serializes drains so a double
// trigger degenerates into a harmless empty flush.
package engine
