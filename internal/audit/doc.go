// Package audit records security-relevant events (token issuance, access
// decisions, permission changes) through a buffered pipeline.
//
// Log never blocks the caller: events are appended to an in-memory buffer and
// written to a durable Sink in batches by a background loop, either when the
// batch threshold is reached or on a fixed interval. A batch that fails to
// write is put back at the front of the buffer and retried on the next flush,
// so events are neither lost nor reordered while the sink is unavailable.
//
// Query reads the durable sink only; buffered events become visible once
// flushed.
package audit
