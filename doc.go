// Package rhmap implements a sharded, concurrent key-value map backed by
// per-shard Robin Hood open-addressing tables.
//
// Each shard exposes lock-free reads through a per-slot sequence lock and
// serializes writes behind a per-shard mutex. Old table allocations, freed
// by a resize or a clear, are handed to an epoch manager that defers their
// release until no concurrent reader can still observe them.
//
// The map trades a strongly consistent Size for minimal inter-thread
// contention on mixed read-heavy workloads. It has no iterator: a safe,
// cheap iterator is not possible under sharded Robin Hood with concurrent
// resize, so none is offered.
package rhmap
