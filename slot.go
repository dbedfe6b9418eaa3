package rhmap

import "sync/atomic"

// Slot is one bucket of a Table. seq is even when the slot is stable and
// odd while a writer is mutating it; dist is the Robin Hood probe
// distance (0 = empty, 1 = home position, k = displaced k-1 positions).
type Slot[K comparable, V any] struct {
	seq   atomic.Uint32
	dist  uint8
	hash  uint64
	key   K
	value V
}

// probeDistCeiling bounds the worst-case Robin Hood walk (spec.md
// section 4.4.6); exceeding it aborts the current insert and forces a
// resize.
const probeDistCeiling = 128

// beginWrite makes seq odd, signalling concurrent readers to restart.
// Must be paired with endWrite before the shard mutex is released.
func (s *Slot[K, V]) beginWrite() {
	s.seq.Store(s.seq.Load() + 1)
}

// endWrite makes seq even again once the slot's fields are consistent.
func (s *Slot[K, V]) endWrite() {
	s.seq.Store(s.seq.Load() + 1)
}

// snapshot is a by-value copy of a slot's fields taken under the
// sequence-lock read protocol; it is self-contained even if the source
// slot is overwritten immediately after the copy is validated.
type snapshot[K comparable, V any] struct {
	dist  uint8
	hash  uint64
	key   K
	value V
}

// readLocked performs one sequence-lock read attempt: it returns the
// slot's snapshot and true if the read was internally consistent, or a
// zero snapshot and false if the caller should retry (the slot was mid
// write, or changed under the reader).
func (s *Slot[K, V]) readLocked() (snapshot[K, V], bool) {
	s1 := s.seq.Load()
	if s1&1 != 0 {
		return snapshot[K, V]{}, false
	}
	snap := snapshot[K, V]{dist: s.dist, hash: s.hash, key: s.key, value: s.value}
	s2 := s.seq.Load()
	if s1 != s2 {
		return snapshot[K, V]{}, false
	}
	return snap, true
}

// reset clears a slot to empty (dist=0) after backward-shift deletion.
// Caller must have already called beginWrite and must call endWrite
// afterward.
func (s *Slot[K, V]) reset() {
	s.dist = 0
	s.hash = 0
	s.key = *new(K)
	s.value = *new(V)
}
