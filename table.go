package rhmap

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// defaultCapacity is the smallest Table capacity, always a power of two
// (spec.md section 4.4.6).
const defaultCapacity = 16

// Table is a heap-allocated, fixed-size array of slots. A Table's
// identity is immutable: a capacity change allocates a new Table and
// retires the old one through the owning shard's epoch manager. Table
// implements Retirable so it can be handed to an epochManager.
type Table[K comparable, V any] struct {
	_        cpu.CacheLinePad
	capacity int
	mask     uint64
	slots    []Slot[K, V]
	released atomic.Bool // set by release(); exposed for tests that assert reclamation.
	_        cpu.CacheLinePad
}

func newTable[K comparable, V any](capacity int) *Table[K, V] {
	capacity = nextPowerOfTwo(capacity)
	if capacity < defaultCapacity {
		capacity = defaultCapacity
	}
	return &Table[K, V]{
		capacity: capacity,
		mask:     uint64(capacity - 1),
		slots:    make([]Slot[K, V], capacity),
	}
}

// home returns the ideal (unprobed) slot index for hash.
func (t *Table[K, V]) home(hash uint64) uint64 {
	return hash & t.mask
}

// release is the Retirable hook invoked once an epochManager has
// determined no pinned reader can still observe this table.
func (t *Table[K, V]) release() {
	t.released.Store(true)
}

// isReleased reports whether release has run. Exposed for reclamation
// tests only.
func (t *Table[K, V]) isReleased() bool {
	return t.released.Load()
}
