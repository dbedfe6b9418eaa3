package rhmap

import (
	"runtime"
	"sync"
	"sync/atomic"
	_ "unsafe" // for go:linkname
)

// Retirable is the shape anything retired through an epochManager must
// implement: a release hook invoked once no pinned reader can still
// observe the object.
type Retirable interface {
	release()
}

// retireNode intrusively links a retired object into one generation's
// retire list. The link lives on the node rather than on the retired
// object itself, since a Table is only ever retired once it has stopped
// being the shard's published table and no longer needs list-linkage
// fields of its own.
type retireNode struct {
	next atomic.Pointer[retireNode]
	obj  Retirable
}

// threadEntry is the per-P bookkeeping slot spec.md calls a "thread
// entry". localEpoch and active are read by try_advance from goroutines
// other than the one currently pinned on this slot, so they are atomic;
// nesting and opsSinceAdvance are only ever touched by the goroutine
// currently pinned on this P (procPin disables preemption off that P for
// the duration), so they are plain fields.
type threadEntry struct {
	localEpoch      atomic.Uint64
	active          atomic.Bool
	nesting         int
	opsSinceAdvance int
}

// epochManager implements the three-generation deferred-reclamation
// scheme of spec.md section 4.3, keyed by the calling goroutine's current
// P rather than by OS thread: Go exposes no thread-local storage and
// goroutines migrate between OS threads, but procPin/procUnpin guarantee
// a goroutine keeps one P for the span it is pinned, which is exactly the
// exclusivity spec.md's thread-local handle relies on.
type epochManager struct {
	globalEpoch atomic.Uint64
	retireLists [3]atomic.Pointer[retireNode]

	slots atomic.Pointer[[]*threadEntry]

	advanceMu sync.Mutex
}

const epochAdvanceInterval = 64

func newEpochManager() *epochManager {
	m := &epochManager{}
	s := make([]*threadEntry, runtime.GOMAXPROCS(0))
	m.slots.Store(&s)
	return m
}

// entryFor returns the threadEntry for the given P id, lazily allocating
// it on first use. Publication is lock-free copy-on-write: a candidate
// slice is always fully built (old entries copied, the new one filled
// in) before being swapped in, and a published slice is never mutated in
// place afterward. That is what lets tryAdvance walk *m.slots.Load()
// with no synchronization of its own — every element it sees was
// already there before the slice became visible.
func (m *epochManager) entryFor(pid int) *threadEntry {
	for {
		cur := m.slots.Load()
		if pid < len(*cur) {
			if e := (*cur)[pid]; e != nil {
				return e
			}
		}
		n := len(*cur)
		if pid >= n {
			n = pid + 1
		}
		next := make([]*threadEntry, n)
		copy(next, *cur)
		if next[pid] == nil {
			next[pid] = &threadEntry{}
		}
		if m.slots.CompareAndSwap(cur, &next) {
			return next[pid]
		}
	}
}

// pinGuard is returned by pin and must be passed to unpin exactly once.
type pinGuard struct {
	entry *threadEntry
	pid   int
}

// pin marks the calling goroutine as an active reader in the current
// epoch. Pins nest: only the outermost pin publishes local_epoch and
// active.
func (m *epochManager) pin() pinGuard {
	pid := runtime_procPin()
	e := m.entryFor(pid)
	e.nesting++
	if e.nesting == 1 {
		e.localEpoch.Store(m.globalEpoch.Load())
		e.active.Store(true)
	}
	return pinGuard{entry: e, pid: pid}
}

// unpin releases a pin obtained from pin. Every 64th unpin triggers a
// (non-blocking) attempt to advance the global epoch.
func (m *epochManager) unpin(g pinGuard) {
	e := g.entry
	e.nesting--
	if e.nesting == 0 {
		e.active.Store(false)
		e.opsSinceAdvance++
		if e.opsSinceAdvance >= epochAdvanceInterval {
			e.opsSinceAdvance = 0
			m.tryAdvance()
		}
	}
	runtime_procUnpin()
}

// retire hands obj to the reclaimer. It becomes eligible for release once
// the global epoch has advanced two generations past the one current at
// the time of this call.
func (m *epochManager) retire(obj Retirable) {
	gen := m.globalEpoch.Load() % 3
	node := &retireNode{obj: obj}
	list := &m.retireLists[gen]
	for {
		head := list.Load()
		node.next.Store(head)
		if list.CompareAndSwap(head, node) {
			break
		}
	}
	m.tryAdvance()
}

// tryAdvance attempts, without blocking, to move the global epoch
// forward by one generation and drain whichever retire list just became
// safe to free. It is always safe to call and always safe to skip.
func (m *epochManager) tryAdvance() {
	if !m.advanceMu.TryLock() {
		return
	}
	defer m.advanceMu.Unlock()

	e := m.globalEpoch.Load()
	slots := *m.slots.Load()
	for _, entry := range slots {
		if entry == nil || !entry.active.Load() {
			continue
		}
		if entry.localEpoch.Load() < e {
			return
		}
	}

	next := e + 1
	m.globalEpoch.Store(next)
	if next >= 2 {
		m.drain((next - 2) % 3)
	}
}

// drain detaches and releases every node on retire list gen.
func (m *epochManager) drain(gen uint64) {
	list := &m.retireLists[gen]
	head := list.Swap(nil)
	for node := head; node != nil; {
		next := node.next.Load()
		node.obj.release()
		node = next
	}
}

//go:linkname runtime_procPin sync.runtime_procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin sync.runtime_procUnpin
func runtime_procUnpin()
