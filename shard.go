package rhmap

import "sync/atomic"

const (
	maxLoadFactor    = 0.75
	shrinkLoadFactor = 0.15
)

// Shard owns one Robin Hood table plus the mutex that serializes writes
// to it. M/PM let the mutex implementation be swapped (see LockerPtr);
// Map hardcodes M=SpinMutex, but MapWithMutex exposes the type
// parameters directly.
type Shard[K comparable, V any, M any, PM LockerPtr[M]] struct {
	table         atomic.Pointer[Table[K, V]]
	mu            M
	count         atomic.Int64
	shrinkCounter int // mutex-protected, never read without mu held
	epoch         *epochManager
	equal         EqualFunc[K]
}

func newShard[K comparable, V any, M any, PM LockerPtr[M]](
	epoch *epochManager,
	equal EqualFunc[K],
	capacityHint int,
) *Shard[K, V, M, PM] {
	s := &Shard[K, V, M, PM]{epoch: epoch, equal: equal}
	s.table.Store(newTable[K, V](capacityHint))
	return s
}

func (s *Shard[K, V, M, PM]) lock()   { PM(&s.mu).Lock() }
func (s *Shard[K, V, M, PM]) unlock() { PM(&s.mu).Unlock() }

// find performs a lock-free sequence-lock probe. It never acquires the
// shard mutex; on a detected race with a writer it restarts the probe
// from a freshly loaded table pointer.
func (s *Shard[K, V, M, PM]) find(hash uint64, key K) (value V, found bool) {
	spins := 0
restart:
	t := s.table.Load()
	pos := t.home(hash)
	var expectedDist uint8 = 1
	for {
		slot := &t.slots[pos]
		snap, ok := slot.readLocked()
		if !ok {
			spin(&spins)
			goto restart
		}
		if snap.dist == 0 || snap.dist < expectedDist {
			return value, false
		}
		if snap.dist == expectedDist && snap.hash == hash && s.equal(snap.key, key) {
			return snap.value, true
		}
		pos = (pos + 1) & t.mask
		expectedDist++
	}
}

func (s *Shard[K, V, M, PM]) contains(hash uint64, key K) bool {
	_, ok := s.find(hash, key)
	return ok
}

// probeLocked walks the Robin Hood chain for key under the shard mutex.
// On a hit it returns the occupied slot index; on a miss it returns the
// index at which the search terminated (not otherwise meaningful).
func (s *Shard[K, V, M, PM]) probeLocked(t *Table[K, V], hash uint64, key K) (idx uint64, found bool) {
	pos := t.home(hash)
	var expectedDist uint8 = 1
	for {
		slot := &t.slots[pos]
		d := slot.dist
		if d == 0 || d < expectedDist {
			return pos, false
		}
		if d == expectedDist && slot.hash == hash && s.equal(slot.key, key) {
			return pos, true
		}
		pos = (pos + 1) & t.mask
		expectedDist++
	}
}

// insertWalk performs the Robin Hood insertion walk for a key known to
// be absent. It reports false if the probe-distance ceiling was reached,
// in which case t was left untouched and the caller must resize and
// retry on the larger table.
func (s *Shard[K, V, M, PM]) insertWalk(t *Table[K, V], hash uint64, key K, value V) bool {
	// Placement and swap decisions depend only on probe distances, so a
	// dry run over dist alone detects a ceiling overflow before any slot
	// is written.
	pos := t.home(hash)
	for d := uint8(1); t.slots[pos].dist != 0; {
		if sd := t.slots[pos].dist; sd < d {
			d = sd
		}
		pos = (pos + 1) & t.mask
		d++
		if d >= probeDistCeiling {
			return false
		}
	}
	pos = t.home(hash)
	curDist := uint8(1)
	curHash, curKey, curVal := hash, key, value
	for {
		slot := &t.slots[pos]
		d := slot.dist
		switch {
		case d == 0:
			slot.beginWrite()
			slot.dist, slot.hash, slot.key, slot.value = curDist, curHash, curKey, curVal
			slot.endWrite()
			return true
		case d < curDist:
			oldDist, oldHash, oldKey, oldVal := slot.dist, slot.hash, slot.key, slot.value
			slot.beginWrite()
			slot.dist, slot.hash, slot.key, slot.value = curDist, curHash, curKey, curVal
			slot.endWrite()
			curDist, curHash, curKey, curVal = oldDist, oldHash, oldKey, oldVal
		}
		pos = (pos + 1) & t.mask
		curDist++
		if curDist >= probeDistCeiling {
			return false
		}
	}
}

// eraseAtLocked removes the occupied slot at p via backward-shift
// deletion (spec.md section 4.4.3).
func (s *Shard[K, V, M, PM]) eraseAtLocked(t *Table[K, V], p uint64) {
	q := (p + 1) & t.mask
	for t.slots[q].dist > 1 {
		dst, src := &t.slots[p], &t.slots[q]
		dst.beginWrite()
		dst.dist = src.dist - 1
		dst.hash = src.hash
		dst.key = src.key
		dst.value = src.value
		dst.endWrite()
		p = q
		q = (q + 1) & t.mask
	}
	slot := &t.slots[p]
	slot.beginWrite()
	slot.reset()
	slot.endWrite()
}

// resizeLocked allocates a new table of newCapacity, migrates every
// occupied slot of old using the cached hash, publishes the new table,
// and retires old through the epoch manager. If the migration itself
// would overflow the probe-distance ceiling (possible only for a
// pathological hash distribution), the candidate capacity is doubled and
// the migration restarted.
func (s *Shard[K, V, M, PM]) resizeLocked(old *Table[K, V], newCapacity int) *Table[K, V] {
	for {
		nt := newTable[K, V](newCapacity)
		ok := true
		for i := range old.slots {
			sl := &old.slots[i]
			if sl.dist == 0 {
				continue
			}
			if !s.insertWalk(nt, sl.hash, sl.key, sl.value) {
				ok = false
				break
			}
		}
		if !ok {
			newCapacity *= 2
			continue
		}
		s.table.Store(nt)
		s.epoch.retire(old)
		return nt
	}
}

func (s *Shard[K, V, M, PM]) maybeExpandLocked() *Table[K, V] {
	t := s.table.Load()
	size := s.count.Load()
	if float64(size+1)/float64(t.capacity) > maxLoadFactor {
		return s.resizeLocked(t, t.capacity*2)
	}
	return t
}

func (s *Shard[K, V, M, PM]) shrinkCheckLocked(t *Table[K, V]) {
	size := s.count.Load()
	load := float64(size) / float64(t.capacity)
	if load < shrinkLoadFactor && t.capacity > defaultCapacity {
		s.shrinkCounter++
		if s.shrinkCounter > t.capacity {
			newCap := t.capacity / 2
			if newCap < defaultCapacity {
				newCap = defaultCapacity
			}
			s.resizeLocked(t, newCap)
			s.shrinkCounter = 0
		}
		return
	}
	s.shrinkCounter = 0
}

// insertNewLocked places (hash,key,value) into t, growing the table and
// retrying if the probe-distance ceiling is hit mid-walk.
func (s *Shard[K, V, M, PM]) insertNewLocked(t *Table[K, V], hash uint64, key K, value V) {
	for {
		if s.insertWalk(t, hash, key, value) {
			s.count.Add(1)
			s.shrinkCounter = 0
			return
		}
		t = s.resizeLocked(t, t.capacity*2)
	}
}

func (s *Shard[K, V, M, PM]) insert(hash uint64, key K, value V) bool {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	if _, found := s.probeLocked(t, hash, key); found {
		return false
	}
	t = s.maybeExpandLocked()
	s.insertNewLocked(t, hash, key, value)
	return true
}

func (s *Shard[K, V, M, PM]) insertOrAssign(hash uint64, key K, value V) bool {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	if pos, found := s.probeLocked(t, hash, key); found {
		slot := &t.slots[pos]
		slot.beginWrite()
		slot.value = value
		slot.endWrite()
		return false
	}
	t = s.maybeExpandLocked()
	s.insertNewLocked(t, hash, key, value)
	return true
}

func (s *Shard[K, V, M, PM]) tryEmplace(hash uint64, key K, factory func() V) bool {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	if _, found := s.probeLocked(t, hash, key); found {
		return false
	}
	value := factory()
	t = s.maybeExpandLocked()
	s.insertNewLocked(t, hash, key, value)
	return true
}

func (s *Shard[K, V, M, PM]) getOrSet(hash uint64, key K, def V) V {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	if pos, found := s.probeLocked(t, hash, key); found {
		return t.slots[pos].value
	}
	t = s.maybeExpandLocked()
	s.insertNewLocked(t, hash, key, def)
	return def
}

func (s *Shard[K, V, M, PM]) getOrSetFunc(hash uint64, key K, factory func() V) V {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	if pos, found := s.probeLocked(t, hash, key); found {
		return t.slots[pos].value
	}
	value := factory()
	t = s.maybeExpandLocked()
	s.insertNewLocked(t, hash, key, value)
	return value
}

func (s *Shard[K, V, M, PM]) erase(hash uint64, key K) bool {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	pos, found := s.probeLocked(t, hash, key)
	if !found {
		return false
	}
	s.eraseAtLocked(t, pos)
	s.count.Add(-1)
	s.shrinkCheckLocked(t)
	return true
}

func (s *Shard[K, V, M, PM]) size() int {
	return int(s.count.Load())
}

func (s *Shard[K, V, M, PM]) clear() {
	s.lock()
	defer s.unlock()
	old := s.table.Load()
	s.table.Store(newTable[K, V](defaultCapacity))
	s.count.Store(0)
	s.shrinkCounter = 0
	s.epoch.retire(old)
}

func (s *Shard[K, V, M, PM]) reserve(n int) {
	s.lock()
	defer s.unlock()
	t := s.table.Load()
	needed := nextPowerOfTwo(int(float64(n)/maxLoadFactor) + 1)
	if needed <= t.capacity {
		return
	}
	s.resizeLocked(t, needed)
}

// ShardStats is a diagnostic snapshot of one shard's table.
type ShardStats struct {
	Capacity   int
	Size       int
	LoadFactor float64
}

func (s *Shard[K, V, M, PM]) stats() ShardStats {
	t := s.table.Load()
	size := s.size()
	return ShardStats{Capacity: t.capacity, Size: size, LoadFactor: float64(size) / float64(t.capacity)}
}
