package rhmap

import "math/rand/v2"

// noCopy may be embedded in a struct to make go vet's -copylocks check
// flag accidental copies. See sync.noCopy; a Map's epoch manager embeds
// per-P linkage that must not be duplicated (spec.md section 6).
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// coreMap holds everything shared by Map and MapWithMutex. It is
// parameterized over the shard mutex type (M, PM) so the exported
// wrapper types can each hardcode or expose that choice without
// duplicating any operation logic.
type coreMap[K comparable, V any, M any, PM LockerPtr[M]] struct {
	shards    []*Shard[K, V, M, PM]
	shardBits uint
	epoch     *epochManager
	hash      HashFunc[K]
	seed      uint64
}

func newCoreMap[K comparable, V any, M any, PM LockerPtr[M]](
	hash HashFunc[K],
	equal EqualFunc[K],
	opts ...Option,
) *coreMap[K, V, M, PM] {
	cfg := mapConfig{shardBits: defaultShardBits, capacityHint: defaultCapacity}
	for _, o := range opts {
		o(&cfg)
	}
	if hash == nil {
		hash = defaultHasher[K]()
	}
	if equal == nil {
		equal = defaultEqual[K]()
	}

	numShards := 1 << cfg.shardBits
	perShard := (cfg.capacityHint + numShards - 1) / numShards
	perShardCap := nextPowerOfTwo(int(float64(perShard)/maxLoadFactor) + 1)
	epoch := newEpochManager()

	shards := make([]*Shard[K, V, M, PM], numShards)
	for i := range shards {
		shards[i] = newShard[K, V, M, PM](epoch, equal, perShardCap)
	}

	return &coreMap[K, V, M, PM]{
		shards:    shards,
		shardBits: cfg.shardBits,
		epoch:     epoch,
		hash:      hash,
		seed:      rand.Uint64(),
	}
}

func (m *coreMap[K, V, M, PM]) shardFor(hash uint64) *Shard[K, V, M, PM] {
	return m.shards[shardIndex(hash, m.shardBits)]
}

// Find performs a point lookup. It never returns a torn value: a
// successful result was observed as a logically complete write.
func (m *coreMap[K, V, M, PM]) Find(key K) (value V, found bool) {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).find(h, key)
}

// Contains reports whether key is present.
func (m *coreMap[K, V, M, PM]) Contains(key K) bool {
	_, ok := m.Find(key)
	return ok
}

// Count returns 1 if key is present, 0 otherwise.
func (m *coreMap[K, V, M, PM]) Count(key K) int {
	if m.Contains(key) {
		return 1
	}
	return 0
}

// Insert adds key/value if key is absent. It reports whether the
// insertion happened.
func (m *coreMap[K, V, M, PM]) Insert(key K, value V) bool {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).insert(h, key, value)
}

// Erase removes key if present. It reports whether a removal happened.
func (m *coreMap[K, V, M, PM]) Erase(key K) bool {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).erase(h, key)
}

// InsertOrAssign inserts key/value if absent, or overwrites the stored
// value if present. It reports true only for a fresh insertion.
func (m *coreMap[K, V, M, PM]) InsertOrAssign(key K, value V) bool {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).insertOrAssign(h, key, value)
}

// TryEmplace inserts the value produced by factory if key is absent.
// factory is invoked at most once, and only when key is absent.
func (m *coreMap[K, V, M, PM]) TryEmplace(key K, factory func() V) bool {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).tryEmplace(h, key, factory)
}

// GetOrSet returns the value stored for key, inserting def first if key
// is absent.
func (m *coreMap[K, V, M, PM]) GetOrSet(key K, def V) V {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).getOrSet(h, key, def)
}

// GetOrSetFunc returns the value stored for key, inserting the result of
// factory first if key is absent. factory is invoked at most once.
func (m *coreMap[K, V, M, PM]) GetOrSetFunc(key K, factory func() V) V {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	h := m.hash(key, m.seed)
	return m.shardFor(h).getOrSetFunc(h, key, factory)
}

// Size returns the approximate number of entries across all shards.
// Under concurrent mutation this is not linearizable.
func (m *coreMap[K, V, M, PM]) Size() int {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	total := 0
	for _, s := range m.shards {
		total += s.size()
	}
	return total
}

// Empty reports whether Size() == 0.
func (m *coreMap[K, V, M, PM]) Empty() bool {
	return m.Size() == 0
}

// Clear removes every entry from every shard.
func (m *coreMap[K, V, M, PM]) Clear() {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	for _, s := range m.shards {
		s.clear()
	}
}

// Reserve ensures every shard can hold its share of n entries (ceil(n /
// numShards) each) without needing to resize.
func (m *coreMap[K, V, M, PM]) Reserve(n int) {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	numShards := len(m.shards)
	perShard := (n + numShards - 1) / numShards
	for _, s := range m.shards {
		s.reserve(perShard)
	}
}

// Stats returns a per-shard diagnostic snapshot.
func (m *coreMap[K, V, M, PM]) Stats() []ShardStats {
	g := m.epoch.pin()
	defer m.epoch.unpin(g)
	out := make([]ShardStats, len(m.shards))
	for i, s := range m.shards {
		out[i] = s.stats()
	}
	return out
}

// Map is a sharded concurrent key-value map using the default SpinMutex
// per shard. The zero Map is not usable; construct with NewMap.
type Map[K comparable, V any] struct {
	noCopy
	*coreMap[K, V, SpinMutex, *SpinMutex]
}

// NewMap constructs a Map using the default per-type hasher and ==
// equality. The default shard-count exponent is 6 (64 shards); see
// WithShardBits and WithCapacityHint to override defaults.
func NewMap[K comparable, V any](opts ...Option) *Map[K, V] {
	return &Map[K, V]{coreMap: newCoreMap[K, V, SpinMutex, *SpinMutex](nil, nil, opts...)}
}

// NewMapWithHasher constructs a Map with a custom hash function and key
// equality predicate. Either may be nil to keep the corresponding
// default; mirrors the teacher's NewMapOfWithHasher split between
// type-dependent hasher/equal parameters and type-independent Options.
func NewMapWithHasher[K comparable, V any](hash HashFunc[K], equal EqualFunc[K], opts ...Option) *Map[K, V] {
	return &Map[K, V]{coreMap: newCoreMap[K, V, SpinMutex, *SpinMutex](hash, equal, opts...)}
}

// MapWithMutex is the pluggable-mutex variant of Map: M is the mutex
// value type a shard embeds, and PM must be *M implementing Locker. Use
// this when SpinMutex's spin-then-sleep backoff is not the right choice
// for a given workload, e.g. MapWithMutex[string, int, sync.Mutex,
// *sync.Mutex].
type MapWithMutex[K comparable, V any, M any, PM LockerPtr[M]] struct {
	noCopy
	*coreMap[K, V, M, PM]
}

// NewMapWithMutex constructs a MapWithMutex using the default per-type
// hasher and == equality.
func NewMapWithMutex[K comparable, V any, M any, PM LockerPtr[M]](opts ...Option) *MapWithMutex[K, V, M, PM] {
	return &MapWithMutex[K, V, M, PM]{coreMap: newCoreMap[K, V, M, PM](nil, nil, opts...)}
}

// NewMapWithMutexAndHasher is the MapWithMutex analog of
// NewMapWithHasher: a pluggable mutex plus a custom hasher/equal pair.
func NewMapWithMutexAndHasher[K comparable, V any, M any, PM LockerPtr[M]](
	hash HashFunc[K], equal EqualFunc[K], opts ...Option,
) *MapWithMutex[K, V, M, PM] {
	return &MapWithMutex[K, V, M, PM]{coreMap: newCoreMap[K, V, M, PM](hash, equal, opts...)}
}
