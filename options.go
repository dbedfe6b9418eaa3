package rhmap

// defaultShardBits is the default shard-count exponent (64 shards),
// spec.md section 4.4.6.
const defaultShardBits = 6

// mapConfig holds the type-independent construction knobs. It
// deliberately carries no hasher or equality function: those are
// type-dependent (HashFunc[K]/EqualFunc[K]) and are passed as direct
// typed parameters to NewMapWithHasher instead of through Option, the
// same split the teacher's NewMapOf/NewMapOfWithHasher use — a generic
// functional option whose argument never mentions K (WithShardBits,
// WithCapacityHint) infers fine, but one that needs to accept a
// HashFunc[K] cannot be attached to a K-less Option type without the
// caller spelling out the type argument at every call site.
type mapConfig struct {
	shardBits    uint
	capacityHint int
}

// Option configures a Map, MapWithMutex, or their *WithHasher variants
// at construction time.
type Option func(*mapConfig)

// WithShardBits sets the shard-count exponent; the map will have 2^bits
// shards. The default is 6 (64 shards).
func WithShardBits(bits uint) Option {
	return func(c *mapConfig) { c.shardBits = bits }
}

// WithCapacityHint sizes every shard's initial table so that the map as
// a whole can hold approximately n entries without an immediate resize.
func WithCapacityHint(n int) Option {
	return func(c *mapConfig) { c.capacityHint = n }
}
