package rhmap

import (
	"hash/maphash"
	"math/bits"
)

// HashFunc computes a hash for a key given a per-map seed. Implementations
// must be deterministic for a fixed seed; they need not be stable across
// process restarts.
type HashFunc[K comparable] func(key K, seed uint64) uint64

// EqualFunc reports whether two keys of the same type are equal. The
// default is ==, which is always valid for comparable K.
type EqualFunc[K comparable] func(a, b K) bool

func defaultEqual[K comparable]() EqualFunc[K] {
	return func(a, b K) bool { return a == b }
}

// defaultHasher returns a HashFunc for K. Integer and string key kinds get
// a cheap dedicated path; every other comparable type falls back to
// hash/maphash via maphash.Comparable, which works for any comparable
// type without reflecting into runtime-internal type metadata.
func defaultHasher[K comparable]() HashFunc[K] {
	switch any(*new(K)).(type) {
	case int:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(int)) ^ seed) }
	case int8:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(int8)) ^ seed) }
	case int16:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(int16)) ^ seed) }
	case int32:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(int32)) ^ seed) }
	case int64:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(int64)) ^ seed) }
	case uint:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(uint)) ^ seed) }
	case uint8:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(uint8)) ^ seed) }
	case uint16:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(uint16)) ^ seed) }
	case uint32:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(uint32)) ^ seed) }
	case uint64:
		return func(key K, seed uint64) uint64 { return mix64(any(key).(uint64) ^ seed) }
	case uintptr:
		return func(key K, seed uint64) uint64 { return mix64(uint64(any(key).(uintptr)) ^ seed) }
	case string:
		sd := maphash.MakeSeed()
		return func(key K, seed uint64) uint64 {
			s := any(key).(string)
			var h maphash.Hash
			h.SetSeed(sd)
			_, _ = h.WriteString(s)
			return h.Sum64() ^ seed
		}
	default:
		sd := maphash.MakeSeed()
		return func(key K, seed uint64) uint64 {
			return mix64(maphash.Comparable(sd, key) ^ seed)
		}
	}
}

// mix64 applies a 64-bit avalanche mix (splitmix64's finalizer) to spread
// low-entropy integer keys across the full hash width.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// shardIndex splits a full-width hash into a shard selector using its
// high bits, preserving the low bits for in-shard probing.
func shardIndex(h uint64, shardBits uint) uint64 {
	if shardBits == 0 {
		return 0
	}
	return h >> (64 - shardBits)
}

// nextPowerOfTwo returns 1 for n<=0, n itself if already a power of two,
// otherwise the smallest power of two strictly greater than n.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
