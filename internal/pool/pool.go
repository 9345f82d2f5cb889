// Package pool provides a sharded, shape-keyed resource pool.
//
// Resources of equal shape are interchangeable: releasing a resource pushes
// it into the bucket identified by its shape key, and a later acquire for the
// same shape pops it back out instead of allocating. Buckets live in a
// sharded map so lookups from many caller threads do not contend on a single
// lock, and each bucket is a bounded channel so push/pop is race-free without
// any caller-visible locking.
//
// The pool never frees resources on its own. Only Drain (the GC sweep)
// removes idle resources, handing each one to the caller for destruction.
package pool

import "sync"

// Default configuration constants.
const (
	// shardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	// shardMask is used for fast shard selection.
	shardMask = shardCount - 1

	// DefaultBucketCap is the default bound on idle resources per bucket.
	// A push into a full bucket is refused and the caller destroys the
	// resource instead.
	DefaultBucketCap = 64
)

// Hasher computes a hash for a shape key. Used for shard selection only;
// bucket identity is the key itself.
type Hasher[K comparable] func(K) uint64

// Pool is a concurrent pool of resources bucketed by shape key.
//
// Thread safety: all methods are safe for concurrent use.
type Pool[K comparable, V any] struct {
	shards    [shardCount]*shard[K, V]
	hasher    Hasher[K]
	bucketCap int
}

// shard is a single shard holding a subset of the buckets.
// Each shard has its own lock, taken only to look up or create a bucket;
// pushes and pops go through the bucket channel without it.
type shard[K comparable, V any] struct {
	mu      sync.RWMutex
	buckets map[K]chan V
}

// New creates a pool with the given per-bucket capacity and shard hasher.
// If bucketCap <= 0, DefaultBucketCap is used.
func New[K comparable, V any](bucketCap int, hasher Hasher[K]) *Pool[K, V] {
	if bucketCap <= 0 {
		bucketCap = DefaultBucketCap
	}

	p := &Pool[K, V]{
		hasher:    hasher,
		bucketCap: bucketCap,
	}
	for i := range p.shards {
		p.shards[i] = &shard[K, V]{buckets: make(map[K]chan V)}
	}
	return p
}

// getShard returns the shard for a given key.
func (p *Pool[K, V]) getShard(key K) *shard[K, V] {
	return p.shards[p.hasher(key)&shardMask]
}

// bucket returns the bucket channel for key, creating it if needed.
func (p *Pool[K, V]) bucket(key K) chan V {
	s := p.getShard(key)

	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	b = make(chan V, p.bucketCap)
	s.buckets[key] = b
	return b
}

// TryAcquire pops an idle resource matching key, if one exists.
// It never blocks and never allocates a resource.
func (p *Pool[K, V]) TryAcquire(key K) (V, bool) {
	s := p.getShard(key)

	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}

	select {
	case v := <-b:
		return v, true
	default:
		var zero V
		return zero, false
	}
}

// Release pushes a resource back into the bucket for key.
// Returns false if the bucket is full; the caller then owns the resource
// and is expected to destroy it. Release never blocks.
func (p *Pool[K, V]) Release(key K, v V) bool {
	select {
	case p.bucket(key) <- v:
		return true
	default:
		return false
	}
}

// Drain removes every idle resource from every bucket and hands each one to
// fn together with its shape key. Returns the number of resources drained.
//
// Resources currently held by callers are unaffected; they will be pushed
// into (now empty) buckets on their next release as usual.
func (p *Pool[K, V]) Drain(fn func(key K, v V)) int {
	n := 0
	for _, s := range p.shards {
		s.mu.RLock()
		buckets := make([]struct {
			key K
			ch  chan V
		}, 0, len(s.buckets))
		for k, b := range s.buckets {
			buckets = append(buckets, struct {
				key K
				ch  chan V
			}{k, b})
		}
		s.mu.RUnlock()

		for _, b := range buckets {
			for {
				select {
				case v := <-b.ch:
					fn(b.key, v)
					n++
				default:
					goto next
				}
			}
		next:
		}
	}
	return n
}

// BucketStat describes one bucket for observability snapshots.
type BucketStat[K comparable] struct {
	Key   K
	Count int
}

// Snapshot reports the idle count of every non-empty bucket.
// It does not mutate pool state. Counts are instantaneous and may be stale
// by the time the caller reads them.
func (p *Pool[K, V]) Snapshot() []BucketStat[K] {
	var stats []BucketStat[K]
	for _, s := range p.shards {
		s.mu.RLock()
		for k, b := range s.buckets {
			if n := len(b); n > 0 {
				stats = append(stats, BucketStat[K]{Key: k, Count: n})
			}
		}
		s.mu.RUnlock()
	}
	return stats
}

// Len returns the total number of idle resources across all buckets.
func (p *Pool[K, V]) Len() int {
	n := 0
	for _, s := range p.shards {
		s.mu.RLock()
		for _, b := range s.buckets {
			n += len(b)
		}
		s.mu.RUnlock()
	}
	return n
}
