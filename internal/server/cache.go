package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"aetheris/internal/mesh"
	"aetheris/internal/profiling"
	"aetheris/internal/world"
)

// Generator produces the render mesh for a chunk. Deterministic for a given
// density field and iso-level.
type Generator interface {
	Generate(c world.ChunkCoord) (mesh.RenderMesh, error)
}

// cleanupInterval is how often the eviction pass runs.
const cleanupInterval = 60 * time.Second

type cachedMesh struct {
	data         mesh.RenderMesh
	lastAccessed atomic.Int64
}

// keyLock serializes generation for one chunk. refs counts holders and
// waiters so the cleanup pass never reaps a lock somebody still owns.
type keyLock struct {
	mu   sync.Mutex
	refs atomic.Int32
}

// MeshCache stores generated meshes keyed by chunk coordinate with
// single-flight generation and LRU-style eviction.
//
// For any key at most one generation is in flight: the per-key lock is held
// across the mesher call, so concurrent requesters for the same chunk block
// until the first one stores the result, then read it through the map.
// Lookups of other keys proceed concurrently throughout.
type MeshCache struct {
	gen        Generator
	maxEntries int
	log        *zap.Logger
	metrics    *Metrics

	mu     sync.RWMutex
	meshes map[world.ChunkCoord]*cachedMesh

	lockMu sync.Mutex
	locks  map[world.ChunkCoord]*keyLock

	size atomic.Int64

	// monotonic clock, swappable in tests
	now func() int64
}

// NewMeshCache creates a cache bounded at maxEntries live meshes.
func NewMeshCache(gen Generator, maxEntries int, log *zap.Logger, metrics *Metrics) *MeshCache {
	return &MeshCache{
		gen:        gen,
		maxEntries: maxEntries,
		log:        log,
		metrics:    metrics,
		meshes:     make(map[world.ChunkCoord]*cachedMesh),
		locks:      make(map[world.ChunkCoord]*keyLock),
		now:        func() int64 { return time.Now().UnixNano() },
	}
}

// Size returns the number of live entries.
func (c *MeshCache) Size() int {
	return int(c.size.Load())
}

// Contains reports whether a mesh for the chunk is cached.
func (c *MeshCache) Contains(coord world.ChunkCoord) bool {
	c.mu.RLock()
	_, ok := c.meshes[coord]
	c.mu.RUnlock()
	return ok
}

// GetOrGenerate returns the cached mesh for the chunk, invoking the generator
// on miss. Generation failures are returned to the caller and nothing is
// cached; other waiters on the same key re-attempt.
func (c *MeshCache) GetOrGenerate(coord world.ChunkCoord) (mesh.RenderMesh, error) {
	c.mu.RLock()
	entry := c.meshes[coord]
	c.mu.RUnlock()
	if entry != nil {
		entry.lastAccessed.Store(c.now())
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return entry.data, nil
	}

	kl := c.acquireLock(coord)
	kl.mu.Lock()
	defer func() {
		kl.mu.Unlock()
		kl.refs.Add(-1)
	}()

	// another requester may have finished while we waited for the lock
	c.mu.RLock()
	entry = c.meshes[coord]
	c.mu.RUnlock()
	if entry != nil {
		entry.lastAccessed.Store(c.now())
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return entry.data, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	defer profiling.Track("server.GenerateMesh")()
	data, err := c.gen.Generate(coord)
	if err != nil {
		if c.metrics != nil {
			c.metrics.MeshGenErrors.Inc()
		}
		return nil, err
	}

	c.store(coord, data)
	return data, nil
}

// Regenerate rebuilds the mesh for a chunk in place, replacing any cached
// entry. Used after density edits so the next fetch sees the new terrain.
func (c *MeshCache) Regenerate(coord world.ChunkCoord) (mesh.RenderMesh, error) {
	kl := c.acquireLock(coord)
	kl.mu.Lock()
	defer func() {
		kl.mu.Unlock()
		kl.refs.Add(-1)
	}()

	data, err := c.gen.Generate(coord)
	if err != nil {
		if c.metrics != nil {
			c.metrics.MeshGenErrors.Inc()
		}
		return nil, err
	}
	c.store(coord, data)
	return data, nil
}

func (c *MeshCache) store(coord world.ChunkCoord, data mesh.RenderMesh) {
	entry := &cachedMesh{data: data}
	entry.lastAccessed.Store(c.now())
	c.mu.Lock()
	_, existed := c.meshes[coord]
	c.meshes[coord] = entry
	c.mu.Unlock()
	if !existed {
		c.size.Add(1)
	}
	if c.metrics != nil {
		c.metrics.CacheSize.Set(float64(c.size.Load()))
	}
}

func (c *MeshCache) acquireLock(coord world.ChunkCoord) *keyLock {
	c.lockMu.Lock()
	kl, ok := c.locks[coord]
	if !ok {
		kl = &keyLock{}
		c.locks[coord] = kl
	}
	kl.refs.Add(1)
	c.lockMu.Unlock()
	return kl
}

// Cleanup evicts the least-recently-accessed entries when the cache exceeds
// its bound. Returns the number of entries removed.
func (c *MeshCache) Cleanup() int {
	size := c.Size()
	if size <= c.maxEntries {
		return 0
	}

	type aged struct {
		coord world.ChunkCoord
		last  int64
	}
	c.mu.RLock()
	snapshot := make([]aged, 0, len(c.meshes))
	for coord, entry := range c.meshes {
		snapshot = append(snapshot, aged{coord: coord, last: entry.lastAccessed.Load()})
	}
	c.mu.RUnlock()

	sort.Slice(snapshot, func(a, b int) bool { return snapshot[a].last < snapshot[b].last })

	toRemove := size / 4
	if over := size - c.maxEntries + 200; over < toRemove {
		toRemove = over
	}
	if toRemove > len(snapshot) {
		toRemove = len(snapshot)
	}

	removed := 0
	for _, victim := range snapshot[:toRemove] {
		c.mu.Lock()
		_, ok := c.meshes[victim.coord]
		if ok {
			delete(c.meshes, victim.coord)
		}
		c.mu.Unlock()
		if ok {
			c.size.Add(-1)
			removed++
		}

		// reap the generation lock unless somebody holds or waits on it
		c.lockMu.Lock()
		if kl, ok := c.locks[victim.coord]; ok && kl.refs.Load() == 0 {
			delete(c.locks, victim.coord)
		}
		c.lockMu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.CacheEvicted.Add(float64(removed))
		c.metrics.CacheSize.Set(float64(c.size.Load()))
	}
	if c.log != nil {
		c.log.Info("cache cleanup",
			zap.Int("removed", removed),
			zap.Int("size", c.Size()),
		)
	}
	return removed
}

// RunCleanup runs the periodic eviction pass until the context is cancelled.
func (c *MeshCache) RunCleanup(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
