package client

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"aetheris/internal/config"
	"aetheris/internal/profiling"
	"aetheris/internal/world"
)

// Tuning bounds the streaming pipeline. Derived from the render distance so
// small view distances stay snappy and large ones keep the pipe full.
type Tuning struct {
	MaxConcurrentLoads   int
	ChunksPerUpdateBatch int
	UpdatesPerSecond     int
	MaxPendingUploads    int
}

// TuneFor picks streaming limits for a render distance.
func TuneFor(renderDistance int) Tuning {
	switch {
	case renderDistance <= 4:
		return Tuning{MaxConcurrentLoads: 4, ChunksPerUpdateBatch: 32, UpdatesPerSecond: 10, MaxPendingUploads: 16}
	case renderDistance <= 8:
		return Tuning{MaxConcurrentLoads: 8, ChunksPerUpdateBatch: 64, UpdatesPerSecond: 15, MaxPendingUploads: 32}
	case renderDistance <= 16:
		return Tuning{MaxConcurrentLoads: 16, ChunksPerUpdateBatch: 128, UpdatesPerSecond: 20, MaxPendingUploads: 64}
	default:
		return Tuning{MaxConcurrentLoads: 32, ChunksPerUpdateBatch: 256, UpdatesPerSecond: 30, MaxPendingUploads: 128}
	}
}

const (
	// verticalCullBlocks skips chunks whose vertical center is further than
	// this from the player's altitude.
	verticalCullBlocks = 150

	// nearColumnBoost drags the priority of the 3x3 column at or below the
	// player toward zero so the ground under foot streams first.
	nearColumnBoost = 0.01

	unloadProbability = 0.1
	unloadMarginXZ    = 2
	unloadMarginY     = 3
	maxUnloadsPerPass = 4
)

type request struct {
	coord    world.ChunkCoord
	priority float64
}

// Streamer decides which chunks to request and which loaded chunks to drop,
// keeping a moving shell of terrain around the player.
type Streamer struct {
	cfg    config.Config
	log    *zap.Logger
	tuning Tuning

	conn      *Conn
	uploader  MeshUploader
	collision CollisionReceiver

	jobs chan request

	// pending is the requested set: queued or in flight, used to suppress
	// duplicates. Entries leave on load, failure or unload.
	pendingMu sync.Mutex
	pending   map[world.ChunkCoord]struct{}

	loadedMu sync.RWMutex
	loaded   map[world.ChunkCoord]struct{}

	playerMu  sync.Mutex
	playerPos mgl32.Vec3
	hasPlayer bool

	renderDistance int
	rng            *rand.Rand
}

// NewStreamer wires a streamer for the given connection and renderer seam.
func NewStreamer(cfg config.Config, conn *Conn, uploader MeshUploader, collision CollisionReceiver, log *zap.Logger) *Streamer {
	tuning := TuneFor(cfg.RenderDistance)
	return &Streamer{
		cfg:            cfg,
		log:            log,
		tuning:         tuning,
		conn:           conn,
		uploader:       uploader,
		collision:      collision,
		jobs:           make(chan request, tuning.MaxPendingUploads+tuning.ChunksPerUpdateBatch),
		pending:        make(map[world.ChunkCoord]struct{}),
		loaded:         make(map[world.ChunkCoord]struct{}),
		renderDistance: cfg.RenderDistance,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tuning returns the streaming limits in effect.
func (st *Streamer) Tuning() Tuning { return st.tuning }

// SetPlayerPosition feeds the player's world position from the game thread.
func (st *Streamer) SetPlayerPosition(pos mgl32.Vec3) {
	st.playerMu.Lock()
	st.playerPos = pos
	st.hasPlayer = true
	st.playerMu.Unlock()
}

// IsLoaded reports whether the chunk has been delivered to the renderer.
func (st *Streamer) IsLoaded(c world.ChunkCoord) bool {
	st.loadedMu.RLock()
	_, ok := st.loaded[c]
	st.loadedMu.RUnlock()
	return ok
}

// LoadedCount returns the number of chunks currently loaded.
func (st *Streamer) LoadedCount() int {
	st.loadedMu.RLock()
	defer st.loadedMu.RUnlock()
	return len(st.loaded)
}

// Run drives update cycles at the tuned rate until ctx is cancelled.
func (st *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(st.tuning.UpdatesPerSecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st.update()
		}
	}
}

// update runs one scheduler cycle: walk the shell, cull, prioritize, enqueue
// a batch, and occasionally unload strays.
func (st *Streamer) update() {
	defer profiling.Track("client.SchedulerUpdate")()

	st.playerMu.Lock()
	pos := st.playerPos
	ok := st.hasPlayer
	st.playerMu.Unlock()
	if !ok {
		return
	}

	blockX := int32(math.Floor(float64(pos.X())))
	blockY := int32(math.Floor(float64(pos.Y())))
	blockZ := int32(math.Floor(float64(pos.Z())))
	pc := world.ChunkForBlock(blockX, blockY, blockZ, st.cfg.ChunkSize, st.cfg.ChunkSizeY)

	rd := st.renderDistance
	var candidates []request
	for dx := -rd; dx <= rd; dx++ {
		for dz := -rd; dz <= rd; dz++ {
			if math.Sqrt(float64(dx*dx+dz*dz)) > float64(rd) {
				continue
			}
			for dy := -2; dy <= 2; dy++ {
				coord := world.ChunkCoord{
					X: pc.X + int32(dx),
					Y: pc.Y + int32(dy),
					Z: pc.Z + int32(dz),
				}
				centerY := coord.Y*st.cfg.ChunkSizeY + st.cfg.ChunkSizeY/2
				if abs32(centerY-blockY) > verticalCullBlocks {
					continue
				}
				if st.IsLoaded(coord) || st.isPending(coord) {
					continue
				}
				prio := math.Sqrt(float64(dx*dx + 4*dy*dy + dz*dz))
				if dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1 && dy <= 0 {
					prio *= nearColumnBoost
				}
				candidates = append(candidates, request{coord: coord, priority: prio})
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].priority < candidates[b].priority
	})

	if len(st.jobs) <= st.tuning.MaxPendingUploads {
		limit := st.tuning.ChunksPerUpdateBatch
		if limit > len(candidates) {
			limit = len(candidates)
		}
		for _, req := range candidates[:limit] {
			if !st.enqueue(req) {
				break
			}
		}
	}

	if st.rng.Float64() < unloadProbability {
		st.unloadFar(pc)
	}
}

// enqueue marks the chunk requested and pushes it to the loader. The queue
// never blocks the scheduler; a full channel rolls the mark back.
func (st *Streamer) enqueue(req request) bool {
	st.pendingMu.Lock()
	if _, dup := st.pending[req.coord]; dup {
		st.pendingMu.Unlock()
		return true
	}
	st.pending[req.coord] = struct{}{}
	st.pendingMu.Unlock()

	select {
	case st.jobs <- req:
		return true
	default:
		st.pendingMu.Lock()
		delete(st.pending, req.coord)
		st.pendingMu.Unlock()
		return false
	}
}

// Reload drops a chunk and queues it again at top priority. Used when a
// block edit invalidates its mesh.
func (st *Streamer) Reload(coords ...world.ChunkCoord) {
	for _, coord := range coords {
		st.loadedMu.Lock()
		delete(st.loaded, coord)
		st.loadedMu.Unlock()
		st.enqueue(request{coord: coord, priority: 0})
	}
}

// unloadFar drops chunks that drifted out of the shell, a few per pass.
func (st *Streamer) unloadFar(pc world.ChunkCoord) {
	limitXZ := float64(st.renderDistance + unloadMarginXZ)

	st.loadedMu.RLock()
	var victims []world.ChunkCoord
	for coord := range st.loaded {
		dx := float64(coord.X - pc.X)
		dz := float64(coord.Z - pc.Z)
		dy := coord.Y - pc.Y
		if math.Sqrt(dx*dx+dz*dz) > limitXZ || abs32(dy) > unloadMarginY {
			victims = append(victims, coord)
			if len(victims) == maxUnloadsPerPass {
				break
			}
		}
	}
	st.loadedMu.RUnlock()

	for _, coord := range victims {
		st.unload(coord)
	}
	if len(victims) > 0 {
		st.log.Debug("unloaded chunks", zap.Int("count", len(victims)))
	}
}

func (st *Streamer) unload(coord world.ChunkCoord) {
	st.loadedMu.Lock()
	delete(st.loaded, coord)
	st.loadedMu.Unlock()
	st.pendingMu.Lock()
	delete(st.pending, coord)
	st.pendingMu.Unlock()
	st.uploader.DropMeshForChunk(coord)
	if st.collision != nil {
		st.collision.DropCollisionMesh(coord)
	}
}

func (st *Streamer) isPending(c world.ChunkCoord) bool {
	st.pendingMu.Lock()
	_, ok := st.pending[c]
	st.pendingMu.Unlock()
	return ok
}

func (st *Streamer) markLoaded(c world.ChunkCoord) {
	st.loadedMu.Lock()
	st.loaded[c] = struct{}{}
	st.loadedMu.Unlock()
	st.pendingMu.Lock()
	delete(st.pending, c)
	st.pendingMu.Unlock()
}

func (st *Streamer) markFailed(c world.ChunkCoord) {
	// leave loaded untouched; just free the slot so a later cycle retries
	st.pendingMu.Lock()
	delete(st.pending, c)
	st.pendingMu.Unlock()
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
