package client

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aetheris/internal/config"
	"aetheris/internal/mesh"
	"aetheris/internal/world"
)

func testStreamer(t *testing.T, renderDistance int) (*Streamer, *MeshStore) {
	t.Helper()
	cfg := config.Default()
	cfg.RenderDistance = renderDistance
	store := NewMeshStore()
	st := NewStreamer(cfg, nil, store, store, zap.NewNop())
	return st, store
}

func TestTuneForTable(t *testing.T) {
	cases := []struct {
		rd   int
		want Tuning
	}{
		{1, Tuning{4, 32, 10, 16}},
		{4, Tuning{4, 32, 10, 16}},
		{8, Tuning{8, 64, 15, 32}},
		{16, Tuning{16, 128, 20, 64}},
		{17, Tuning{32, 256, 30, 128}},
		{32, Tuning{32, 256, 30, 128}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, TuneFor(tc.rd), "render distance %d", tc.rd)
	}
}

func TestUpdateRequestsNearestFirst(t *testing.T) {
	st, _ := testStreamer(t, 2)
	st.SetPlayerPosition(mgl32.Vec3{16, 48, 16}) // chunk (0,0,0)

	st.update()

	// the player's own column sits at the head of the queue thanks to the
	// under-feet priority boost
	first := <-st.jobs
	require.Equal(t, int32(0), first.coord.X)
	require.Equal(t, int32(0), first.coord.Z)
	require.LessOrEqual(t, first.coord.Y, int32(0))

	// everything queued is inside the shell and marked requested
	count := 1
	drained := false
	for !drained {
		select {
		case req := <-st.jobs:
			dx := req.coord.X
			dz := req.coord.Z
			require.LessOrEqual(t, float64(dx*dx+dz*dz), 4.0+0.001)
			count++
		default:
			drained = true
		}
	}
	require.LessOrEqual(t, count, st.tuning.ChunksPerUpdateBatch)
	require.Greater(t, count, 1)
}

func TestUpdatePrioritiesAscending(t *testing.T) {
	st, _ := testStreamer(t, 4)
	st.SetPlayerPosition(mgl32.Vec3{0, 48, 0})

	st.update()

	last := -1.0
	for {
		select {
		case req := <-st.jobs:
			require.GreaterOrEqual(t, req.priority, last, "queue must drain in ascending priority")
			last = req.priority
		default:
			return
		}
	}
}

func TestUpdateSuppressesDuplicates(t *testing.T) {
	// render distance 1 keeps the whole shell (15 chunks) inside one batch and
	// under the queue-depth cap, so the second cycle is not skipped by the cap
	st, _ := testStreamer(t, 1)
	st.SetPlayerPosition(mgl32.Vec3{0, 48, 0})

	st.update()
	firstLen := len(st.jobs)
	require.Greater(t, firstLen, 0)

	// a second cycle with the same position adds nothing: everything is
	// already in the requested set
	st.update()
	require.Equal(t, firstLen, len(st.jobs))
}

func TestUpdateSkipsLoadedChunks(t *testing.T) {
	st, _ := testStreamer(t, 2)
	st.SetPlayerPosition(mgl32.Vec3{0, 48, 0})

	// load the whole shell over a few cycles (the batch cap spreads it out)
	for i := 0; i < 5; i++ {
		st.update()
		for {
			select {
			case req := <-st.jobs:
				st.markLoaded(req.coord)
				continue
			default:
			}
			break
		}
	}

	st.update()
	require.Zero(t, len(st.jobs), "loaded chunks must not be re-requested")
}

func TestUpdateRespectsQueueCap(t *testing.T) {
	st, _ := testStreamer(t, 16)
	st.SetPlayerPosition(mgl32.Vec3{0, 48, 0})

	// run cycles until the queue passes the cap; the next cycle must not grow it
	for i := 0; i < 50 && len(st.jobs) <= st.tuning.MaxPendingUploads; i++ {
		st.update()
	}
	depth := len(st.jobs)
	require.Greater(t, depth, st.tuning.MaxPendingUploads)

	st.update()
	require.Equal(t, depth, len(st.jobs), "cycle with a full queue must skip enqueueing")
}

func TestVerticalCull(t *testing.T) {
	st, _ := testStreamer(t, 2)
	st.SetPlayerPosition(mgl32.Vec3{0, 48, 0})

	st.update()
	for {
		select {
		case req := <-st.jobs:
			centerY := req.coord.Y*st.cfg.ChunkSizeY + st.cfg.ChunkSizeY/2
			require.LessOrEqual(t, abs32(centerY-48), int32(verticalCullBlocks))
		default:
			return
		}
	}
}

func TestUnloadDropsFarChunks(t *testing.T) {
	st, store := testStreamer(t, 2)

	near := world.ChunkCoord{X: 1, Y: 0, Z: 0}
	farXZ := world.ChunkCoord{X: 10, Y: 0, Z: 0}
	farY := world.ChunkCoord{X: 0, Y: 5, Z: 0}
	for _, c := range []world.ChunkCoord{near, farXZ, farY} {
		store.EnqueueMeshForChunk(c, nil)
		store.SetCollisionMesh(c, mesh.CollisionMesh{})
		st.markLoaded(c)
	}

	st.unloadFar(world.ChunkCoord{})

	require.True(t, st.IsLoaded(near))
	require.False(t, st.IsLoaded(farXZ))
	require.False(t, st.IsLoaded(farY))
	_, ok := store.GetMeshData(farXZ)
	require.False(t, ok, "unload must drop the renderer mesh")
	_, ok = store.GetCollisionMesh(farY)
	require.False(t, ok, "unload must drop the collision mesh")
}

func TestUnloadBoundedPerPass(t *testing.T) {
	st, store := testStreamer(t, 2)
	for x := int32(20); x < 30; x++ {
		c := world.ChunkCoord{X: x}
		store.EnqueueMeshForChunk(c, nil)
		st.markLoaded(c)
	}

	st.unloadFar(world.ChunkCoord{})
	require.Equal(t, 10-maxUnloadsPerPass, st.LoadedCount())
}

func TestMarkFailedFreesSlotForRetry(t *testing.T) {
	st, _ := testStreamer(t, 2)
	c := world.ChunkCoord{X: 1}

	require.True(t, st.enqueue(request{coord: c}))
	require.True(t, st.isPending(c))
	<-st.jobs

	st.markFailed(c)
	require.False(t, st.isPending(c))
	require.False(t, st.IsLoaded(c))

	// the next cycle can queue it again
	require.True(t, st.enqueue(request{coord: c}))
	require.True(t, st.isPending(c))
}

func TestReloadRequeuesChunk(t *testing.T) {
	st, _ := testStreamer(t, 2)
	c := world.ChunkCoord{X: 2, Y: 0, Z: 2}
	st.markLoaded(c)

	st.Reload(c)
	require.False(t, st.IsLoaded(c))
	req := <-st.jobs
	require.Equal(t, c, req.coord)
	require.Zero(t, req.priority)
}
