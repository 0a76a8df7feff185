package client

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// RunLoader consumes the request queue and fetches chunks over the reliable
// channel, keeping at most MaxConcurrentLoads requests in flight. A finished
// load lands the render mesh on the upload queue and the collision mesh in
// physics; a failed load frees the requested slot so a later scheduler cycle
// retries.
func (st *Streamer) RunLoader(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(st.tuning.MaxConcurrentLoads))
	for {
		var req request
		select {
		case <-ctx.Done():
			return nil
		case req = <-st.jobs:
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		go func(req request) {
			defer sem.Release(1)
			st.load(ctx, req)
		}(req)
	}
}

func (st *Streamer) load(ctx context.Context, req request) {
	render, collision, err := st.conn.RequestChunk(req.coord)
	if err != nil {
		if ctx.Err() == nil {
			st.log.Warn("chunk load failed",
				zap.Stringer("chunk", req.coord),
				zap.Error(err),
			)
		}
		st.markFailed(req.coord)
		return
	}

	st.uploader.EnqueueMeshForChunk(req.coord, render)
	if st.collision != nil {
		st.collision.SetCollisionMesh(req.coord, collision)
	}
	st.markLoaded(req.coord)
}
