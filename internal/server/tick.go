package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// tickLoop advances the server's fixed-rate simulation clock independently of
// network I/O. Tick work is empty for now; the scaffold exists so future
// authoritative state has a home.
type tickLoop struct {
	rate    int
	log     *zap.Logger
	cache   *MeshCache
	metrics *Metrics

	tickCount uint64
}

func newTickLoop(rate int, log *zap.Logger, cache *MeshCache, metrics *Metrics) *tickLoop {
	return &tickLoop{rate: rate, log: log, cache: cache, metrics: metrics}
}

// Run drives the accumulator loop until the context is cancelled: measure
// elapsed wall time, consume whole ticks, sleep the remainder to the next
// tick boundary.
func (t *tickLoop) Run(ctx context.Context) error {
	tickDuration := time.Second / time.Duration(t.rate)

	last := time.Now()
	var accumulator time.Duration

	for {
		now := time.Now()
		accumulator += now.Sub(last)
		last = now

		for accumulator >= tickDuration {
			accumulator -= tickDuration
			t.tick()
		}

		sleep := tickDuration - accumulator
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

func (t *tickLoop) tick() {
	t.tickCount++
	if t.metrics != nil {
		t.metrics.Ticks.Inc()
	}
	if t.tickCount%uint64(5*t.rate) == 0 {
		t.log.Info("tick stats",
			zap.Uint64("ticks", t.tickCount),
			zap.Int("cached_meshes", t.cache.Size()),
		)
	}
}
