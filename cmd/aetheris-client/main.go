package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"go.uber.org/zap"

	"aetheris/internal/client"
	"aetheris/internal/config"
	"aetheris/internal/physics"
	"aetheris/internal/player"
	"aetheris/internal/protocol"
	"aetheris/internal/world"
)

// Headless client: connects to a chunk server, streams the shell around a
// slowly wandering player, and reports progress. The renderer seam is the
// in-memory mesh store, so the same wiring drives the real game.
func main() {
	host := flag.String("host", "127.0.0.1", "chunk server host")
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	conn := client.NewConn(fmt.Sprintf("%s:%d", *host, cfg.ServerPort), log.Named("conn"))
	defer conn.Close()

	store := client.NewMeshStore()
	streamer := client.NewStreamer(cfg, conn, store, store, log.Named("streamer"))

	playerID := rand.Uint32()
	dgram, err := client.NewDatagram(fmt.Sprintf("%s:%d", *host, cfg.DatagramPort()), playerID, log.Named("udp"))
	if err != nil {
		log.Fatal("datagram channel", zap.Error(err))
	}
	defer dgram.Close()

	// remote block edits invalidate the local meshes around them
	dgram.OnBlockBreak = func(bb protocol.BlockBreak) {
		c := world.ChunkForBlock(bb.X, bb.Y, bb.Z, cfg.ChunkSize, cfg.ChunkSizeY)
		streamer.Reload(c)
	}

	p := player.New()
	caster := &physics.Raycaster{
		Source:     store,
		ChunkSize:  cfg.ChunkSize,
		ChunkSizeY: cfg.ChunkSizeY,
	}
	miner := player.NewMiner(caster, p)
	miner.OnBlockMined = func(pos [3]int32, bt world.BlockType) {
		log.Info("mined block",
			zap.Int32s("pos", pos[:]),
			zap.Stringer("type", bt),
		)
		dgram.SendBlockBreak(protocol.BlockBreak{X: pos[0], Y: pos[1], Z: pos[2]})
	}

	ctx, cancel := context.WithCancel(context.Background())
	closer.Bind(cancel)

	go streamer.Run(ctx)
	go streamer.RunLoader(ctx)
	go dgram.Run(ctx)

	go gameLoop(ctx, cfg, p, streamer, dgram, miner, log)

	closer.Hold()
}

// gameLoop stands in for the real game thread: it moves the player, feeds
// positions to the scheduler, reports state over the datagram channel, and
// ticks the miner.
func gameLoop(ctx context.Context, cfg config.Config, p *player.Player, streamer *client.Streamer, dgram *client.Datagram, miner *player.Miner, log *zap.Logger) {
	const frameRate = 30
	frame := time.NewTicker(time.Second / frameRate)
	defer frame.Stop()
	keepAlive := time.NewTicker(5 * time.Second)
	defer keepAlive.Stop()
	stats := time.NewTicker(5 * time.Second)
	defer stats.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return

		case <-frame.C:
			// drift in a slow circle so the shell keeps moving
			elapsed := time.Since(start).Seconds()
			radius := float64(cfg.ChunkSize)
			p.Position = mgl32.Vec3{
				float32(radius * math.Cos(elapsed/30)),
				p.Position.Y(),
				float32(radius * math.Sin(elapsed/30)),
			}
			streamer.SetPlayerPosition(p.Position)
			miner.Update(1.0/frameRate, true, true)

		case <-keepAlive.C:
			dgram.SendKeepAlive()
			dgram.SendEntityUpdate(protocol.EntityUpdate{
				Pos:   p.Position,
				Vel:   p.Velocity,
				Yaw:   float32(p.Yaw),
				Pitch: float32(p.Pitch),
			})

		case <-stats.C:
			log.Info("streaming stats", zap.Int("loaded_chunks", streamer.LoadedCount()))
		}
	}
}
