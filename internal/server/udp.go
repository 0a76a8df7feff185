package server

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"aetheris/internal/protocol"
	"aetheris/internal/world"
)

const (
	maxDatagramBytes = 512

	// blockBreakRadius and blockBreakStrength shape the density carve-out
	// applied for every BlockBreak datagram.
	blockBreakRadius   = 1.5
	blockBreakStrength = 3.0

	// meshSettleDelay lets density edits land before the affected chunks
	// are re-meshed.
	meshSettleDelay = 10 * time.Millisecond

	peerTimeout        = 30 * time.Second
	unknownLogInterval = 5 * time.Second
)

// peerTable tracks datagram senders so entity updates can be fanned out to
// everyone else.
type peerTable struct {
	mu    sync.Mutex
	peers map[string]*peerState
}

type peerState struct {
	addr     *net.UDPAddr
	playerID uint32
	ackSeq   uint32
	lastSeen time.Time
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[string]*peerState)}
}

// touch records activity from addr and returns its state.
func (pt *peerTable) touch(addr *net.UDPAddr, playerID uint32) *peerState {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	key := addr.String()
	p, ok := pt.peers[key]
	if !ok {
		p = &peerState{addr: addr}
		pt.peers[key] = p
	}
	p.playerID = playerID
	p.lastSeen = time.Now()
	return p
}

// others returns the addresses of every live peer except the given one,
// dropping peers that have gone quiet.
func (pt *peerTable) others(except *net.UDPAddr) []*net.UDPAddr {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	cutoff := time.Now().Add(-peerTimeout)
	var out []*net.UDPAddr
	for key, p := range pt.peers {
		if p.lastSeen.Before(cutoff) {
			delete(pt.peers, key)
			continue
		}
		if key == except.String() {
			continue
		}
		out = append(out, p.addr)
	}
	return out
}

// runDatagramLoop owns the receive side of the UDP socket and dispatches on
// packet type. Sends are fire-and-forget.
func (s *Server) runDatagramLoop(ctx context.Context) error {
	log := s.log.Named("udp")
	buf := make([]byte, maxDatagramBytes)
	lastUnknownLog := make(map[protocol.PacketType]time.Time)

	for {
		n, addr, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("udp read", zap.Error(err))
			continue
		}

		typ, payload, err := protocol.SplitDatagram(buf[:n])
		if err != nil {
			log.Warn("bad datagram", zap.Error(err))
			continue
		}

		switch typ {
		case protocol.PacketKeepAlive:
			// echoed verbatim
			s.udp.WriteToUDP(buf[:n], addr)

		case protocol.PacketEntityUpdate:
			update, err := protocol.DecodeEntityUpdate(payload)
			if err != nil {
				log.Warn("bad entity update", zap.Error(err))
				continue
			}
			peer := s.peers.touch(addr, update.PlayerID)
			peer.ackSeq++
			ack := protocol.PositionAck{
				AckSeq: peer.ackSeq,
				Pos:    update.Pos,
				Vel:    update.Vel,
				Yaw:    update.Yaw,
				Pitch:  update.Pitch,
			}
			s.udp.WriteToUDP(ack.Encode(), addr)
			for _, other := range s.peers.others(addr) {
				s.udp.WriteToUDP(buf[:n], other)
			}

		case protocol.PacketBlockBreak:
			bb, err := protocol.DecodeBlockBreak(payload)
			if err != nil {
				log.Warn("bad block break", zap.Error(err))
				continue
			}
			s.applyBlockBreak(bb)
			for _, other := range s.peers.others(addr) {
				s.udp.WriteToUDP(buf[:n], other)
			}

		default:
			if time.Since(lastUnknownLog[typ]) > unknownLogInterval {
				lastUnknownLog[typ] = time.Now()
				log.Warn("unknown datagram type", zap.Stringer("type", typ))
			}
		}
	}
}

// applyBlockBreak carves the density field around the block center and
// schedules a re-mesh of every cached chunk the edit can touch.
func (s *Server) applyBlockBreak(bb protocol.BlockBreak) {
	cx := float32(bb.X) + 0.5
	cy := float32(bb.Y) + 0.5
	cz := float32(bb.Z) + 0.5
	s.field.RemoveBlock(cx, cy, cz, blockBreakRadius, blockBreakStrength)

	affected := affectedChunks(bb, blockBreakRadius, s.cfg.ChunkSize, s.cfg.ChunkSizeY)
	time.AfterFunc(meshSettleDelay, func() {
		for _, coord := range affected {
			if !s.cache.Contains(coord) {
				continue
			}
			if _, err := s.cache.Regenerate(coord); err != nil {
				s.log.Warn("remesh after block break", zap.Stringer("chunk", coord), zap.Error(err))
			}
		}
	})
}

// affectedChunks lists the chunks whose meshes a carve around the block can
// change, including neighbors when the radius crosses a border.
func affectedChunks(bb protocol.BlockBreak, radius float32, chunkSize, chunkSizeY int32) []world.ChunkCoord {
	r := int32(math.Ceil(float64(radius)))
	seen := make(map[world.ChunkCoord]struct{})
	var out []world.ChunkCoord
	for _, dx := range []int32{-r, 0, r} {
		for _, dy := range []int32{-r, 0, r} {
			for _, dz := range []int32{-r, 0, r} {
				c := world.ChunkForBlock(bb.X+dx, bb.Y+dy, bb.Z+dz, chunkSize, chunkSizeY)
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}
