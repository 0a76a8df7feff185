package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"aetheris/internal/protocol"
)

const (
	maxDatagramBytes   = 512
	unknownLogInterval = 5 * time.Second
)

// Datagram is the client end of the UDP channel: fire-and-forget sends to
// the server, one receive loop dispatching on packet type.
type Datagram struct {
	conn     *net.UDPConn
	server   *net.UDPAddr
	playerID uint32
	log      *zap.Logger

	// OnEntityUpdate receives other players' transforms.
	OnEntityUpdate func(protocol.EntityUpdate)
	// OnPositionAck receives the server's confirmation of our last update.
	OnPositionAck func(protocol.PositionAck)
	// OnBlockBreak receives remote block edits to apply locally.
	OnBlockBreak func(protocol.BlockBreak)
}

// NewDatagram binds a local UDP socket talking to the server's datagram port.
func NewDatagram(serverAddr string, playerID uint32, log *zap.Logger) (*Datagram, error) {
	server, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", serverAddr, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("bind udp: %w", err)
	}
	return &Datagram{conn: conn, server: server, playerID: playerID, log: log}, nil
}

// SendEntityUpdate reports the local player transform.
func (d *Datagram) SendEntityUpdate(u protocol.EntityUpdate) {
	u.PlayerID = d.playerID
	d.conn.WriteToUDP(u.Encode(), d.server)
}

// SendBlockBreak reports a mined block.
func (d *Datagram) SendBlockBreak(b protocol.BlockBreak) {
	d.conn.WriteToUDP(b.Encode(), d.server)
}

// SendKeepAlive pokes the server so NAT mappings stay warm.
func (d *Datagram) SendKeepAlive() {
	d.conn.WriteToUDP(protocol.EncodeKeepAlive(), d.server)
}

// Run owns the receive side until ctx is cancelled.
func (d *Datagram) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.conn.Close()
	}()

	buf := make([]byte, maxDatagramBytes)
	lastUnknownLog := make(map[protocol.PacketType]time.Time)

	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Warn("udp read", zap.Error(err))
			continue
		}

		typ, payload, err := protocol.SplitDatagram(buf[:n])
		if err != nil {
			d.log.Warn("bad datagram", zap.Error(err))
			continue
		}

		switch typ {
		case protocol.PacketKeepAlive:
			// echoed verbatim
			d.conn.WriteToUDP(buf[:n], addr)

		case protocol.PacketEntityUpdate:
			update, err := protocol.DecodeEntityUpdate(payload)
			if err != nil {
				d.log.Warn("bad entity update", zap.Error(err))
				continue
			}
			if d.OnEntityUpdate != nil {
				d.OnEntityUpdate(update)
			}

		case protocol.PacketPositionAck:
			ack, err := protocol.DecodePositionAck(payload)
			if err != nil {
				d.log.Warn("bad position ack", zap.Error(err))
				continue
			}
			if d.OnPositionAck != nil {
				d.OnPositionAck(ack)
			}

		case protocol.PacketBlockBreak:
			bb, err := protocol.DecodeBlockBreak(payload)
			if err != nil {
				d.log.Warn("bad block break", zap.Error(err))
				continue
			}
			if d.OnBlockBreak != nil {
				d.OnBlockBreak(bb)
			}

		default:
			if time.Since(lastUnknownLog[typ]) > unknownLogInterval {
				lastUnknownLog[typ] = time.Now()
				d.log.Warn("unknown datagram type", zap.Stringer("type", typ))
			}
		}
	}
}

// Close releases the socket.
func (d *Datagram) Close() error {
	return d.conn.Close()
}
