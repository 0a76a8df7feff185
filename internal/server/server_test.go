package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aetheris/internal/config"
	"aetheris/internal/protocol"
	"aetheris/internal/world"
)

func startTestServer(t *testing.T, gen Generator, field *world.Field) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.ServerPort = 0

	srv, err := NewWithGenerator(cfg, zap.NewNop(), field, gen)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return srv.Addr() != nil && srv.UDPAddr() != nil
	}, 5*time.Second, 10*time.Millisecond)
	return srv
}

func tcpAddr(srv *Server) string {
	return fmt.Sprintf("127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)
}

func udpAddr(srv *Server) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: srv.UDPAddr().(*net.UDPAddr).Port}
}

func TestServerDecodesGoldenRequestFrame(t *testing.T) {
	gen := newCountingGenerator()
	srv := startTestServer(t, gen, world.NewField(1))

	conn, err := net.Dial("tcp", tcpAddr(srv))
	require.NoError(t, err)
	defer conn.Close()

	// golden frame for (1, -2, 3)
	_, err = conn.Write([]byte{
		0x01, 0x00, 0x00, 0x00,
		0xFE, 0xFF, 0xFF, 0xFF,
		0x03, 0x00, 0x00, 0x00,
	})
	require.NoError(t, err)

	render, err := protocol.ReadRenderMesh(conn)
	require.NoError(t, err)
	require.Equal(t, 1, render.VertexCount())
	_, err = protocol.ReadCollisionMesh(conn)
	require.NoError(t, err)

	require.Equal(t, 1, gen.count(world.ChunkCoord{X: 1, Y: -2, Z: 3}))
}

func TestKeepAliveEcho(t *testing.T) {
	gen := newCountingGenerator()
	srv := startTestServer(t, gen, world.NewField(1))

	conn, err := net.DialUDP("udp", nil, udpAddr(srv))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(protocol.EncodeKeepAlive())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, protocol.EncodeKeepAlive(), buf[:n])
}

func TestEntityUpdateAcked(t *testing.T) {
	gen := newCountingGenerator()
	srv := startTestServer(t, gen, world.NewField(1))

	conn, err := net.DialUDP("udp", nil, udpAddr(srv))
	require.NoError(t, err)
	defer conn.Close()

	update := protocol.EntityUpdate{PlayerID: 9, Yaw: 90}
	_, err = conn.Write(update.Encode())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	typ, payload, err := protocol.SplitDatagram(buf[:n])
	require.NoError(t, err)
	require.Equal(t, protocol.PacketPositionAck, typ)
	ack, err := protocol.DecodePositionAck(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(1), ack.AckSeq)
	require.Equal(t, update.Yaw, ack.Yaw)
}

func TestUnknownDatagramDropped(t *testing.T) {
	gen := newCountingGenerator()
	srv := startTestServer(t, gen, world.NewField(1))

	conn, err := net.DialUDP("udp", nil, udpAddr(srv))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xAB, 1, 2, 3})
	require.NoError(t, err)

	// no reply comes back
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 64)
	_, err = conn.Read(buf)
	require.Error(t, err)
}

func TestBlockBreakRemeshesCachedChunk(t *testing.T) {
	field := world.NewField(1)
	cfg := config.Default()
	mesher := world.NewTerrainMesher(field, cfg.ChunkSize, cfg.ChunkSizeY)
	srv := startTestServer(t, mesher, field)

	// find a solid surface voxel inside chunk (0,0,0)
	var bx, by, bz int32 = 8, -1, 8
	for y := cfg.ChunkSizeY - 1; y >= 0; y-- {
		if field.Solid(bx, y, bz) {
			by = y
			break
		}
	}
	require.GreaterOrEqual(t, by, int32(0), "terrain should have a surface in chunk (0,0,0)")

	// warm the cache over the reliable channel
	tcp, err := net.Dial("tcp", tcpAddr(srv))
	require.NoError(t, err)
	defer tcp.Close()
	require.NoError(t, protocol.WriteRequest(tcp, world.ChunkCoord{}))
	before, err := protocol.ReadRenderMesh(tcp)
	require.NoError(t, err)
	_, err = protocol.ReadCollisionMesh(tcp)
	require.NoError(t, err)
	require.Greater(t, before.VertexCount(), 0)

	// carve the block over the datagram channel
	udp, err := net.DialUDP("udp", nil, udpAddr(srv))
	require.NoError(t, err)
	defer udp.Close()
	_, err = udp.Write(protocol.BlockBreak{X: bx, Y: by, Z: bz}.Encode())
	require.NoError(t, err)

	// the voxel goes to air and the cached mesh is rebuilt after the settle delay
	require.Eventually(t, func() bool {
		return !field.Solid(bx, by, bz)
	}, 2*time.Second, 10*time.Millisecond, "block break should carve the density field")

	require.Eventually(t, func() bool {
		require.NoError(t, protocol.WriteRequest(tcp, world.ChunkCoord{}))
		after, err := protocol.ReadRenderMesh(tcp)
		require.NoError(t, err)
		_, err = protocol.ReadCollisionMesh(tcp)
		require.NoError(t, err)
		return len(after) != len(before)
	}, 5*time.Second, 50*time.Millisecond, "cached mesh should change after the carve")
}
