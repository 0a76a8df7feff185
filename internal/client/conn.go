package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"aetheris/internal/mesh"
	"aetheris/internal/protocol"
	"aetheris/internal/world"
)

const dialTimeout = 5 * time.Second

// Conn is the persistent reliable channel to the chunk server.
//
// Two locks with distinct jobs: connMu guards connection state so at most one
// reconnect is in flight; netMu serializes the whole
// send(request) → recv(render) → recv(collision) exchange, keeping each
// response pair aligned with its request.
type Conn struct {
	addr string
	log  *zap.Logger

	connMu sync.Mutex
	tcp    net.Conn

	netMu sync.Mutex
}

// NewConn creates a lazily-dialed connection to addr ("host:port").
func NewConn(addr string, log *zap.Logger) *Conn {
	return &Conn{addr: addr, log: log}
}

// RequestChunk performs one request/response transaction. On any I/O failure
// the connection is torn down and the next call redials.
func (c *Conn) RequestChunk(coord world.ChunkCoord) (mesh.RenderMesh, mesh.CollisionMesh, error) {
	c.netMu.Lock()
	defer c.netMu.Unlock()

	conn, err := c.ensureConnected()
	if err != nil {
		return nil, mesh.CollisionMesh{}, err
	}

	if err := protocol.WriteRequest(conn, coord); err != nil {
		c.markBroken(conn)
		return nil, mesh.CollisionMesh{}, fmt.Errorf("send request %v: %w", coord, err)
	}
	render, err := protocol.ReadRenderMesh(conn)
	if err != nil {
		c.markBroken(conn)
		return nil, mesh.CollisionMesh{}, fmt.Errorf("recv render mesh %v: %w", coord, err)
	}
	collision, err := protocol.ReadCollisionMesh(conn)
	if err != nil {
		c.markBroken(conn)
		return nil, mesh.CollisionMesh{}, fmt.Errorf("recv collision mesh %v: %w", coord, err)
	}
	return render, collision, nil
}

// ensureConnected returns the live connection, dialing if needed.
func (c *Conn) ensureConnected() (net.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.tcp != nil {
		return c.tcp, nil
	}

	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	c.log.Info("connected", zap.String("addr", c.addr))
	c.tcp = conn
	return conn, nil
}

// markBroken discards the connection if it is still the current one, so a
// concurrent reconnect is not clobbered.
func (c *Conn) markBroken(conn net.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.tcp == conn {
		conn.Close()
		c.tcp = nil
		c.log.Warn("connection lost, will redial", zap.String("addr", c.addr))
	}
}

// Close tears the connection down.
func (c *Conn) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.tcp == nil {
		return nil
	}
	err := c.tcp.Close()
	c.tcp = nil
	return err
}
