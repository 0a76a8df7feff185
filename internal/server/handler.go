package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"aetheris/internal/mesh"
	"aetheris/internal/protocol"
)

// handleConn services one client on the reliable channel: read 12-byte chunk
// requests, dispatch generation to a worker, and send the response pair back.
//
// The send path is serialized by a per-connection mutex so the render and
// collision payloads of one response are never interleaved with another
// response on the same socket.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			log.Warn("disable nagle", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.Connections.Inc()
		defer s.metrics.Connections.Dec()
	}
	log.Info("client connected")

	// unblock the read loop when the server shuts down
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var sendMu sync.Mutex
	var workers sync.WaitGroup
	defer workers.Wait()
	defer conn.Close()

	for {
		coord, err := protocol.ReadRequest(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("client disconnected")
			case ctx.Err() != nil:
				// shutdown, not an error
			default:
				log.Error("read request", zap.Error(err))
			}
			return
		}

		workers.Add(1)
		go func() {
			defer workers.Done()
			data, err := s.cache.GetOrGenerate(coord)
			if err != nil {
				// no error frame exists on the wire; drop the connection and
				// let the client reconnect and retry
				log.Error("generate mesh", zap.Stringer("chunk", coord), zap.Error(err))
				conn.Close()
				return
			}
			collision := mesh.BuildCollision(data)

			sendMu.Lock()
			defer sendMu.Unlock()
			if err := protocol.WriteRenderMesh(conn, data); err != nil {
				if ctx.Err() == nil {
					log.Error("send render mesh", zap.Stringer("chunk", coord), zap.Error(err))
				}
				conn.Close()
				return
			}
			if err := protocol.WriteCollisionMesh(conn, collision); err != nil {
				if ctx.Err() == nil {
					log.Error("send collision mesh", zap.Stringer("chunk", coord), zap.Error(err))
				}
				conn.Close()
				return
			}
			if s.metrics != nil {
				s.metrics.MeshesServed.Inc()
			}
		}()
	}
}
