// Package server implements the chunk serving core: a TCP listener streaming
// length-framed meshes out of a single-flight cache, a fixed-rate tick loop,
// and a datagram channel for player state and block edits.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aetheris/internal/config"
	"aetheris/internal/world"
)

// Server owns the listeners and the shared mesh cache.
type Server struct {
	cfg     config.Config
	log     *zap.Logger
	field   *world.Field
	cache   *MeshCache
	metrics *Metrics
	reg     *prometheus.Registry

	mu  sync.Mutex
	ln  net.Listener
	udp *net.UDPConn

	peers *peerTable
}

// New wires the server from config: density field, mesher, cache, metrics.
func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	field := world.NewField(cfg.WorldSeed)
	mesher := world.NewTerrainMesher(field, cfg.ChunkSize, cfg.ChunkSizeY)
	return NewWithGenerator(cfg, log, field, mesher)
}

// NewWithGenerator wires the server around an explicit mesh generator.
func NewWithGenerator(cfg config.Config, log *zap.Logger, field *world.Field, gen Generator) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	cache := NewMeshCache(gen, cfg.MaxCachedMeshes, log.Named("cache"), metrics)

	return &Server{
		cfg:     cfg,
		log:     log,
		field:   field,
		cache:   cache,
		metrics: metrics,
		reg:     reg,
		peers:   newPeerTable(),
	}, nil
}

// Cache exposes the mesh cache, mainly for tests and stats.
func (s *Server) Cache() *MeshCache { return s.cache }

// Addr returns the reliable channel's bound address once Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// UDPAddr returns the datagram channel's bound address once Run has started.
func (s *Server) UDPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// Run binds both channels and serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ServerPort))
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	defer ln.Close()

	udpAddr := &net.UDPAddr{Port: s.cfg.DatagramPort()}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer udp.Close()

	s.mu.Lock()
	s.ln = ln
	s.udp = udp
	s.mu.Unlock()

	s.log.Info("listening",
		zap.String("tcp", ln.Addr().String()),
		zap.String("udp", udp.LocalAddr().String()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.acceptLoop(ctx) })
	g.Go(func() error { return newTickLoop(s.cfg.TickRate, s.log.Named("tick"), s.cache, s.metrics).Run(ctx) })
	g.Go(func() error { return s.cache.RunCleanup(ctx) })
	g.Go(func() error { return s.runDatagramLoop(ctx) })

	if s.cfg.MetricsPort > 0 {
		g.Go(func() error { return s.serveMetrics(ctx) })
	}

	// close the listeners when shutdown starts so blocked reads return
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		udp.Close()
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
