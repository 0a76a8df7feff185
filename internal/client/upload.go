// Package client implements the chunk streaming core of the game client: a
// persistent connection to the chunk server, a priority-driven scheduler that
// keeps a moving shell of chunks loaded around the player, and the datagram
// channel for player state and block edits.
package client

import (
	"sync"

	"aetheris/internal/mesh"
	"aetheris/internal/world"
)

// MeshUploader is the one-way seam toward the renderer: the client pushes
// meshes through it and never sees the renderer itself, which keeps the
// game → client → renderer ownership acyclic.
type MeshUploader interface {
	EnqueueMeshForChunk(c world.ChunkCoord, m mesh.RenderMesh)
	DropMeshForChunk(c world.ChunkCoord)
}

// CollisionReceiver hands collision meshes to the physics world.
type CollisionReceiver interface {
	SetCollisionMesh(c world.ChunkCoord, m mesh.CollisionMesh)
	DropCollisionMesh(c world.ChunkCoord)
}

// MeshStore is the default in-memory implementation of both seams. It also
// backs the raycaster: GetMeshData serves the renderer-cached triangles.
type MeshStore struct {
	mu        sync.RWMutex
	render    map[world.ChunkCoord]mesh.RenderMesh
	collision map[world.ChunkCoord]mesh.CollisionMesh
}

func NewMeshStore() *MeshStore {
	return &MeshStore{
		render:    make(map[world.ChunkCoord]mesh.RenderMesh),
		collision: make(map[world.ChunkCoord]mesh.CollisionMesh),
	}
}

func (s *MeshStore) EnqueueMeshForChunk(c world.ChunkCoord, m mesh.RenderMesh) {
	s.mu.Lock()
	s.render[c] = m
	s.mu.Unlock()
}

func (s *MeshStore) DropMeshForChunk(c world.ChunkCoord) {
	s.mu.Lock()
	delete(s.render, c)
	s.mu.Unlock()
}

func (s *MeshStore) SetCollisionMesh(c world.ChunkCoord, m mesh.CollisionMesh) {
	s.mu.Lock()
	s.collision[c] = m
	s.mu.Unlock()
}

func (s *MeshStore) DropCollisionMesh(c world.ChunkCoord) {
	s.mu.Lock()
	delete(s.collision, c)
	s.mu.Unlock()
}

// GetMeshData returns the cached render mesh for a chunk. Implements
// physics.TriangleSource.
func (s *MeshStore) GetMeshData(c world.ChunkCoord) (mesh.RenderMesh, bool) {
	s.mu.RLock()
	m, ok := s.render[c]
	s.mu.RUnlock()
	return m, ok
}

// GetCollisionMesh returns the cached collision mesh for a chunk.
func (s *MeshStore) GetCollisionMesh(c world.ChunkCoord) (mesh.CollisionMesh, bool) {
	s.mu.RLock()
	m, ok := s.collision[c]
	s.mu.RUnlock()
	return m, ok
}

// Count returns the number of chunks holding a render mesh.
func (s *MeshStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.render)
}
