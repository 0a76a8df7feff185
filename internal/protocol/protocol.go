// Package protocol implements the fixed-layout little-endian wire format for
// the chunk streaming channel: the 12-byte request frame, the length-prefixed
// render and collision mesh payloads, and the single-byte-typed datagrams.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"aetheris/internal/mesh"
	"aetheris/internal/world"
)

// MaxPayloadBytes bounds a length prefix. Anything outside [0, MaxPayloadBytes]
// is a framing error and fatal for the connection.
const MaxPayloadBytes = 100_000_000

// RequestFrameBytes is the size of a chunk request frame: cx|cy|cz as int32.
const RequestFrameBytes = 12

var (
	// ErrFrameTooLarge indicates a length prefix outside the accepted range.
	ErrFrameTooLarge = errors.New("protocol: payload length out of range")
	// ErrMalformedPayload indicates a payload whose length disagrees with its
	// declared counts.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// Scratch buffers for request frames and length prefixes. Returned on every
// path, including errors.
var bufPool = sync.Pool{
	New: func() any { return make([]byte, RequestFrameBytes) },
}

// WriteRequest writes a 12-byte chunk request frame.
func WriteRequest(w io.Writer, c world.ChunkCoord) error {
	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(c.X))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.Y))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.Z))
	_, err := w.Write(buf[:RequestFrameBytes])
	return err
}

// ReadRequest reads one 12-byte request frame, blocking until all 12 bytes
// arrive. A clean close before the first byte yields io.EOF; a close mid-frame
// yields io.ErrUnexpectedEOF.
func ReadRequest(r io.Reader) (world.ChunkCoord, error) {
	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	if _, err := io.ReadFull(r, buf[:RequestFrameBytes]); err != nil {
		return world.ChunkCoord{}, err
	}
	return world.ChunkCoord{
		X: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Y: int32(binary.LittleEndian.Uint32(buf[4:8])),
		Z: int32(binary.LittleEndian.Uint32(buf[8:12])),
	}, nil
}

// EncodeRenderMesh encodes the length-prefixed render payload:
// len | vertexCount | vertexCount*7 float32s.
func EncodeRenderMesh(m mesh.RenderMesh) []byte {
	vc := m.VertexCount()
	payload := 4 + vc*mesh.VertexFloats*4
	buf := make([]byte, 4+payload)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(payload))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(vc))
	off := 8
	for _, f := range m[:vc*mesh.VertexFloats] {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		off += 4
	}
	return buf
}

// WriteRenderMesh writes the render payload to w.
func WriteRenderMesh(w io.Writer, m mesh.RenderMesh) error {
	_, err := w.Write(EncodeRenderMesh(m))
	return err
}

// ReadRenderMesh reads one render payload. A zero-length payload decodes as an
// empty mesh.
func ReadRenderMesh(r io.Reader) (mesh.RenderMesh, error) {
	payload, err := readPayload(r)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: render payload of %d bytes", ErrMalformedPayload, len(payload))
	}
	vc := int32(binary.LittleEndian.Uint32(payload[0:4]))
	want := 4 + int(vc)*mesh.VertexFloats*4
	if vc < 0 || want != len(payload) {
		return nil, fmt.Errorf("%w: vertex count %d in %d-byte render payload", ErrMalformedPayload, vc, len(payload))
	}
	m := make(mesh.RenderMesh, int(vc)*mesh.VertexFloats)
	off := 4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
	}
	return m, nil
}

// EncodeCollisionMesh encodes the length-prefixed collision payload:
// len | vertexCount | indexCount | vertices (3 float32s each) | int32 indices.
func EncodeCollisionMesh(m mesh.CollisionMesh) []byte {
	payload := 8 + len(m.Vertices)*12 + len(m.Indices)*4
	buf := make([]byte, 4+payload)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(payload))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(m.Vertices)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(m.Indices)))
	off := 12
	for _, v := range m.Vertices {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v.X()))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(v.Y()))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(v.Z()))
		off += 12
	}
	for _, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(idx))
		off += 4
	}
	return buf
}

// WriteCollisionMesh writes the collision payload to w.
func WriteCollisionMesh(w io.Writer, m mesh.CollisionMesh) error {
	_, err := w.Write(EncodeCollisionMesh(m))
	return err
}

// ReadCollisionMesh reads one collision payload.
func ReadCollisionMesh(r io.Reader) (mesh.CollisionMesh, error) {
	payload, err := readPayload(r)
	if err != nil {
		return mesh.CollisionMesh{}, err
	}
	if len(payload) == 0 {
		return mesh.CollisionMesh{}, nil
	}
	if len(payload) < 8 {
		return mesh.CollisionMesh{}, fmt.Errorf("%w: collision payload of %d bytes", ErrMalformedPayload, len(payload))
	}
	vc := int32(binary.LittleEndian.Uint32(payload[0:4]))
	ic := int32(binary.LittleEndian.Uint32(payload[4:8]))
	want := 8 + int(vc)*12 + int(ic)*4
	if vc < 0 || ic < 0 || want != len(payload) {
		return mesh.CollisionMesh{}, fmt.Errorf("%w: %d vertices / %d indices in %d-byte collision payload", ErrMalformedPayload, vc, ic, len(payload))
	}
	out := mesh.CollisionMesh{}
	off := 8
	if vc > 0 {
		out.Vertices = make([]mgl32.Vec3, vc)
		for i := range out.Vertices {
			out.Vertices[i] = mgl32.Vec3{
				math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4])),
				math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8])),
				math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8 : off+12])),
			}
			off += 12
		}
	}
	if ic > 0 {
		out.Indices = make([]int32, ic)
		for i := range out.Indices {
			out.Indices[i] = int32(binary.LittleEndian.Uint32(payload[off : off+4]))
			off += 4
		}
	}
	return out, nil
}

// readPayload reads a 4-byte length prefix, validates it, then reads exactly
// that many payload bytes.
func readPayload(r io.Reader) ([]byte, error) {
	lenBuf := bufPool.Get().([]byte)
	defer bufPool.Put(lenBuf)
	if _, err := io.ReadFull(r, lenBuf[:4]); err != nil {
		return nil, err
	}
	n := int32(binary.LittleEndian.Uint32(lenBuf[:4]))
	if n < 0 || n > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	if n == 0 {
		return nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
