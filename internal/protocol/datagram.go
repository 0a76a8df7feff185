package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PacketType is the single-byte discriminator leading every datagram.
type PacketType byte

const (
	PacketEntityUpdate PacketType = 3
	PacketKeepAlive    PacketType = 4
	PacketPositionAck  PacketType = 5
	PacketBlockBreak   PacketType = 6
)

func (t PacketType) String() string {
	switch t {
	case PacketEntityUpdate:
		return "entity-update"
	case PacketKeepAlive:
		return "keep-alive"
	case PacketPositionAck:
		return "position-ack"
	case PacketBlockBreak:
		return "block-break"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// ErrShortDatagram indicates a datagram smaller than its type requires.
var ErrShortDatagram = fmt.Errorf("protocol: short datagram")

// EntityUpdate carries a player's transform. 37 bytes on the wire including
// the type byte.
type EntityUpdate struct {
	PlayerID uint32
	Pos      mgl32.Vec3
	Vel      mgl32.Vec3
	Yaw      float32
	Pitch    float32
}

// PositionAck confirms a processed EntityUpdate. Same layout as EntityUpdate
// with the sequence number in place of the player id.
type PositionAck struct {
	AckSeq uint32
	Pos    mgl32.Vec3
	Vel    mgl32.Vec3
	Yaw    float32
	Pitch  float32
}

// BlockBreak names a block position to carve out. 13 bytes on the wire
// including the type byte.
type BlockBreak struct {
	X, Y, Z int32
}

const transformPayloadBytes = 36 // id/seq + pos + vel + yaw + pitch

func putVec3(buf []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v.Z()))
}

func getVec3(buf []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

func encodeTransform(t PacketType, id uint32, pos, vel mgl32.Vec3, yaw, pitch float32) []byte {
	buf := make([]byte, 1+transformPayloadBytes)
	buf[0] = byte(t)
	binary.LittleEndian.PutUint32(buf[1:5], id)
	putVec3(buf[5:17], pos)
	putVec3(buf[17:29], vel)
	binary.LittleEndian.PutUint32(buf[29:33], math.Float32bits(yaw))
	binary.LittleEndian.PutUint32(buf[33:37], math.Float32bits(pitch))
	return buf
}

// Encode serializes the update including its type byte.
func (u EntityUpdate) Encode() []byte {
	return encodeTransform(PacketEntityUpdate, u.PlayerID, u.Pos, u.Vel, u.Yaw, u.Pitch)
}

// DecodeEntityUpdate parses the payload following the type byte.
func DecodeEntityUpdate(payload []byte) (EntityUpdate, error) {
	if len(payload) < transformPayloadBytes {
		return EntityUpdate{}, fmt.Errorf("%w: entity update of %d bytes", ErrShortDatagram, len(payload))
	}
	return EntityUpdate{
		PlayerID: binary.LittleEndian.Uint32(payload[0:4]),
		Pos:      getVec3(payload[4:16]),
		Vel:      getVec3(payload[16:28]),
		Yaw:      math.Float32frombits(binary.LittleEndian.Uint32(payload[28:32])),
		Pitch:    math.Float32frombits(binary.LittleEndian.Uint32(payload[32:36])),
	}, nil
}

// Encode serializes the ack including its type byte.
func (a PositionAck) Encode() []byte {
	return encodeTransform(PacketPositionAck, a.AckSeq, a.Pos, a.Vel, a.Yaw, a.Pitch)
}

// DecodePositionAck parses the payload following the type byte.
func DecodePositionAck(payload []byte) (PositionAck, error) {
	if len(payload) < transformPayloadBytes {
		return PositionAck{}, fmt.Errorf("%w: position ack of %d bytes", ErrShortDatagram, len(payload))
	}
	return PositionAck{
		AckSeq: binary.LittleEndian.Uint32(payload[0:4]),
		Pos:    getVec3(payload[4:16]),
		Vel:    getVec3(payload[16:28]),
		Yaw:    math.Float32frombits(binary.LittleEndian.Uint32(payload[28:32])),
		Pitch:  math.Float32frombits(binary.LittleEndian.Uint32(payload[32:36])),
	}, nil
}

// Encode serializes the break including its type byte.
func (b BlockBreak) Encode() []byte {
	buf := make([]byte, 13)
	buf[0] = byte(PacketBlockBreak)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(b.X))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(b.Y))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(b.Z))
	return buf
}

// DecodeBlockBreak parses the payload following the type byte.
func DecodeBlockBreak(payload []byte) (BlockBreak, error) {
	if len(payload) < 12 {
		return BlockBreak{}, fmt.Errorf("%w: block break of %d bytes", ErrShortDatagram, len(payload))
	}
	return BlockBreak{
		X: int32(binary.LittleEndian.Uint32(payload[0:4])),
		Y: int32(binary.LittleEndian.Uint32(payload[4:8])),
		Z: int32(binary.LittleEndian.Uint32(payload[8:12])),
	}, nil
}

// EncodeKeepAlive serializes a keepalive datagram; receivers echo it verbatim.
func EncodeKeepAlive() []byte {
	return []byte{byte(PacketKeepAlive)}
}

// SplitDatagram separates the leading type byte from the payload.
func SplitDatagram(b []byte) (PacketType, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("%w: empty datagram", ErrShortDatagram)
	}
	return PacketType(b[0]), b[1:], nil
}
