// Package protocol defines the binary UDP wire format exchanged between the
// phone-side orientation sender and the game-side receiver.
package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/BilGameDev/GyroBird/internal/gyro"
)

// Message types. Orientation carries a quaternion payload; the command types
// are single-byte triggers.
const (
	MsgOrientation uint8 = 0x00
	MsgCalibrate   uint8 = 0x01
	MsgShoot       uint8 = 0x02
	MsgRestart     uint8 = 0x03
)

// Wire format, one message per datagram:
//
//	Orientation (current): [tag=0] [f32 x] [f32 y] [f32 z] [f32 w] = 17 bytes
//	Orientation (legacy):  [f32 x] [f32 y] [f32 z] [f32 w]         = 16 bytes (no tag)
//	Command:               [tag]                                    = 1 byte, tag in {1,2,3}
//
// All floats are little-endian IEEE-754 single precision. The legacy 16-byte
// layout is what the first sender build shipped; it must keep decoding.
const (
	OrientationSize       = 17
	LegacyOrientationSize = 16
	CommandSize           = 1
)

var (
	ErrInvalidLength = errors.New("protocol: invalid message length")
	ErrInvalidTag    = errors.New("protocol: invalid message tag")
)

// Message is a decoded datagram. Orientation is only meaningful when
// Type == MsgOrientation.
type Message struct {
	Type        uint8
	Orientation gyro.Quaternion
}

// EncodeOrientation serializes a quaternion in the current tagged layout.
func EncodeOrientation(q gyro.Quaternion) []byte {
	buf := make([]byte, OrientationSize)
	buf[0] = MsgOrientation
	putQuaternion(buf[1:], q)
	return buf
}

// EncodeCommand serializes a command trigger. Returns ErrInvalidTag for
// MsgOrientation or unknown tags, since a bare tag byte carries no quaternion.
func EncodeCommand(tag uint8) ([]byte, error) {
	if tag != MsgCalibrate && tag != MsgShoot && tag != MsgRestart {
		return nil, ErrInvalidTag
	}
	return []byte{tag}, nil
}

// Encode serializes a Message to wire format.
func Encode(m Message) ([]byte, error) {
	if m.Type == MsgOrientation {
		return EncodeOrientation(m.Orientation), nil
	}
	return EncodeCommand(m.Type)
}

// Decode deserializes one datagram. Any length other than 1, 16 or 17 is
// malformed; callers drop the datagram and keep receiving.
func Decode(data []byte) (Message, error) {
	switch len(data) {
	case CommandSize:
		tag := data[0]
		if tag != MsgCalibrate && tag != MsgShoot && tag != MsgRestart {
			return Message{}, ErrInvalidTag
		}
		return Message{Type: tag}, nil

	case LegacyOrientationSize:
		// Old senders ship the quaternion with no tag byte.
		return Message{Type: MsgOrientation, Orientation: getQuaternion(data)}, nil

	case OrientationSize:
		if data[0] != MsgOrientation {
			return Message{}, ErrInvalidTag
		}
		return Message{Type: MsgOrientation, Orientation: getQuaternion(data[1:])}, nil

	default:
		return Message{}, ErrInvalidLength
	}
}

func putQuaternion(buf []byte, q gyro.Quaternion) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(q.X))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(q.Y))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(q.Z))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(q.W))
}

func getQuaternion(buf []byte) gyro.Quaternion {
	return gyro.Quaternion{
		X: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		W: math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
	}
}
