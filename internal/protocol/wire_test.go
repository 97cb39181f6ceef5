package protocol

import (
	"bytes"
	"testing"

	"github.com/BilGameDev/GyroBird/internal/gyro"
)

// TestOrientationRoundTrip tests that tagged orientation messages survive
// encode/decode unchanged
func TestOrientationRoundTrip(t *testing.T) {
	q := gyro.Quaternion{X: 0.1, Y: -0.2, Z: 0.3, W: 0.927}
	data := EncodeOrientation(q)

	if len(data) != OrientationSize {
		t.Fatalf("Expected %d bytes, got %d", OrientationSize, len(data))
	}
	if data[0] != MsgOrientation {
		t.Errorf("Expected tag %d, got %d", MsgOrientation, data[0])
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != MsgOrientation {
		t.Errorf("Expected orientation message, got type %d", msg.Type)
	}
	if msg.Orientation != q {
		t.Errorf("Expected %+v, got %+v", q, msg.Orientation)
	}
}

// TestCommandRoundTrip tests the single-byte command messages
func TestCommandRoundTrip(t *testing.T) {
	for _, tag := range []uint8{MsgCalibrate, MsgShoot, MsgRestart} {
		data, err := EncodeCommand(tag)
		if err != nil {
			t.Fatalf("EncodeCommand(%d) failed: %v", tag, err)
		}
		if !bytes.Equal(data, []byte{tag}) {
			t.Errorf("Expected [%d], got %v", tag, data)
		}

		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode command %d failed: %v", tag, err)
		}
		if msg.Type != tag {
			t.Errorf("Expected type %d, got %d", tag, msg.Type)
		}
	}
}

// TestEncodeMessage tests the generic entry point against both shapes
func TestEncodeMessage(t *testing.T) {
	q := gyro.Quaternion{X: 0.5, Y: 0.5, Z: 0.5, W: 0.5}
	data, err := Encode(Message{Type: MsgOrientation, Orientation: q})
	if err != nil {
		t.Fatalf("Encode orientation failed: %v", err)
	}
	if !bytes.Equal(data, EncodeOrientation(q)) {
		t.Error("Encode disagrees with EncodeOrientation")
	}

	data, err = Encode(Message{Type: MsgRestart})
	if err != nil {
		t.Fatalf("Encode command failed: %v", err)
	}
	if !bytes.Equal(data, []byte{MsgRestart}) {
		t.Errorf("Expected [%d], got %v", MsgRestart, data)
	}
}

// TestEncodeCommandRejectsOrientationTag tests that a bare orientation tag
// cannot be encoded as a command
func TestEncodeCommandRejectsOrientationTag(t *testing.T) {
	if _, err := EncodeCommand(MsgOrientation); err == nil {
		t.Error("Expected error encoding orientation tag as command")
	}
	if _, err := EncodeCommand(0x7f); err == nil {
		t.Error("Expected error encoding unknown tag as command")
	}
}

// TestLegacyOrientationDecode tests the untagged 16-byte layout shipped by
// the first sender build
func TestLegacyOrientationDecode(t *testing.T) {
	// Identity quaternion (0,0,0,1) in both layouts must decode equal.
	tagged := EncodeOrientation(gyro.Identity)
	legacy := tagged[1:]

	if len(legacy) != LegacyOrientationSize {
		t.Fatalf("Expected %d bytes, got %d", LegacyOrientationSize, len(legacy))
	}

	msgLegacy, err := Decode(legacy)
	if err != nil {
		t.Fatalf("Legacy decode failed: %v", err)
	}
	msgTagged, err := Decode(tagged)
	if err != nil {
		t.Fatalf("Tagged decode failed: %v", err)
	}

	if msgLegacy.Type != MsgOrientation {
		t.Errorf("Expected orientation message, got type %d", msgLegacy.Type)
	}
	if msgLegacy.Orientation != gyro.Identity {
		t.Errorf("Expected identity, got %+v", msgLegacy.Orientation)
	}
	if msgLegacy.Orientation != msgTagged.Orientation {
		t.Errorf("Legacy and tagged paths disagree: %+v vs %+v", msgLegacy.Orientation, msgTagged.Orientation)
	}
}

// TestDecodeRejectsBadLengths tests that anything outside {1,16,17} is
// malformed, without panicking
func TestDecodeRejectsBadLengths(t *testing.T) {
	for _, n := range []int{0, 2, 3, 8, 15, 18, 32, 64} {
		data := make([]byte, n)
		if _, err := Decode(data); err != ErrInvalidLength {
			t.Errorf("Length %d: expected ErrInvalidLength, got %v", n, err)
		}
	}
}

// TestDecodeRejectsBadTags tests tag validation on the valid lengths
func TestDecodeRejectsBadTags(t *testing.T) {
	// 1-byte orientation tag has no quaternion to carry.
	if _, err := Decode([]byte{MsgOrientation}); err != ErrInvalidTag {
		t.Errorf("Expected ErrInvalidTag for 1-byte orientation tag, got %v", err)
	}
	if _, err := Decode([]byte{0x42}); err != ErrInvalidTag {
		t.Errorf("Expected ErrInvalidTag for unknown command, got %v", err)
	}

	// 17 bytes with a command tag is malformed too.
	bad := EncodeOrientation(gyro.Identity)
	bad[0] = MsgShoot
	if _, err := Decode(bad); err != ErrInvalidTag {
		t.Errorf("Expected ErrInvalidTag for tagged 17-byte command, got %v", err)
	}
}

// TestDecodeGarbage tests that garbage of a valid length still decodes into
// some quaternion rather than failing
func TestDecodeGarbage(t *testing.T) {
	data := bytes.Repeat([]byte{0xff}, LegacyOrientationSize)
	if _, err := Decode(data); err != nil {
		t.Errorf("16 bytes of garbage should decode as an orientation, got %v", err)
	}
}
