package network

import (
	"net"
	"testing"
	"time"

	"github.com/BilGameDev/GyroBird/internal/gyro"
	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// listenLoopback opens a capture socket standing in for a receiver.
func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn, timeout time.Duration) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return buf[:n]
}

// TestSenderStreamsOrientation checks the tick loop delivers decodable
// orientation datagrams
func TestSenderStreamsOrientation(t *testing.T) {
	capture := listenLoopback(t)
	port := capture.LocalAddr().(*net.UDPAddr).Port

	src := gyro.FixedSource{Q: gyro.FromAxisAngleDeg(1, 0, 0, 12)}
	s := NewSender(src, 2*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)

	if err := s.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("SetDestination failed: %v", err)
	}

	data := readDatagram(t, capture, time.Second)
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Stream datagram did not decode: %v", err)
	}
	if msg.Type != protocol.MsgOrientation {
		t.Errorf("Expected orientation message, got type %d", msg.Type)
	}
}

// TestSenderAppliesTransformAndCalibration checks that a calibrated sender
// streams identity for the calibrated pose
func TestSenderAppliesTransformAndCalibration(t *testing.T) {
	capture := listenLoopback(t)
	port := capture.LocalAddr().(*net.UDPAddr).Port

	pose := gyro.FromAxisAngleDeg(1, 0, 0, 37)
	s := NewSender(gyro.FixedSource{Q: pose}, 2*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)

	s.Calibrate(pose)
	if err := s.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("SetDestination failed: %v", err)
	}

	// Skip any command datagrams from Calibrate; find an orientation.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msg, err := protocol.Decode(readDatagram(t, capture, time.Second))
		if err != nil || msg.Type != protocol.MsgOrientation {
			continue
		}
		if p := msg.Orientation.PitchDeg(); p < -0.01 || p > 0.01 {
			t.Fatalf("Calibrated pose should stream as identity, got pitch %v", p)
		}
		if y := msg.Orientation.YawDeg(); y < -0.01 || y > 0.01 {
			t.Fatalf("Calibrated pose should stream as identity, got yaw %v", y)
		}
		return
	}
	t.Fatal("No orientation datagram observed")
}

// TestSenderCommandRedundancy checks commands are sent multiple times
func TestSenderCommandRedundancy(t *testing.T) {
	capture := listenLoopback(t)
	port := capture.LocalAddr().(*net.UDPAddr).Port

	// A failing source keeps the tick loop quiet so only commands arrive.
	s := NewSender(gyro.FixedSource{Err: gyro.ErrUnavailable}, time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)

	if err := s.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("SetDestination failed: %v", err)
	}
	s.SendCommand(protocol.MsgShoot)

	for i := 0; i < commandRedundancy; i++ {
		data := readDatagram(t, capture, time.Second)
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("Copy %d did not decode: %v", i, err)
		}
		if msg.Type != protocol.MsgShoot {
			t.Errorf("Copy %d: expected shoot, got type %d", i, msg.Type)
		}
	}
}

// TestSenderNoDestinationIsNoop checks nothing is sent before a destination
// is set and no call errors out
func TestSenderNoDestinationIsNoop(t *testing.T) {
	s := NewSender(gyro.FixedSource{Q: gyro.Identity}, time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)

	// None of these may panic or error without a destination.
	s.SendOrientation(gyro.Identity)
	s.SendCommand(protocol.MsgRestart)
	time.Sleep(20 * time.Millisecond)
}

// TestSenderRejectsInvalidDestination checks destination validation
func TestSenderRejectsInvalidDestination(t *testing.T) {
	s := NewSender(gyro.FixedSource{Q: gyro.Identity}, time.Millisecond)
	if err := s.SetDestination("not-an-ip", 4000); err == nil {
		t.Error("Expected error for bad address")
	}
	if err := s.SetDestination("127.0.0.1", 0); err == nil {
		t.Error("Expected error for port 0")
	}
	if err := s.SetDestination("127.0.0.1", 70000); err == nil {
		t.Error("Expected error for out-of-range port")
	}
}

// TestSenderRejectsInvalidCommand checks unknown tags never hit the wire
func TestSenderRejectsInvalidCommand(t *testing.T) {
	capture := listenLoopback(t)
	port := capture.LocalAddr().(*net.UDPAddr).Port

	s := NewSender(gyro.FixedSource{Err: gyro.ErrUnavailable}, time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)
	s.SetDestination("127.0.0.1", port)

	s.SendCommand(0x99)

	capture.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	if n, _, err := capture.ReadFromUDP(buf); err == nil {
		t.Errorf("Expected no datagram for invalid command, got %d bytes", n)
	}
}
