package network

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/BilGameDev/GyroBird/internal/gyro"
	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// commandRedundancy is how many times each discrete command datagram is
// sent. Commands are one-shot triggers over lossy UDP; a little redundancy
// beats losing a shot. Duplicate delivery at LAN distance is rare enough to
// accept.
const commandRedundancy = 3

// Sender samples device orientation on a fixed tick, applies the
// sensor-to-receiver transform and calibration, and streams the result as
// UDP datagrams. It also sends the discrete command messages.
type Sender struct {
	source gyro.Source
	rate   time.Duration

	mu          sync.Mutex
	conn        *net.UDPConn
	dest        *net.UDPAddr
	calibration gyro.Quaternion
	done        chan struct{}
	loopWG      sync.WaitGroup

	sourceDown bool // last Current() failed; logged once per outage
}

// NewSender creates a sender polling source at the given rate. The design
// targets a high fixed sensor rate (~200 Hz) decoupled from any render
// loop; the receiving side tolerates arbitrary inbound rates.
func NewSender(source gyro.Source, rate time.Duration) *Sender {
	if rate <= 0 {
		rate = 5 * time.Millisecond
	}
	return &Sender{
		source:      source,
		rate:        rate,
		calibration: gyro.Identity,
	}
}

// SetDestination points the stream at a receiver. Takes effect immediately,
// also mid-stream (discovery may finish after Start).
func (s *Sender) SetDestination(address string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("sender: invalid port %d", port)
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("sender: invalid address %q", address)
	}

	s.mu.Lock()
	s.dest = &net.UDPAddr{IP: ip, Port: port}
	s.mu.Unlock()
	log.Printf("Sender: Destination set to %s:%d", address, port)
	return nil
}

// Start opens the socket and begins the orientation tick loop. Sending is a
// silent no-op until a destination is set.
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return fmt.Errorf("sender: already started")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("sender: open socket: %w", err)
	}
	conn.SetWriteBuffer(1 << 16)

	s.conn = conn
	s.done = make(chan struct{})
	s.loopWG.Add(1)
	go s.tickLoop(s.done)

	log.Printf("Sender: Started, streaming every %v", s.rate)
	return nil
}

// Stop cancels the tick loop and releases the socket. Safe to call twice;
// Start after Stop is a fresh socket.
func (s *Sender) Stop() {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.done = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}
	close(done)
	s.loopWG.Wait()
	conn.Close()
	log.Printf("Sender: Stopped")
}

func (s *Sender) tickLoop(done chan struct{}) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sample()
		case <-done:
			return
		}
	}
}

// sample reads the source once and sends the transformed orientation.
// Missing destination or an unavailable sensor is a logged no-op, never an
// error surfaced to the loop.
func (s *Sender) sample() {
	raw, err := s.source.Current()

	s.mu.Lock()
	if err != nil {
		if !s.sourceDown {
			log.Printf("Sender: Orientation source unavailable: %v", err)
			s.sourceDown = true
		}
		s.mu.Unlock()
		return
	}
	s.sourceDown = false

	conn, dest := s.conn, s.dest
	cal := s.calibration
	s.mu.Unlock()

	if conn == nil || dest == nil {
		return
	}

	q := gyro.Calibrated(cal, gyro.DeviceToReceiver(raw))
	if _, err := conn.WriteToUDP(protocol.EncodeOrientation(q), dest); err != nil {
		log.Printf("Sender: Send failed: %v", err)
	}
}

// SendOrientation sends one transformed orientation outside the tick loop.
// No-op without a destination or open socket.
func (s *Sender) SendOrientation(raw gyro.Quaternion) {
	s.mu.Lock()
	conn, dest := s.conn, s.dest
	cal := s.calibration
	s.mu.Unlock()

	if conn == nil || dest == nil {
		return
	}
	q := gyro.Calibrated(cal, gyro.DeviceToReceiver(raw))
	if _, err := conn.WriteToUDP(protocol.EncodeOrientation(q), dest); err != nil {
		log.Printf("Sender: Send failed: %v", err)
	}
}

// SendCommand sends a discrete command (calibrate, shoot, restart) with
// redundancy. No-op without a destination.
func (s *Sender) SendCommand(tag uint8) {
	data, err := protocol.EncodeCommand(tag)
	if err != nil {
		log.Printf("Sender: Refusing to send invalid command %d: %v", tag, err)
		return
	}

	s.mu.Lock()
	conn, dest := s.conn, s.dest
	s.mu.Unlock()

	if conn == nil || dest == nil {
		return
	}
	for i := 0; i < commandRedundancy; i++ {
		if _, err := conn.WriteToUDP(data, dest); err != nil {
			log.Printf("Sender: Send failed: %v", err)
			return
		}
	}
}

// Calibrate stores the current device attitude as the sender-side zero
// reference: subsequent orientations are sent relative to it, so the
// calibrated pose streams as identity. Also notifies the receiver so it can
// run its own calibration semantics.
func (s *Sender) Calibrate(raw gyro.Quaternion) {
	ref := gyro.DeviceToReceiver(raw)
	s.mu.Lock()
	s.calibration = ref
	s.mu.Unlock()
	log.Printf("Sender: Calibrated")

	s.SendCommand(protocol.MsgCalibrate)
}
