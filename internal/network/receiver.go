package network

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BilGameDev/GyroBird/internal/gyro"
	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// Receiver is the game-side UDP listener for the orientation stream. One
// goroutine owns the socket and the receive loop; decoded orientations are
// published as a single latest-value snapshot (never queued), commands go to
// OnCommand, and every decoded datagram is reported to the tracker.
type Receiver struct {
	tracker *ConnectionTracker

	// OnCommand is called from the receive goroutine for each decoded
	// command datagram. Handlers that touch non-thread-safe collaborators
	// must hand off (see dispatch.Queue). Set before Listen.
	OnCommand func(tag uint8)

	// OnOrientation, if set, is called from the receive goroutine after
	// each orientation update. Most consumers should poll
	// LatestOrientation from their own tick instead.
	OnOrientation func(q gyro.Quaternion)

	mu     sync.Mutex
	conn   *net.UDPConn
	done   chan struct{}
	loopWG sync.WaitGroup

	latestMu  sync.RWMutex
	latest    gyro.Quaternion
	hasLatest bool

	dropped  atomic.Uint64
	received atomic.Uint64
}

// NewReceiver creates a receiver reporting packet arrivals to tracker.
func NewReceiver(tracker *ConnectionTracker) *Receiver {
	return &Receiver{tracker: tracker}
}

// Listen binds the orientation port and starts the receive loop. A bind
// failure is fatal to this call and returned; nothing is left running.
// Listen after Stop is safe and rebinds from scratch.
func (r *Receiver) Listen(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("receiver: invalid port %d", port)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return fmt.Errorf("receiver: already listening on %s", r.conn.LocalAddr())
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("receiver: bind :%d: %w", port, err)
	}

	// Packets arrive at up to sensor rate (~200 Hz); a generous read
	// buffer rides out scheduling hiccups.
	conn.SetReadBuffer(1 << 16)

	r.conn = conn
	r.done = make(chan struct{})
	r.loopWG.Add(1)
	go r.readLoop(conn, r.done)

	log.Printf("Receiver: Listening on :%d", port)
	return nil
}

// Stop closes the socket and cancels the receive loop. When Stop returns,
// no further OnCommand or tracker callback will fire from this receiver.
func (r *Receiver) Stop() {
	r.mu.Lock()
	conn := r.conn
	done := r.done
	r.conn = nil
	r.done = nil
	r.mu.Unlock()

	if conn == nil {
		return
	}
	close(done)
	conn.Close()
	r.loopWG.Wait()
	log.Printf("Receiver: Stopped")
}

// readLoop reads and dispatches datagrams until the socket closes. Malformed
// datagrams are dropped and counted, never fatal.
func (r *Receiver) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer r.loopWG.Done()

	buf := make([]byte, 64)
	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
				continue
			}
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			if r.dropped.Add(1)%100 == 1 {
				log.Printf("Receiver: Dropping malformed datagram from %s (%d bytes): %v", remoteAddr, n, err)
			}
			continue
		}

		r.received.Add(1)
		// Liveness is protocol-agnostic: any well-formed datagram counts.
		r.tracker.NotifyPacketReceived(remoteAddr.String(), time.Now())

		if msg.Type == protocol.MsgOrientation {
			r.latestMu.Lock()
			r.latest = msg.Orientation
			r.hasLatest = true
			r.latestMu.Unlock()
			if r.OnOrientation != nil {
				r.OnOrientation(msg.Orientation)
			}
			continue
		}
		if r.OnCommand != nil {
			r.OnCommand(msg.Type)
		}
	}
}

// LocalAddr returns the bound UDP address, or nil when not listening.
// Port 0 in Listen binds an ephemeral port; this reports the real one.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// LatestOrientation returns the most recently received orientation. Newer
// packets overwrite older ones; consumers polling slower than the packet
// rate simply see the freshest value. ok is false until the first
// orientation arrives.
func (r *Receiver) LatestOrientation() (q gyro.Quaternion, ok bool) {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest, r.hasLatest
}

// Stats reports the receive counters: well-formed datagrams and malformed
// drops since construction.
func (r *Receiver) Stats() (received, dropped uint64) {
	return r.received.Load(), r.dropped.Load()
}
