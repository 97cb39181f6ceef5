package network

import (
	"log"
	"sync"
	"time"
)

// ConnState is the liveness of the orientation stream.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
)

func (s ConnState) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// TrackerListener receives liveness transitions. Each callback fires exactly
// once per transition, from whichever goroutine drove the transition
// (receive loop for connects, the poll ticker for timeouts).
type TrackerListener interface {
	Connected(remoteAddr string)
	Disconnected()
}

// ConnectionTracker derives stream liveness purely from packet arrival
// timing. It holds no socket: the receiver reports arrivals, and some owner
// polls Tick at a modest interval. Detection latency is therefore bounded by
// max(timeout, poll interval) — an accepted trade-off for not running a
// timer per packet.
type ConnectionTracker struct {
	mu         sync.Mutex
	timeout    time.Duration
	state      ConnState
	lastPacket time.Time
	lastAddr   string
	listeners  []TrackerListener
}

// NewConnectionTracker creates a tracker that declares the peer disconnected
// after timeout of silence. A zero timeout disables timeout detection
// (explicit ForceDisconnect still works).
func NewConnectionTracker(timeout time.Duration) *ConnectionTracker {
	return &ConnectionTracker{timeout: timeout}
}

// Subscribe registers a listener for liveness transitions. A listener added
// while the stream is already connected only sees transitions from then on.
func (t *ConnectionTracker) Subscribe(l TrackerListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// NotifyPacketReceived records a packet arrival at the given instant. The
// first arrival while disconnected transitions to Connected and fires the
// connected event once; further arrivals only refresh the timestamp.
func (t *ConnectionTracker) NotifyPacketReceived(remoteAddr string, now time.Time) {
	t.mu.Lock()
	t.lastPacket = now
	t.lastAddr = remoteAddr
	fire := t.state == StateDisconnected
	if fire {
		t.state = StateConnected
	}
	listeners := t.listeners
	t.mu.Unlock()

	if fire {
		log.Printf("Tracker: Connected to %s", remoteAddr)
		for _, l := range listeners {
			l.Connected(remoteAddr)
		}
	}
}

// Tick checks for timeout at the given instant and fires the disconnected
// event once if the stream has gone silent for longer than the timeout.
func (t *ConnectionTracker) Tick(now time.Time) {
	t.mu.Lock()
	fire := t.state == StateConnected && t.timeout > 0 && now.Sub(t.lastPacket) > t.timeout
	if fire {
		t.state = StateDisconnected
	}
	listeners := t.listeners
	t.mu.Unlock()

	if fire {
		log.Printf("Tracker: Disconnected (no packets for %v)", t.timeout)
		for _, l := range listeners {
			l.Disconnected()
		}
	}
}

// ForceDisconnect drops to Disconnected immediately, firing the event if the
// stream was connected. Last-packet bookkeeping is cleared either way.
func (t *ConnectionTracker) ForceDisconnect() {
	t.mu.Lock()
	fire := t.state == StateConnected
	t.state = StateDisconnected
	t.lastPacket = time.Time{}
	t.lastAddr = ""
	listeners := t.listeners
	t.mu.Unlock()

	if fire {
		log.Printf("Tracker: Disconnected (forced)")
		for _, l := range listeners {
			l.Disconnected()
		}
	}
}

// State returns the current liveness.
func (t *ConnectionTracker) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastRemoteAddr returns the address of the most recent sender, or "" if
// none has been seen since the last reset.
func (t *ConnectionTracker) LastRemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAddr
}

// PacketAge returns how long ago the last packet arrived, relative to now.
// ok is false when no packet has been seen.
func (t *ConnectionTracker) PacketAge(now time.Time) (age time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPacket.IsZero() {
		return 0, false
	}
	return now.Sub(t.lastPacket), true
}
