package network

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// Discover broadcasts the discovery token and waits up to timeout for a
// receiver to reply. The reply's source IP plus the port it encodes become
// the stream destination. First valid reply wins; the socket closes before
// returning, so later duplicates are dropped by the kernel. A quiet network
// returns an error; callers retry at their own pace.
func Discover(discoveryPort int, timeout time.Duration) (addr string, port int, err error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return "", 0, fmt.Errorf("discovery: open socket: %w", err)
	}
	defer conn.Close()

	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: discoveryPort}
	if _, err := conn.WriteToUDP([]byte(protocol.DiscoveryToken), bcast); err != nil {
		return "", 0, fmt.Errorf("discovery: broadcast: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 128)
	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return "", 0, fmt.Errorf("discovery: no response: %w", err)
		}

		port, err := protocol.ParseDiscoveryResponse(string(buf[:n]))
		if err != nil {
			// Something else on the discovery port; keep waiting.
			log.Printf("Discovery: Ignoring reply from %s: %v", remoteAddr, err)
			continue
		}

		log.Printf("Discovery: Found receiver at %s:%d", remoteAddr.IP, port)
		return remoteAddr.IP.String(), port, nil
	}
}

// Responder answers discovery broadcasts on behalf of a running receiver.
// Any datagram matching the token gets a unicast reply carrying the
// configured service port; everything else is ignored.
type Responder struct {
	servicePort int

	mu     sync.Mutex
	conn   *net.UDPConn
	done   chan struct{}
	loopWG sync.WaitGroup
}

// NewResponder creates a responder advertising servicePort.
func NewResponder(servicePort int) *Responder {
	return &Responder{servicePort: servicePort}
}

// Start binds the discovery port and begins answering. Bind failure is
// returned; the orientation stream works without discovery, so callers may
// treat this as non-fatal.
func (d *Responder) Start(discoveryPort int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return fmt.Errorf("discovery: responder already running")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: discoveryPort})
	if err != nil {
		return fmt.Errorf("discovery: bind :%d: %w", discoveryPort, err)
	}

	d.conn = conn
	d.done = make(chan struct{})
	d.loopWG.Add(1)
	go d.answerLoop(conn, d.done)

	log.Printf("Discovery: Responder listening on :%d, advertising port %d", discoveryPort, d.servicePort)
	return nil
}

// LocalAddr returns the bound discovery address, or nil when stopped.
func (d *Responder) LocalAddr() *net.UDPAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// Stop shuts the responder down. Safe to call twice.
func (d *Responder) Stop() {
	d.mu.Lock()
	conn := d.conn
	done := d.done
	d.conn = nil
	d.done = nil
	d.mu.Unlock()

	if conn == nil {
		return
	}
	close(done)
	conn.Close()
	d.loopWG.Wait()
	log.Printf("Discovery: Responder stopped")
}

func (d *Responder) answerLoop(conn *net.UDPConn, done chan struct{}) {
	defer d.loopWG.Done()

	reply := []byte(protocol.BuildDiscoveryResponse(d.servicePort))
	buf := make([]byte, 128)
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

		if strings.TrimSpace(string(buf[:n])) != protocol.DiscoveryToken {
			continue
		}
		if _, err := conn.WriteToUDP(reply, remoteAddr); err != nil {
			log.Printf("Discovery: Reply to %s failed: %v", remoteAddr, err)
			continue
		}
		log.Printf("Discovery: Answered %s", remoteAddr)
	}
}

// GetLocalIPs returns all available local IPv4 addresses, for startup
// diagnostics (which address to point the phone at when discovery is off).
func GetLocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue // interface down
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue // loopback interface
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue // not an ipv4 address
			}
			ips = append(ips, ip.String())
		}
	}
	return ips, nil
}
