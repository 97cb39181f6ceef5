// Package api provides the local HTTP diagnostic server: connection state,
// packet counters, and a live WebSocket stream of the smoothed aim state.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BilGameDev/GyroBird/internal/gyro"
	"github.com/BilGameDev/GyroBird/internal/network"
	"github.com/BilGameDev/GyroBird/internal/pipeline"
)

// Status is the JSON shape served by /api/status and streamed over /ws.
type Status struct {
	Instance    string           `json:"instance"`
	State       string           `json:"state"`
	RemoteAddr  string           `json:"remote_addr,omitempty"`
	PacketAgeMS float64          `json:"packet_age_ms,omitempty"`
	Received    uint64           `json:"received"`
	Dropped     uint64           `json:"dropped"`
	Orientation *gyro.Quaternion `json:"orientation,omitempty"`
	Aim         pipeline.Offset  `json:"aim"`
}

// Server exposes read-only diagnostics over HTTP. It never mutates the core:
// everything it serves comes from the receiver's and tracker's published
// snapshots.
type Server struct {
	receiver *network.Receiver
	tracker  *network.ConnectionTracker

	// Aim returns the current smoothed aim offset. Must be safe to call
	// from the server's goroutines.
	Aim func() pipeline.Offset

	instance string
	wsMgr    *wsManager
	httpSrv  *http.Server
}

// NewServer creates a diagnostic server over the given receiver and tracker.
func NewServer(receiver *network.Receiver, tracker *network.ConnectionTracker) *Server {
	s := &Server{
		receiver: receiver,
		tracker:  tracker,
		instance: uuid.NewString(),
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Instance returns the per-process instance ID, so two receivers on one LAN
// are distinguishable in diagnostics.
func (s *Server) Instance() string {
	return s.instance
}

// Start serves on the given port. Blocking; run in a goroutine. A bind
// failure is returned and the rest of the application keeps running.
func (s *Server) Start(port int) error {
	go s.wsMgr.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)

	// Explicit tcp4 to avoid IPv6-only binding issues on Windows.
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Printf("API: Failed to listen on %s: %v", addr, err)
		return err
	}

	log.Printf("API: Serving diagnostics on %s (instance %s)", addr, s.instance)
	s.httpSrv = &http.Server{Handler: s.recoverMiddleware(mux)}
	if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("API: Server stopped: %v", err)
		return err
	}
	return nil
}

// Stop shuts the server and its WebSocket clients down.
func (s *Server) Stop() {
	s.wsMgr.stop()
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("API: Panic recovered: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

// snapshot assembles the current Status from the published core state.
func (s *Server) snapshot() Status {
	received, dropped := s.receiver.Stats()
	st := Status{
		Instance:   s.instance,
		State:      s.tracker.State().String(),
		RemoteAddr: s.tracker.LastRemoteAddr(),
		Received:   received,
		Dropped:    dropped,
	}
	if age, ok := s.tracker.PacketAge(time.Now()); ok {
		st.PacketAgeMS = float64(age) / float64(time.Millisecond)
	}
	if q, ok := s.receiver.LatestOrientation(); ok {
		st.Orientation = &q
	}
	if s.Aim != nil {
		st.Aim = s.Aim()
	}
	return st
}
