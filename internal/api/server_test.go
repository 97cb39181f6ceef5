package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BilGameDev/GyroBird/internal/network"
	"github.com/BilGameDev/GyroBird/internal/pipeline"
)

func newTestServer(t *testing.T) (*Server, *network.ConnectionTracker) {
	t.Helper()
	tracker := network.NewConnectionTracker(5 * time.Second)
	receiver := network.NewReceiver(tracker)
	s := NewServer(receiver, tracker)
	s.Aim = func() pipeline.Offset { return pipeline.Offset{X: 12, Y: -8} }
	return s, tracker
}

// TestHealthEndpoint tests the liveness probe
func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != 200 {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

// TestStatusEndpoint tests the JSON snapshot
func TestStatusEndpoint(t *testing.T) {
	s, tracker := newTestServer(t)
	tracker.NotifyPacketReceived("10.0.0.9:41000", time.Now())

	w := httptest.NewRecorder()
	s.handleStatus(w, httptest.NewRequest("GET", "/api/status", nil))

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Status did not decode: %v", err)
	}
	if st.State != "connected" {
		t.Errorf("Expected connected, got %q", st.State)
	}
	if st.RemoteAddr != "10.0.0.9:41000" {
		t.Errorf("Unexpected remote addr %q", st.RemoteAddr)
	}
	if st.Aim.X != 12 || st.Aim.Y != -8 {
		t.Errorf("Unexpected aim %+v", st.Aim)
	}
	if st.Instance == "" {
		t.Error("Expected a non-empty instance ID")
	}
	if st.Instance != s.Instance() {
		t.Error("Status instance should match the server's")
	}
}

// TestStatusEndpointDisconnected tests the empty-state snapshot
func TestStatusEndpointDisconnected(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.handleStatus(w, httptest.NewRequest("GET", "/api/status", nil))

	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Status did not decode: %v", err)
	}
	if st.State != "disconnected" {
		t.Errorf("Expected disconnected, got %q", st.State)
	}
	if st.Orientation != nil {
		t.Error("Expected no orientation before any packet")
	}
}
