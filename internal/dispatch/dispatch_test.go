package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// sinkRecorder collects deliveries; all callbacks run on the dispatcher
// goroutine, the mutex is only for the test's own reads.
type sinkRecorder struct {
	mu         sync.Mutex
	fires      int
	restarts   int
	calibrates int
}

func (s *sinkRecorder) sinks() Sinks {
	return Sinks{
		Fire: func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.fires++
			return true
		},
		Restart: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.restarts++
		},
		Calibrate: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calibrates++
		},
	}
}

func (s *sinkRecorder) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fires, s.restarts, s.calibrates
}

// TestQueueDeliversCommands checks each tag reaches its sink
func TestQueueDeliversCommands(t *testing.T) {
	rec := &sinkRecorder{}
	q := NewQueue(rec.sinks())
	q.Start()
	defer q.Stop()

	q.Enqueue(protocol.MsgShoot)
	q.Enqueue(protocol.MsgShoot)
	q.Enqueue(protocol.MsgRestart)
	q.Enqueue(protocol.MsgCalibrate)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f, r, c := rec.counts()
		if f == 2 && r == 1 && c == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	f, r, c := rec.counts()
	t.Fatalf("Expected 2/1/1 deliveries, got %d/%d/%d", f, r, c)
}

// TestQueueIgnoresUnknownTags checks unknown commands are dropped without
// touching any sink
func TestQueueIgnoresUnknownTags(t *testing.T) {
	rec := &sinkRecorder{}
	q := NewQueue(rec.sinks())
	q.Start()
	defer q.Stop()

	q.Enqueue(0x7e)
	q.Enqueue(protocol.MsgShoot)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f, _, _ := rec.counts(); f == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	f, r, c := rec.counts()
	if f != 1 || r != 0 || c != 0 {
		t.Fatalf("Expected only the shoot delivery, got %d/%d/%d", f, r, c)
	}
}

// TestQueueNilSinks checks missing sinks are tolerated
func TestQueueNilSinks(t *testing.T) {
	q := NewQueue(Sinks{})
	q.Start()

	q.Enqueue(protocol.MsgShoot)
	q.Enqueue(protocol.MsgRestart)
	q.Enqueue(protocol.MsgCalibrate)
	time.Sleep(20 * time.Millisecond)

	q.Stop()
	// Stop twice is a no-op.
	q.Stop()
}

// TestEnqueueNeverBlocks checks a stalled consumer cannot stall the caller
func TestEnqueueNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue(Sinks{Fire: func() bool {
		<-block
		return true
	}})
	q.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Enqueue(protocol.MsgShoot)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled consumer")
	}
	close(block)
	q.Stop()
}
