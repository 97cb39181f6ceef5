// Package dispatch moves decoded command messages from the network receive
// goroutine to the single-threaded game side. The game collaborators
// (scoring, spawning, UI) are not thread-safe by contract, so commands cross
// over through a bounded queue drained by one dispatcher goroutine.
package dispatch

import (
	"log"
	"sync"

	"github.com/BilGameDev/GyroBird/internal/protocol"
)

// Sinks are the game-side collaborators commands are delivered to. Any nil
// sink means that command is ignored. All sinks are invoked from the
// dispatcher goroutine only.
type Sinks struct {
	// Fire attempts a shot; the return reports whether the shot was
	// accepted (cooldown, ammo — game logic's call).
	Fire func() bool

	// Restart restarts the current game.
	Restart func()

	// Calibrate captures the receiver-side calibration offset.
	Calibrate func()
}

// Queue is the cross-thread command handoff. Enqueue never blocks: if the
// consumer has fallen behind the queue drops the command with a log line,
// which for idempotent triggers beats stalling the receive loop.
type Queue struct {
	sinks Sinks
	ch    chan uint8
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewQueue creates a queue delivering to sinks. Commands are rare (a tap on
// the phone), so a small buffer is plenty.
func NewQueue(sinks Sinks) *Queue {
	return &Queue{
		sinks: sinks,
		ch:    make(chan uint8, 16),
		done:  make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop drains nothing further and waits for the dispatcher to exit.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

// Enqueue hands a command tag to the dispatcher. Safe to call from the
// network goroutine.
func (q *Queue) Enqueue(tag uint8) {
	select {
	case q.ch <- tag:
	default:
		log.Printf("Dispatch: Queue full, dropping command %d", tag)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case tag := <-q.ch:
			q.deliver(tag)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) deliver(tag uint8) {
	switch tag {
	case protocol.MsgShoot:
		if q.sinks.Fire != nil {
			if !q.sinks.Fire() {
				log.Printf("Dispatch: Shot rejected")
			}
		}
	case protocol.MsgRestart:
		if q.sinks.Restart != nil {
			q.sinks.Restart()
		}
	case protocol.MsgCalibrate:
		if q.sinks.Calibrate != nil {
			q.sinks.Calibrate()
		}
	default:
		log.Printf("Dispatch: Unknown command %d", tag)
	}
}
