package gyro

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrUnavailable is returned by a Source whose underlying sensor cannot be
// read (no gyroscope, permission denied, hardware gone).
var ErrUnavailable = errors.New("gyro: orientation source unavailable")

// Source is anything that can report the device's current attitude in the
// raw sensor frame. Implementations: real sensor bridges on mobile builds,
// SyntheticSource for development and tests.
type Source interface {
	Current() (Quaternion, error)
}

// SyntheticSource produces a smooth, deterministic attitude sweep: a slow
// figure-eight in pitch and yaw. It lets the sender role run on hardware
// without a gyroscope.
type SyntheticSource struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time

	// PitchAmplitudeDeg and YawAmplitudeDeg bound the sweep. Period is the
	// duration of one full figure-eight.
	PitchAmplitudeDeg float64
	YawAmplitudeDeg   float64
	Period            time.Duration
}

// NewSyntheticSource returns a source sweeping +/-15 degrees on both axes
// over an 8 second period.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		now:               time.Now,
		PitchAmplitudeDeg: 15,
		YawAmplitudeDeg:   15,
		Period:            8 * time.Second,
	}
}

// Current returns the sweep attitude for the current instant.
func (s *SyntheticSource) Current() (Quaternion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		s.start = s.now()
	}
	phase := 2 * math.Pi * float64(s.now().Sub(s.start)) / float64(s.Period)

	pitch := FromAxisAngleDeg(1, 0, 0, s.PitchAmplitudeDeg*math.Sin(phase))
	yaw := FromAxisAngleDeg(0, 1, 0, s.YawAmplitudeDeg*math.Sin(2*phase))
	return yaw.Mul(pitch), nil
}

// FixedSource always reports the same attitude. Useful in tests.
type FixedSource struct {
	Q   Quaternion
	Err error
}

func (f FixedSource) Current() (Quaternion, error) {
	if f.Err != nil {
		return Quaternion{}, f.Err
	}
	return f.Q, nil
}
