// Package pipeline converts a calibrated device attitude into a stabilized
// 2D screen-space aim offset: dead zone, range normalization, optional
// response curve, sensitivity scaling, screen mapping, and critically-damped
// smoothing toward the target.
package pipeline

import (
	"fmt"
	"math"

	"github.com/BilGameDev/GyroBird/internal/gyro"
)

// Config is the tilt-to-screen tuning. Validate before use; Process assumes
// a valid config.
type Config struct {
	// DeadZoneDeg clamps axis readings below this magnitude (in degrees) to
	// exactly zero. Suppresses sensor noise around center.
	DeadZoneDeg float64 `json:"dead_zone_deg"`

	// MaxTiltDeg is the tilt (in degrees) that maps to full deflection.
	// Must be positive.
	MaxTiltDeg float64 `json:"max_tilt_deg"`

	// Sensitivity scales the normalized deflection. Values above 1 reach
	// full deflection before MaxTiltDeg.
	Sensitivity float64 `json:"sensitivity"`

	// CurveEnabled applies sign(v)*|v|^CurvePower to each normalized axis.
	// Powers above 1 compress near-center sensitivity.
	CurveEnabled bool    `json:"curve_enabled"`
	CurvePower   float64 `json:"curve_power"`

	// Screen geometry and the fraction of each half-extent the aim may
	// cover.
	ScreenWidth        float64 `json:"screen_width"`
	ScreenHeight       float64 `json:"screen_height"`
	HorizontalFraction float64 `json:"horizontal_fraction"`
	VerticalFraction   float64 `json:"vertical_fraction"`

	// SmoothRate is the convergence rate of the output smoothing, in 1/s:
	// the aim reaches a stepped target in roughly 1/SmoothRate seconds.
	SmoothRate float64 `json:"smooth_rate"`
}

// DefaultConfig returns the tuning the game ships with.
func DefaultConfig() Config {
	return Config{
		DeadZoneDeg:        1.0,
		MaxTiltDeg:         25.0,
		Sensitivity:        1.0,
		CurveEnabled:       true,
		CurvePower:         1.5,
		ScreenWidth:        1920,
		ScreenHeight:       1080,
		HorizontalFraction: 0.9,
		VerticalFraction:   0.9,
		SmoothRate:         8.0,
	}
}

// Validate rejects configs that would divide by zero or misbehave at
// runtime. Called eagerly at setup, before any network activity.
func (c Config) Validate() error {
	if c.MaxTiltDeg <= 0 {
		return fmt.Errorf("pipeline: max_tilt_deg must be positive, got %v", c.MaxTiltDeg)
	}
	if c.DeadZoneDeg < 0 {
		return fmt.Errorf("pipeline: dead_zone_deg must not be negative, got %v", c.DeadZoneDeg)
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("pipeline: sensitivity must be positive, got %v", c.Sensitivity)
	}
	if c.CurveEnabled && c.CurvePower <= 0 {
		return fmt.Errorf("pipeline: curve_power must be positive, got %v", c.CurvePower)
	}
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		return fmt.Errorf("pipeline: screen size must be positive, got %vx%v", c.ScreenWidth, c.ScreenHeight)
	}
	if c.SmoothRate <= 0 {
		return fmt.Errorf("pipeline: smooth_rate must be positive, got %v", c.SmoothRate)
	}
	return nil
}

// Offset is a 2D screen-space offset from screen center, in pixels.
// Positive X is right, positive Y is up.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Process converts an orientation into the aim target offset. The offset is
// a target, not a position: consumers smooth toward it each tick via
// SmoothedTarget.
func Process(orientation, calibration gyro.Quaternion, cfg Config) Offset {
	calibrated := gyro.Calibrated(calibration, orientation)

	pitch := ShapeAxis(calibrated.PitchDeg(), cfg)
	yaw := ShapeAxis(calibrated.YawDeg(), cfg)

	// Nose-up moves the aim up, nose-left moves it left, hence the
	// negations. Same yaw convention for every consumer.
	return Offset{
		X: -yaw * (cfg.ScreenWidth / 2) * cfg.HorizontalFraction,
		Y: -pitch * (cfg.ScreenHeight / 2) * cfg.VerticalFraction,
	}
}

// ShapeAxis runs one axis through dead zone, clamp, normalization, response
// curve, and sensitivity. Input in degrees, output in [-1, 1].
func ShapeAxis(deg float64, cfg Config) float64 {
	// Dead zone: strictly-greater-than, so a reading exactly at the
	// threshold still clamps to zero.
	if math.Abs(deg) <= cfg.DeadZoneDeg {
		return 0
	}

	v := clamp(deg, -cfg.MaxTiltDeg, cfg.MaxTiltDeg) / cfg.MaxTiltDeg

	if cfg.CurveEnabled {
		v = math.Copysign(math.Pow(math.Abs(v), cfg.CurvePower), v)
	}

	// Sensitivity can push past full deflection; the re-clamp is mandatory.
	return clamp(v*cfg.Sensitivity, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SmoothedTarget tracks the currently displayed offset as it converges on
// the latest Process output. Owned by the consumer side; advanced once per
// render tick.
type SmoothedTarget struct {
	Current  Offset
	Target   Offset
	velocity Offset
}

// SetTarget replaces the target the current offset converges toward.
func (s *SmoothedTarget) SetTarget(t Offset) {
	s.Target = t
}

// Snap jumps directly to the target, zeroing smoothing state. Used on
// calibrate and restart so the aim does not glide across the screen.
func (s *SmoothedTarget) Snap(t Offset) {
	s.Current = t
	s.Target = t
	s.velocity = Offset{}
}

// Step advances the smoothed offset by dt seconds at the given rate.
func (s *SmoothedTarget) Step(dt, rate float64) Offset {
	s.Current.X, s.velocity.X = SmoothDamp(s.Current.X, s.Target.X, s.velocity.X, dt, rate)
	s.Current.Y, s.velocity.Y = SmoothDamp(s.Current.Y, s.Target.Y, s.velocity.Y, dt, rate)
	return s.Current
}

// SmoothDamp advances current toward target with critically-damped spring
// dynamics: no overshoot for a step input, convergence in roughly 1/rate
// seconds. Returns the new value and the new velocity; callers carry the
// velocity between ticks.
func SmoothDamp(current, target, velocity, dt, rate float64) (float64, float64) {
	// Critically damped spring, integrated with the standard polynomial
	// approximation of exp(-omega*dt).
	omega := 2 * rate
	x := omega * dt
	decay := 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)

	change := current - target
	temp := (velocity + omega*change) * dt
	velocity = (velocity - omega*temp) * decay
	next := target + (change+temp)*decay

	// Guard against the approximation stepping past the target.
	if (target-current > 0) == (next > target) {
		next = target
		velocity = 0
	}
	return next, velocity
}
