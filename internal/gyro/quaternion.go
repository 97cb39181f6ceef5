// Package gyro provides the quaternion math used by the orientation pipeline:
// attitude representation, the sensor-to-receiver coordinate transform, and
// pitch/yaw extraction.
package gyro

import "math"

// Quaternion is a unit quaternion (x, y, z, w) describing device attitude.
// Component order matches the wire layout.
type Quaternion struct {
	X, Y, Z, W float32
}

// Identity is the zero-rotation quaternion.
var Identity = Quaternion{X: 0, Y: 0, Z: 0, W: 1}

// reorient is a fixed 90 degree rotation about the X axis, composed on the
// left of every sent orientation. It maps "phone flat on the table, screen
// up" to "phone screen facing forward".
var reorient = Quaternion{X: float32(math.Sin(math.Pi / 4)), Y: 0, Z: 0, W: float32(math.Cos(math.Pi / 4))}

// Mul returns the Hamilton product q*r: the rotation r followed by q.
// The product of two unit quaternions is a unit quaternion, so the
// calibration chain never needs renormalizing.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
	}
}

// Conjugate returns the conjugate of q. For a unit quaternion this is the
// inverse rotation.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// DeviceToReceiver converts a raw device sensor quaternion into the
// receiver's coordinate convention. The sensor frame and the receiver frame
// differ in handedness, which a sign flip on z and w accounts for, and the
// result is re-oriented so that holding the phone screen-forward reads as
// identity. This transform is fixed: the receiver's decoding assumes it.
func DeviceToReceiver(raw Quaternion) Quaternion {
	mirrored := Quaternion{X: raw.X, Y: raw.Y, Z: -raw.Z, W: -raw.W}
	return reorient.Mul(mirrored)
}

// Calibrated applies a calibration offset: the attitude stored at calibrate
// time reads as identity afterwards.
func Calibrated(offset, q Quaternion) Quaternion {
	return offset.Conjugate().Mul(q)
}

// PitchDeg extracts the rotation about the device's lateral (X) axis in
// degrees, normalized into (-180, 180].
func (q Quaternion) PitchDeg() float64 {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	return math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)) * 180 / math.Pi
}

// YawDeg extracts the rotation about the vertical (Y) axis in degrees,
// normalized into (-180, 180].
func (q Quaternion) YawDeg() float64 {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	return math.Atan2(2*(w*y+x*z), 1-2*(y*y+z*z)) * 180 / math.Pi
}

// FromAxisAngleDeg builds a quaternion for a rotation of deg degrees about
// the given (unit) axis. Mostly useful in tests and the synthetic source.
func FromAxisAngleDeg(ax, ay, az float32, deg float64) Quaternion {
	half := deg * math.Pi / 360
	s := float32(math.Sin(half))
	return Quaternion{X: ax * s, Y: ay * s, Z: az * s, W: float32(math.Cos(half))}
}
