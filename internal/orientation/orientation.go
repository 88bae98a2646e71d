package orientation

import (
	"math"
)

// Pose is the canonical representation of device tilt.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Posture is a coarse reading of how the device is resting.
type Posture string

const (
	PostureUpright Posture = "upright"
	PostureTilted  Posture = "tilted"
	PostureFlat    Posture = "flat"
)

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is 0: there is no magnetometer in this pipeline.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// Posture classifies the pose. A device lying face up or face down has
// both angles near 0 or roll near ±180; a device held upright has a steep
// pitch or roll near ±90.
func (p Pose) Posture() Posture {
	roll := math.Abs(p.Roll)
	pitch := math.Abs(p.Pitch)
	if roll > 90 {
		roll = 180 - roll
	}
	switch {
	case roll < 20 && pitch < 20:
		return PostureFlat
	case roll > 60 || pitch > 60:
		return PostureUpright
	default:
		return PostureTilted
	}
}
