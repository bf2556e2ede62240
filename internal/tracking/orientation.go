package tracking

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Yaw returns the rotation of q about the vertical (Y) axis in radians, in
// (-π, π]. The decomposition is Y-up with yaw applied last (Y·X·Z), which is
// the convention the scene engine uses for its Euler angles.
func Yaw(q quat.Number) float64 {
	q = normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return math.Atan2(2*(w*y+x*z), 1-2*(x*x+y*y))
}

// YawOnly returns the rotation about Y by Yaw(q), discarding pitch and roll.
func YawOnly(q quat.Number) quat.Number {
	half := Yaw(q) / 2
	return quat.Number{Real: math.Cos(half), Jmag: math.Sin(half)}
}

// BaseStationPose applies the base-station orientation policy. With flatten
// set the rotation is reduced to yaw only; otherwise p is returned verbatim.
func BaseStationPose(p Pose, flatten bool) Pose {
	if !flatten {
		return p
	}
	p.Rotation = YawOnly(p.Rotation)
	return p
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return IdentityRotation
	}
	return quat.Scale(1/n, q)
}
