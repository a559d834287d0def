package domain

import "math"

// Vector3 is a position in the shared scene, in scene units.
type Vector3 [3]float64

// Quaternion is an orientation, stored x, y, z, w with norm ≈ 1.
type Quaternion [4]float64

// Transform is a participant's position and orientation in the shared space.
type Transform struct {
	Position Vector3    `json:"position"`
	Rotation Quaternion `json:"rotation"`
}

// IdentityTransform returns the origin transform with no rotation.
func IdentityTransform() Transform {
	return Transform{Rotation: Quaternion{0, 0, 0, 1}}
}

// DistanceTo returns the Euclidean distance between two positions.
func (v Vector3) DistanceTo(o Vector3) float64 {
	dx := v[0] - o[0]
	dy := v[1] - o[1]
	dz := v[2] - o[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// AngleTo returns the angle between two unit quaternions in degrees.
func (q Quaternion) AngleTo(o Quaternion) float64 {
	dot := q[0]*o[0] + q[1]*o[1] + q[2]*o[2] + q[3]*o[3]
	if dot < 0 {
		dot = -dot
	}
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot) * 180 / math.Pi
}
