package gamemath

import "math"

// WrapAngle normalizes an angle in radians to (-π, π].
func WrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// AngleDiff returns the signed shortest-arc difference b - a in (-π, π].
func AngleDiff(a, b float64) float64 {
	return WrapAngle(b - a)
}

// LerpAngle interpolates from a to b by t along the shortest arc.
func LerpAngle(a, b, t float64) float64 {
	return WrapAngle(a + AngleDiff(a, b)*t)
}
