package ring

import (
	"math"

	"github.com/golang/geo/r2"
)

// FieldOfView is the horizontal field of view of a sensor, in radians.
const FieldOfView = math.Pi / 4

// Polar is a point in polar coordinates around some origin.
type Polar struct {
	Angle    float64 // radians
	Distance float64
}

// Cartesian converts p to cartesian coordinates around the same origin.
func (p Polar) Cartesian() r2.Point {
	return r2.Point{X: p.Distance * math.Cos(p.Angle), Y: p.Distance * math.Sin(p.Angle)}
}

// AngleOfPoint returns the angle of sample i of n relative to the sensor
// boresight. Samples are spread linearly from -FieldOfView/2 (first) to
// +FieldOfView/2 (last); a single sample lies on the boresight.
func AngleOfPoint(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return (float64(i)/float64(n-1) - 0.5) * FieldOfView
}

// ToGlobal converts a reading in the local frame of a sensor mounted at
// ringRadius from the center along sensorAngle into polar coordinates
// around the center, with the angle normalized into [0, 2π).
func ToGlobal(local Polar, ringRadius, sensorAngle float64) Polar {
	// sensor frame: the sensor sits at (ringRadius, 0) looking along +X
	p := r2.Point{X: ringRadius}.Add(local.Cartesian())
	return Polar{
		Angle:    NormalizeAngle(math.Atan2(p.Y, p.X) + sensorAngle),
		Distance: p.Norm(),
	}
}

// NormalizeAngle maps a into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// CellIndex maps an angle to one of size equal sectors, sector 0 starting at
// angle 0.
func CellIndex(angle float64, size int) int {
	if size <= 0 {
		return 0
	}
	i := int(math.Floor(NormalizeAngle(angle) / (2 * math.Pi / float64(size))))
	if i >= size {
		i = size - 1
	}
	return i
}

// CellAngle returns the angle at the middle of cell i.
func CellAngle(i, size int) float64 {
	return (float64(i) + 0.5) * 2 * math.Pi / float64(size)
}

// RoundHalfUp rounds v to the nearest integer, rounding halves up.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// SensorAngle returns the mounting angle of a sensor when count sensors,
// numbered from 1, are spread evenly around the ring.
func SensorAngle(sensor, count int) float64 {
	if count <= 0 {
		return 0
	}
	return float64(sensor-1) * 2 * math.Pi / float64(count)
}
