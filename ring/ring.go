// Package ring fuses batches from sensors mounted around a circular fixture
// into one circular diagram of distances from the fixture center. Points
// that are not refreshed fade out after a configured number of inserts.
package ring

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/notnil/tofcan"
)

// Invalid is the distance of a cell holding no reading.
const Invalid int16 = -1

// Point is one cell of the diagram.
type Point struct {
	Distance int16 // from the ring center; Invalid if expired
	Age      int16 // inserts since the cell was last written
}

// Valid reports whether the cell holds a live reading.
func (p Point) Valid() bool { return p.Distance != Invalid }

// Ring maintains the diagram. It is not safe for concurrent use.
type Ring struct {
	diagram []Point
	radius  float64
	maxAge  int16
}

// New allocates a reset ring of size cells.
func New(size, ringRadius, maxAge int) *Ring {
	r := &Ring{}
	r.Configure(make([]Point, size), ringRadius, maxAge)
	return r
}

// Configure points the ring at caller-owned storage and resets it. maxAge
// is clamped to 1..32767.
func (r *Ring) Configure(diagram []Point, ringRadius, maxAge int) {
	if maxAge < 1 {
		maxAge = 1
	}
	if maxAge > math.MaxInt16 {
		maxAge = math.MaxInt16
	}
	r.diagram = diagram
	r.radius = float64(ringRadius)
	r.maxAge = int16(maxAge)
	r.Reset()
}

// Reset invalidates every cell.
func (r *Ring) Reset() {
	for i := range r.diagram {
		r.diagram[i] = Point{Distance: Invalid, Age: r.maxAge}
	}
}

// Size returns the number of cells.
func (r *Ring) Size() int { return len(r.diagram) }

// Diagram returns the cells. The slice is the ring's storage.
func (r *Ring) Diagram() []Point { return r.diagram }

// Insert projects every valid sample of b, taken by a sensor mounted at
// sensorAngle, into the diagram and then ages every cell once.
func (r *Ring) Insert(b tofcan.Batch, sensorAngle float64) {
	r.InsertSamples(b.Samples(), sensorAngle)
}

// InsertSamples is Insert for a bare sample slice.
func (r *Ring) InsertSamples(samples []int16, sensorAngle float64) {
	if len(r.diagram) == 0 {
		return
	}
	n := len(samples)
	for i, d := range samples {
		if d == tofcan.InvalidDistance {
			continue
		}
		g := ToGlobal(Polar{Angle: AngleOfPoint(i, n), Distance: float64(d)}, r.radius, sensorAngle)
		dist := RoundHalfUp(g.Distance)
		if dist > math.MaxInt16 {
			dist = math.MaxInt16
		}
		r.diagram[CellIndex(g.Angle, len(r.diagram))] = Point{Distance: int16(dist)}
	}
	r.age()
}

func (r *Ring) age() {
	for i := range r.diagram {
		c := &r.diagram[i]
		if c.Age < r.maxAge {
			c.Age++
		}
		if c.Age >= r.maxAge {
			c.Distance = Invalid
		}
	}
}

// Closest returns the valid cell nearest to the center.
func (r *Ring) Closest() (cell int, p Point, ok bool) {
	for i, c := range r.diagram {
		if !c.Valid() {
			continue
		}
		if !ok || c.Distance < p.Distance {
			cell, p, ok = i, c, true
		}
	}
	return cell, p, ok
}

// Outline returns the cartesian position of every valid cell, placed at the
// middle angle of its sector.
func (r *Ring) Outline() []r2.Point {
	var pts []r2.Point
	for i, c := range r.diagram {
		if !c.Valid() {
			continue
		}
		pts = append(pts, Polar{Angle: CellAngle(i, len(r.diagram)), Distance: float64(c.Distance)}.Cartesian())
	}
	return pts
}
