package ring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notnil/tofcan"
)

const eps = 1e-9

func batchOf(samples ...int16) tofcan.Batch {
	var b tofcan.Batch
	b.DataLength = copy(b.Data[:], samples)
	return b
}

func TestAngleOfPoint(t *testing.T) {
	assert.InDelta(t, -math.Pi/8, AngleOfPoint(0, 8), eps)
	assert.InDelta(t, math.Pi/8, AngleOfPoint(7, 8), eps)
	assert.InDelta(t, 0, AngleOfPoint(1, 3), eps)
	assert.Zero(t, AngleOfPoint(0, 1))
}

func TestToGlobal(t *testing.T) {
	cases := []struct {
		name        string
		local       Polar
		radius      float64
		sensorAngle float64
		want        Polar
	}{
		{"center, boresight", Polar{0, 100}, 0, 0, Polar{0, 100}},
		{"radius adds along boresight", Polar{0, 50}, 100, 0, Polar{0, 150}},
		{"rotated sensor", Polar{0, 50}, 100, math.Pi / 2, Polar{math.Pi / 2, 150}},
		{"off-axis sample", Polar{math.Pi / 2, 100}, 100, 0, Polar{math.Pi / 4, 100 * math.Sqrt2}},
		{"negative angle wraps", Polar{-math.Pi / 2, 100}, 100, 0, Polar{7 * math.Pi / 4, 100 * math.Sqrt2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToGlobal(tc.local, tc.radius, tc.sensorAngle)
			assert.InDelta(t, tc.want.Angle, got.Angle, eps)
			assert.InDelta(t, tc.want.Distance, got.Distance, eps)
		})
	}
}

func TestNormalizeAndCells(t *testing.T) {
	assert.InDelta(t, 3*math.Pi/2, NormalizeAngle(-math.Pi/2), eps)
	assert.Zero(t, NormalizeAngle(2*math.Pi))
	assert.InDelta(t, math.Pi, NormalizeAngle(5*math.Pi), eps)

	assert.Equal(t, 0, CellIndex(0, 8))
	assert.Equal(t, 4, CellIndex(math.Pi, 8))
	assert.Equal(t, 7, CellIndex(2*math.Pi-1e-12, 8))
	assert.Equal(t, 7, CellIndex(-0.1, 8))
	assert.Equal(t, 0, CellIndex(1, 0))
	assert.InDelta(t, math.Pi/8, CellAngle(0, 8), eps)

	assert.Equal(t, 3, RoundHalfUp(2.5))
	assert.Equal(t, -2, RoundHalfUp(-2.5))
	assert.Equal(t, 2, RoundHalfUp(2.49))

	assert.Zero(t, SensorAngle(1, 4))
	assert.InDelta(t, math.Pi, SensorAngle(3, 4), eps)
}

func TestResetIdempotent(t *testing.T) {
	r := New(16, 50, 4)
	r.Insert(batchOf(300, 400, 500), 1)
	r.Reset()
	first := append([]Point(nil), r.Diagram()...)
	r.Reset()
	assert.Equal(t, first, r.Diagram())
	for _, p := range r.Diagram() {
		assert.Equal(t, Point{Distance: Invalid, Age: 4}, p)
	}
}

func TestInsertWritesCell(t *testing.T) {
	r := New(8, 0, 3)
	r.Insert(batchOf(500), SensorAngle(3, 4))

	for i, p := range r.Diagram() {
		if i == 4 {
			assert.Equal(t, Point{Distance: 500, Age: 1}, p)
			continue
		}
		assert.False(t, p.Valid(), "cell %d", i)
	}
	cell, p, ok := r.Closest()
	require.True(t, ok)
	assert.Equal(t, 4, cell)
	assert.Equal(t, int16(500), p.Distance)
}

func TestInsertSpreadsAcrossFieldOfView(t *testing.T) {
	r := New(8, 0, 3)
	r.Insert(batchOf(1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000), 0)

	var valid []int
	for i, p := range r.Diagram() {
		if p.Valid() {
			valid = append(valid, i)
		}
	}
	assert.Equal(t, []int{0, 7}, valid)
}

func TestInsertSkipsInvalidAndLastWriterWins(t *testing.T) {
	r := New(4, 0, 5)
	// samples 1 and 2 both land in cell 0
	r.InsertSamples([]int16{tofcan.InvalidDistance, 700, 650}, 0)
	assert.Equal(t, Point{Distance: 650, Age: 1}, r.Diagram()[0])
	assert.False(t, r.Diagram()[3].Valid())
}

func TestAging(t *testing.T) {
	const maxAge = 3
	r := New(8, 0, maxAge)
	r.Insert(batchOf(800), 0)
	require.True(t, r.Diagram()[0].Valid())

	for i := 0; i < maxAge; i++ {
		r.Insert(tofcan.Batch{}, 0)
	}
	assert.Equal(t, Point{Distance: Invalid, Age: maxAge}, r.Diagram()[0])

	// refreshing resets the age
	r.Insert(batchOf(800), 0)
	r.Insert(tofcan.Batch{}, 0)
	assert.Equal(t, Point{Distance: 800, Age: 2}, r.Diagram()[0])
}

func TestConfigureCallerStorage(t *testing.T) {
	storage := make([]Point, 6)
	var r Ring
	r.Configure(storage, 10, 0)
	assert.Equal(t, 6, r.Size())
	assert.Equal(t, Point{Distance: Invalid, Age: 1}, storage[0])

	// with the minimum age a point expires in the insert that wrote it
	r.InsertSamples([]int16{100}, 0)
	assert.False(t, storage[0].Valid())
	_, _, ok := r.Closest()
	assert.False(t, ok)
}

func TestOutline(t *testing.T) {
	r := New(4, 0, 2)
	r.InsertSamples([]int16{100}, math.Pi/4)
	pts := r.Outline()
	require.Len(t, pts, 1)
	assert.InDelta(t, 100*math.Cos(math.Pi/4), pts[0].X, eps)
	assert.InDelta(t, 100*math.Sin(math.Pi/4), pts[0].Y, eps)
}
