package processing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Status codes the VL53L5CX reports for a valid target.
const (
	StatusValid           uint8 = 5
	StatusValidLargePulse uint8 = 9
)

var (
	// ErrNoValidData reports an area with no valid point.
	ErrNoValidData = errors.New("processing: no valid data in area")
	// ErrInvalidMode reports a mode whose index falls outside the matrix.
	ErrInvalidMode = errors.New("processing: mode outside matrix")
	// ErrShape reports matrix and status slices that do not match the width.
	ErrShape = errors.New("processing: matrix shape mismatch")
)

// Width returns the side of the square matrix for a sensor resolution
// (16 -> 4, 64 -> 8).
func Width(resolution int) int {
	if resolution == 16 {
		return 4
	}
	return 8
}

// Valid reports whether a target status marks a usable distance.
func Valid(status uint8) bool {
	return status == StatusValid || status == StatusValidLargePulse
}

// Bounds returns the inclusive rectangle (x0, y0)-(x1, y1) selected by mode
// on a width x width matrix.
func Bounds(mode Mode, width int) (x0, y0, x1, y1 int, err error) {
	last := width - 1
	switch mode.Area() {
	case AreaMatrix:
		return 0, 0, last, last, nil
	case AreaColumn:
		c := mode.Index()
		if c > last {
			return 0, 0, 0, 0, fmt.Errorf("%w: column %d, width %d", ErrInvalidMode, c, width)
		}
		return c, 0, c, last, nil
	case AreaRow:
		r := mode.Index()
		if r > last {
			return 0, 0, 0, 0, fmt.Errorf("%w: row %d, width %d", ErrInvalidMode, r, width)
		}
		return 0, r, last, r, nil
	default:
		x, y := mode.Point()
		if x > last || y > last {
			return 0, 0, 0, 0, fmt.Errorf("%w: point (%d, %d), width %d", ErrInvalidMode, x, y, width)
		}
		return x, y, x, y, nil
	}
}

// Reduce applies mode to a row-major distance matrix and its per-point
// status. Min, max and average yield one value; SelectAll yields every
// point of the area in row-major order with invalid points set to -1.
// ErrNoValidData is returned when the area holds no valid point.
func Reduce(matrix []int16, status []uint8, width int, mode Mode) ([]int16, error) {
	if width <= 0 || len(matrix) < width*width || len(status) < width*width {
		return nil, fmt.Errorf("%w: width %d, %d distances, %d statuses", ErrShape, width, len(matrix), len(status))
	}
	x0, y0, x1, y1, err := Bounds(mode, width)
	if err != nil {
		return nil, err
	}

	sel := mode.Selector()
	var (
		valid []float64
		all   []int16
	)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			i := x + y*width
			ok := Valid(status[i])
			if ok {
				valid = append(valid, float64(matrix[i]))
			}
			if sel == SelectAll {
				if ok {
					all = append(all, matrix[i])
				} else {
					all = append(all, -1)
				}
			}
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidData
	}

	switch sel {
	case SelectMin:
		return []int16{int16(floats.Min(valid))}, nil
	case SelectMax:
		return []int16{int16(floats.Max(valid))}, nil
	case SelectAverage:
		// integer division, truncating like the firmware
		return []int16{int16(stat.Mean(valid, nil))}, nil
	default:
		return all, nil
	}
}
