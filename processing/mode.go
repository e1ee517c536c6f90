package processing

import "fmt"

// Area selects which part of the distance matrix is processed.
type Area uint8

const (
	AreaMatrix Area = iota
	AreaColumn
	AreaRow
	AreaPoint
)

func (a Area) String() string {
	switch a {
	case AreaMatrix:
		return "matrix"
	case AreaColumn:
		return "column"
	case AreaRow:
		return "row"
	case AreaPoint:
		return "point"
	default:
		return fmt.Sprintf("area(%d)", uint8(a))
	}
}

// Selector selects the quantity extracted from an area.
type Selector uint8

const (
	SelectMin Selector = iota
	SelectMax
	SelectAverage
	SelectAll
)

func (s Selector) String() string {
	switch s {
	case SelectMin:
		return "min"
	case SelectMax:
		return "max"
	case SelectAverage:
		return "average"
	case SelectAll:
		return "all points"
	default:
		return fmt.Sprintf("selector(%d)", uint8(s))
	}
}

// Mode is the processing_mode byte of a config message.
//
//	bits 6-7  area
//	bits 4-5  selector (matrix, column, row)
//	bits 0-2  column/row index, or x for a point
//	bits 3-5  y for a point (selector is implicitly min)
type Mode uint8

// MatrixMode processes the whole matrix.
func MatrixMode(sel Selector) Mode {
	return Mode(uint8(AreaMatrix)<<6 | uint8(sel&3)<<4)
}

// ColumnMode processes a single column.
func ColumnMode(col int, sel Selector) Mode {
	return Mode(uint8(AreaColumn)<<6 | uint8(sel&3)<<4 | uint8(col&7))
}

// RowMode processes a single row.
func RowMode(row int, sel Selector) Mode {
	return Mode(uint8(AreaRow)<<6 | uint8(sel&3)<<4 | uint8(row&7))
}

// PointMode processes the single point (x, y).
func PointMode(x, y int) Mode {
	return Mode(uint8(AreaPoint)<<6 | uint8(y&7)<<3 | uint8(x&7))
}

func (m Mode) Area() Area { return Area(m >> 6) }

// Selector returns the selector; point areas always report SelectMin.
func (m Mode) Selector() Selector {
	if m.Area() == AreaPoint {
		return SelectMin
	}
	return Selector(m>>4) & 3
}

// Index returns the column or row index (x for a point).
func (m Mode) Index() int { return int(m & 7) }

// Point returns the coordinates of a point area.
func (m Mode) Point() (x, y int) { return int(m & 7), int(m>>3) & 7 }

func (m Mode) String() string {
	switch m.Area() {
	case AreaMatrix:
		return fmt.Sprintf("%s of matrix", m.Selector())
	case AreaColumn, AreaRow:
		return fmt.Sprintf("%s of %s %d", m.Selector(), m.Area(), m.Index())
	default:
		x, y := m.Point()
		return fmt.Sprintf("point (%d, %d)", x, y)
	}
}
