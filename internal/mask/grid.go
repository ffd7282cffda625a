package mask

import (
	"fmt"
	"math"
)

// Shape is the size of a raster in rows (y) and columns (x).
type Shape struct {
	Rows, Cols int
}

func (s Shape) Valid() bool { return s.Rows > 0 && s.Cols > 0 }

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Rows, s.Cols) }

// Grid is a row-major raster. Pixel (col,row) has its centre at (x=col, y=row).
type Grid struct {
	Shape
	Data []float64
}

// NewGrid returns a zeroed grid.
func NewGrid(shape Shape) Grid {
	return Grid{Shape: shape, Data: make([]float64, shape.Rows*shape.Cols)}
}

// FromRows copies a [row][col] slice into a grid. Ragged input is rejected.
func FromRows(rows [][]float64) (Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Grid{}, fmt.Errorf("empty raster")
	}
	g := NewGrid(Shape{Rows: len(rows), Cols: len(rows[0])})
	for y, r := range rows {
		if len(r) != g.Cols {
			return Grid{}, fmt.Errorf("row %d has %d columns, want %d", y, len(r), g.Cols)
		}
		copy(g.Data[y*g.Cols:], r)
	}
	return g, nil
}

func (g Grid) At(col, row int) float64 { return g.Data[row*g.Cols+col] }

func (g Grid) set(col, row int, v float64) { g.Data[row*g.Cols+col] = v }

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := Grid{Shape: g.Shape, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// Count returns the number of pixels with a value > 0.
func (g Grid) Count() int {
	n := 0
	for _, v := range g.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// SameShape reports whether g and o have equal dimensions.
func (g Grid) SameShape(o Grid) bool { return g.Shape == o.Shape }

func normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
