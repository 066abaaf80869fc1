package render

import (
	"fmt"
	"sync"
)

// Surface is a fixed-size raster target scrolled along its horizontal time
// axis. Column 0 is the oldest visible time slice, column Width-1 the newest.
// Values are normalized intensities in [0, 1].
type Surface struct {
	width  int
	height int
	cells  [][]float64 // cells[col][row]

	shifts uint64

	mu sync.RWMutex
}

// NewSurface creates a zeroed surface of the given dimensions
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface dimensions must be positive, got %dx%d", width, height)
	}

	cells := make([][]float64, width)
	for i := range cells {
		cells[i] = make([]float64, height)
	}

	return &Surface{
		width:  width,
		height: height,
		cells:  cells,
	}, nil
}

// Width returns the surface width in columns
func (s *Surface) Width() int {
	return s.width
}

// Height returns the surface height in rows
func (s *Surface) Height() int {
	return s.height
}

// ShiftLeft scrolls the surface left by k columns, discarding the oldest k
// and zeroing the vacated columns on the right.
func (s *Surface) ShiftLeft(k int) {
	if k <= 0 {
		return
	}
	if k > s.width {
		k = s.width
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.cells, s.cells[k:])
	for i := s.width - k; i < s.width; i++ {
		s.cells[i] = make([]float64, s.height)
	}

	s.shifts += uint64(k)
}

// PaintColumn writes one pixel column. Values beyond the surface height are
// ignored; missing rows stay at their current value.
func (s *Surface) PaintColumn(col int, values []float64) {
	if col < 0 || col >= s.width {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(values)
	if n > s.height {
		n = s.height
	}
	copy(s.cells[col][:n], values[:n])
}

// SetCell writes one cell. Out-of-range coordinates are ignored.
func (s *Surface) SetCell(col, row int, value float64) {
	if col < 0 || col >= s.width || row < 0 || row >= s.height {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[col][row] = value
}

// Column returns a copy of one pixel column
func (s *Surface) Column(col int) []float64 {
	if col < 0 || col >= s.width {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, s.height)
	copy(out, s.cells[col])
	return out
}

// ShiftCount returns the total number of columns scrolled off this surface
func (s *Surface) ShiftCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shifts
}
