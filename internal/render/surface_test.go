package render

import "testing"

func TestNewSurface(t *testing.T) {
	if _, err := NewSurface(0, 10); err == nil {
		t.Error("Expected error for zero width")
	}
	if _, err := NewSurface(10, -1); err == nil {
		t.Error("Expected error for negative height")
	}

	s, err := NewSurface(4, 3)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	if s.Width() != 4 || s.Height() != 3 {
		t.Errorf("Expected 4x3 surface, got %dx%d", s.Width(), s.Height())
	}
}

func TestSurfaceShiftLeft(t *testing.T) {
	s, err := NewSurface(4, 2)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	s.PaintColumn(0, []float64{0.1, 0.2})
	s.PaintColumn(1, []float64{0.3, 0.4})
	s.PaintColumn(3, []float64{0.7, 0.8})

	s.ShiftLeft(1)

	col := s.Column(0)
	if col[0] != 0.3 || col[1] != 0.4 {
		t.Errorf("Expected column 1 shifted to 0, got %v", col)
	}

	col = s.Column(2)
	if col[0] != 0.7 || col[1] != 0.8 {
		t.Errorf("Expected column 3 shifted to 2, got %v", col)
	}

	// Vacated newest column is zeroed
	col = s.Column(3)
	if col[0] != 0 || col[1] != 0 {
		t.Errorf("Expected zeroed column, got %v", col)
	}

	if s.ShiftCount() != 1 {
		t.Errorf("Expected shift count 1, got %d", s.ShiftCount())
	}
}

func TestSurfaceShiftLeftBeyondWidth(t *testing.T) {
	s, _ := NewSurface(3, 1)
	s.PaintColumn(2, []float64{0.9})

	s.ShiftLeft(10)

	for i := 0; i < 3; i++ {
		if v := s.Column(i)[0]; v != 0 {
			t.Errorf("Expected column %d zeroed, got %f", i, v)
		}
	}
}

func TestSurfacePaintColumnBounds(t *testing.T) {
	s, _ := NewSurface(2, 2)

	// Out-of-range columns are ignored, not panics
	s.PaintColumn(-1, []float64{1})
	s.PaintColumn(5, []float64{1})
	s.SetCell(0, 5, 1)

	// Oversized value slice is truncated to surface height
	s.PaintColumn(0, []float64{0.1, 0.2, 0.3, 0.4})
	col := s.Column(0)
	if len(col) != 2 || col[0] != 0.1 || col[1] != 0.2 {
		t.Errorf("Unexpected column after oversized paint: %v", col)
	}
}

func TestSurfaceColumnIsACopy(t *testing.T) {
	s, _ := NewSurface(2, 1)
	s.PaintColumn(0, []float64{0.5})

	col := s.Column(0)
	col[0] = 99

	if s.Column(0)[0] != 0.5 {
		t.Error("Column must return a copy, not the backing slice")
	}
}
