package render

import (
	"testing"
	"time"

	"github.com/KanuToCL/SonoTag-sub000/internal/score"
)

func testConfig() Config {
	return Config{
		Width:           20,
		SpectrogramBins: 4,
		Prompts:         []string{"speech", "music"},
		SlideSpeed:      4,
		TickInterval:    16 * time.Millisecond,
	}
}

func TestNewRenderer(t *testing.T) {
	config := testConfig()
	config.SlideSpeed = 0
	if _, err := NewRenderer(config, nil, nil, nil); err == nil {
		t.Error("Expected error for invalid slide speed")
	}

	config = testConfig()
	config.Prompts = nil
	if _, err := NewRenderer(config, nil, nil, nil); err == nil {
		t.Error("Expected error for empty prompt list")
	}

	r, err := NewRenderer(testConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	if r.Heatmap().Height() != 2 {
		t.Errorf("Expected one heatmap row per prompt, got %d", r.Heatmap().Height())
	}
}

func TestRendererLockstep(t *testing.T) {
	// Both surfaces must shift identically for every tick count and every
	// slide speed, with no scores ever applied.
	for speed := 1; speed <= 5; speed++ {
		config := testConfig()
		config.SlideSpeed = speed

		r, err := NewRenderer(config, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewRenderer failed: %v", err)
		}

		for n := 1; n <= 25; n++ {
			r.Tick()
			specShifts := r.Spectrogram().ShiftCount()
			heatShifts := r.Heatmap().ShiftCount()
			if specShifts != heatShifts {
				t.Fatalf("Speed %d tick %d: spectrogram shifted %d, heatmap %d",
					speed, n, specShifts, heatShifts)
			}
		}
	}
}

func TestRendererSkipFactor(t *testing.T) {
	cases := []struct {
		speed  int
		ticks  int
		shifts uint64
	}{
		{1, 12, 2},
		{2, 12, 3},
		{3, 12, 6},
		{4, 12, 12},
		{5, 12, 12},
	}

	for _, tc := range cases {
		config := testConfig()
		config.SlideSpeed = tc.speed

		r, err := NewRenderer(config, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewRenderer failed: %v", err)
		}

		for i := 0; i < tc.ticks; i++ {
			r.Tick()
		}

		if got := r.Spectrogram().ShiftCount(); got != tc.shifts {
			t.Errorf("Speed %d: expected %d shifts after %d ticks, got %d",
				tc.speed, tc.shifts, tc.ticks, got)
		}
	}
}

func TestRendererHeatmapPaint(t *testing.T) {
	r, err := NewRenderer(testConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	// Before any scores arrive the heatmap paints zero columns
	r.Tick()
	newest := r.Heatmap().Width() - 1
	col := r.Heatmap().Column(newest)
	if col[0] != 0 || col[1] != 0 {
		t.Errorf("Expected zero column before scores, got %v", col)
	}

	applied := r.ApplyScores(&score.DisplayScoreSet{
		Prompts:     []string{"speech", "music"},
		Values:      map[string]float64{"speech": 0.9, "music": 0.2},
		SubmittedAt: time.Now(),
	})
	if !applied {
		t.Fatal("ApplyScores rejected a fresh score set")
	}

	r.Tick()
	col = r.Heatmap().Column(newest)
	if col[0] != 0.9 || col[1] != 0.2 {
		t.Errorf("Expected painted scores in canonical row order, got %v", col)
	}
}

func TestRendererSpectralSource(t *testing.T) {
	source := func() []float64 {
		return []float64{0.1, 0.2, 0.3, 0.4}
	}

	r, err := NewRenderer(testConfig(), source, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	r.Tick()
	newest := r.Spectrogram().Width() - 1
	col := r.Spectrogram().Column(newest)
	if col[2] != 0.3 {
		t.Errorf("Expected spectral column from source, got %v", col)
	}
}

func TestRendererRejectsStaleScores(t *testing.T) {
	r, err := NewRenderer(testConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	now := time.Now()
	r.ApplyScores(&score.DisplayScoreSet{
		Prompts:     []string{"speech", "music"},
		Values:      map[string]float64{"speech": 0.5, "music": 0.5},
		SubmittedAt: now,
	})

	stale := r.ApplyScores(&score.DisplayScoreSet{
		Prompts:     []string{"speech", "music"},
		Values:      map[string]float64{"speech": 0.1, "music": 0.1},
		SubmittedAt: now.Add(-time.Second),
	})
	if stale {
		t.Error("Expected stale score set to be rejected")
	}
	if r.CurrentScores().Values["speech"] != 0.5 {
		t.Error("Stale score set overwrote the current one")
	}
}

func TestRendererFrameScoreBackPaint(t *testing.T) {
	config := testConfig()
	config.Width = 10
	config.SlideSpeed = 4 // one shift per tick
	config.TickInterval = 100 * time.Millisecond

	r, err := NewRenderer(config, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	// 10 shifts per second at this interval and speed, so a 500ms window
	// spans 5 columns ending at the right edge when no shifts have
	// elapsed since submission.
	r.ApplyFrameScores(map[string][]float64{
		"speech": {0.2, 0.4, 0.6, 0.8},
	}, 500*time.Millisecond, r.HeatmapShiftCount())

	windowStart := 10 - 5
	expected := map[int]float64{
		windowStart + 0: 0.2, // round(0/4 * 5) = 0
		windowStart + 1: 0.4, // round(1/4 * 5) = 1
		windowStart + 3: 0.6, // round(2/4 * 5) = 3
		windowStart + 4: 0.8, // round(3/4 * 5) = 4
	}
	for col, want := range expected {
		if got := r.Heatmap().Column(col)[0]; got != want {
			t.Errorf("Column %d: expected %f, got %f", col, want, got)
		}
	}

	// Unknown prompts and rows without frame scores stay untouched
	if got := r.Heatmap().Column(windowStart)[1]; got != 0 {
		t.Errorf("Expected untouched music row, got %f", got)
	}
}

func TestRendererFrameScoreBackPaintAfterLatency(t *testing.T) {
	config := testConfig()
	config.Width = 10
	config.SlideSpeed = 4 // one shift per tick
	config.TickInterval = 100 * time.Millisecond

	r, err := NewRenderer(config, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	// Capture the mark at submission, then let three columns scroll while
	// the classification is outstanding.
	mark := r.HeatmapShiftCount()
	for i := 0; i < 3; i++ {
		r.Tick()
	}

	r.ApplyFrameScores(map[string][]float64{
		"speech": {0.2, 0.4, 0.6, 0.8},
	}, 500*time.Millisecond, mark)

	// The window ended at the right edge three shifts ago, so it now
	// starts three columns further left.
	windowStart := 10 - 5 - 3
	expected := map[int]float64{
		windowStart + 0: 0.2,
		windowStart + 1: 0.4,
		windowStart + 3: 0.6,
		windowStart + 4: 0.8,
	}
	for col, want := range expected {
		if got := r.Heatmap().Column(col)[0]; got != want {
			t.Errorf("Column %d: expected %f, got %f", col, want, got)
		}
	}

	// The columns painted after the window ended carry no window scores.
	for col := windowStart + 5; col < 10; col++ {
		if got := r.Heatmap().Column(col)[0]; got != 0 {
			t.Errorf("Column %d: expected 0 past the window end, got %f", col, got)
		}
	}
}

func TestRendererFrameScoreBackPaintScrolledOff(t *testing.T) {
	config := testConfig()
	config.Width = 6
	config.SlideSpeed = 4
	config.TickInterval = 100 * time.Millisecond

	r, err := NewRenderer(config, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	// A 500ms window spans 5 columns; after 4 elapsed shifts the first two
	// sub-frames have scrolled off the left edge.
	mark := r.HeatmapShiftCount()
	for i := 0; i < 4; i++ {
		r.Tick()
	}

	r.ApplyFrameScores(map[string][]float64{
		"speech": {0.2, 0.4, 0.6, 0.8},
	}, 500*time.Millisecond, mark)

	// windowStart = 6 - 5 - 4 = -3; sub-frames land at columns -3, -2, 0
	// and 1, and the negative ones are skipped.
	if got := r.Heatmap().Column(0)[0]; got != 0.6 {
		t.Errorf("Column 0: expected 0.6, got %f", got)
	}
	if got := r.Heatmap().Column(1)[0]; got != 0.8 {
		t.Errorf("Column 1: expected 0.8, got %f", got)
	}
	for col := 2; col < 6; col++ {
		if got := r.Heatmap().Column(col)[0]; got != 0 {
			t.Errorf("Column %d: expected 0 past the window end, got %f", col, got)
		}
	}
}

func TestRendererSetSlideSpeed(t *testing.T) {
	r, err := NewRenderer(testConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	if err := r.SetSlideSpeed(9); err == nil {
		t.Error("Expected error for out-of-range speed")
	}
	if err := r.SetSlideSpeed(1); err != nil {
		t.Errorf("SetSlideSpeed failed: %v", err)
	}

	// Speed 1 shifts every 6th tick
	for i := 0; i < 6; i++ {
		r.Tick()
	}
	if got := r.Spectrogram().ShiftCount(); got != 1 {
		t.Errorf("Expected 1 shift at speed 1 after 6 ticks, got %d", got)
	}
}

func TestRendererStartStop(t *testing.T) {
	config := testConfig()
	config.TickInterval = time.Millisecond

	r, err := NewRenderer(config, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	r.Start()

	deadline := time.After(time.Second)
	for r.Spectrogram().ShiftCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Tick loop never shifted")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	r.Stop()
	stats := r.GetStats()
	if stats.Running {
		t.Error("Expected renderer stopped")
	}
	if stats.SpectrogramShifts != stats.HeatmapShifts {
		t.Errorf("Lockstep violated: %d vs %d", stats.SpectrogramShifts, stats.HeatmapShifts)
	}
}

func TestRendererSetPromptsDuringTicks(t *testing.T) {
	config := testConfig()
	config.SlideSpeed = 4

	r, err := NewRenderer(config, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	// Prompt swaps racing the tick loop must not lose the in-flight shift
	// when the rebuilt heatmap copies the shift count over.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			prompts := []string{"speech", "music"}
			if i%2 == 1 {
				prompts = []string{"speech", "music", "thunder"}
			}
			if err := r.SetPrompts(prompts); err != nil {
				t.Errorf("SetPrompts failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		r.Tick()
	}
	<-done

	stats := r.GetStats()
	if stats.SpectrogramShifts != stats.HeatmapShifts {
		t.Errorf("Lockstep violated across prompt swaps: %d vs %d",
			stats.SpectrogramShifts, stats.HeatmapShifts)
	}
	if stats.SpectrogramShifts != 500 {
		t.Errorf("Expected 500 shifts at speed 4, got %d", stats.SpectrogramShifts)
	}
}
