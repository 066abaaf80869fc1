package render

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/KanuToCL/SonoTag-sub000/internal/score"
)

// slideSkip maps slide speed 1-5 to a ticks-per-shift skip factor. Lower
// speeds shift on fewer ticks rather than by sub-pixel amounts.
var slideSkip = map[int]int{
	1: 6,
	2: 4,
	3: 2,
	4: 1,
	5: 1,
}

// SpectralSource provides the newest spectrogram column, one normalized
// intensity per frequency bucket. Called once per shift.
type SpectralSource func() []float64

// ShiftHandler observes each completed shift with the freshly painted
// spectrogram and heatmap columns
type ShiftHandler func(spectral []float64, heatmap []float64)

// Config contains renderer configuration
type Config struct {
	Width           int
	SpectrogramBins int
	Prompts         []string
	SlideSpeed      int
	TickInterval    time.Duration
}

// Renderer advances the spectrogram and heatmap surfaces in lockstep: both
// shift by the same column count on the same tick, whether or not new scores
// have arrived. Ticks either come from the internal loop started by Start or
// are driven externally through Tick.
type Renderer struct {
	config Config
	logger *slog.Logger

	spectrogram *Surface
	heatmap     *Surface

	source  SpectralSource
	onShift ShiftHandler

	// Snapshot cell holding the latest applied display scores. Replaced
	// whole on apply, read whole on each shift.
	current *score.DisplayScoreSet

	speed     int
	tickCount uint64

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu sync.Mutex
}

// RendererStats represents renderer statistics
type RendererStats struct {
	Running           bool   `json:"running"`
	SlideSpeed        int    `json:"slide_speed"`
	Ticks             uint64 `json:"ticks"`
	SpectrogramShifts uint64 `json:"spectrogram_shifts"`
	HeatmapShifts     uint64 `json:"heatmap_shifts"`
}

// NewRenderer creates a renderer with zeroed surfaces
func NewRenderer(config Config, source SpectralSource, onShift ShiftHandler, logger *slog.Logger) (*Renderer, error) {
	if _, ok := slideSkip[config.SlideSpeed]; !ok {
		return nil, fmt.Errorf("slide speed must be 1-5, got %d", config.SlideSpeed)
	}
	if len(config.Prompts) == 0 {
		return nil, fmt.Errorf("prompt list cannot be empty")
	}
	if config.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", config.TickInterval)
	}

	spectrogram, err := NewSurface(config.Width, config.SpectrogramBins)
	if err != nil {
		return nil, fmt.Errorf("failed to create spectrogram surface: %w", err)
	}

	heatmap, err := NewSurface(config.Width, len(config.Prompts))
	if err != nil {
		return nil, fmt.Errorf("failed to create heatmap surface: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Renderer{
		config:      config,
		logger:      logger,
		spectrogram: spectrogram,
		heatmap:     heatmap,
		source:      source,
		onShift:     onShift,
		speed:       config.SlideSpeed,
		stopChan:    make(chan struct{}),
	}, nil
}

// Start launches the internal tick loop
func (r *Renderer) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.tickLoop()

	r.logger.Debug("Renderer started",
		slog.Int("width", r.config.Width),
		slog.Int("slide_speed", r.speed))
}

// Stop halts the tick loop and waits for it to exit
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Renderer) tickLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick advances the renderer by one tick. Depending on the slide speed's
// skip factor the tick either shifts both surfaces by exactly one column or
// shifts neither. Returns whether a shift happened.
func (r *Renderer) Tick() bool {
	r.mu.Lock()

	r.tickCount++
	skip := slideSkip[r.speed]
	if r.tickCount%uint64(skip) != 0 {
		r.mu.Unlock()
		return false
	}

	source := r.source
	onShift := r.onShift
	current := r.current
	prompts := r.config.Prompts
	bins := r.spectrogram.Height()
	r.mu.Unlock()

	// The spectral source runs outside the lock; it may do FFT work.
	spectralCol := make([]float64, bins)
	if source != nil {
		copy(spectralCol, source())
	}

	// Heatmap paints the last known display scores, or zeros when no
	// classification has completed yet. The shift itself never waits for
	// scores.
	heatmapCol := make([]float64, len(prompts))
	if current != nil {
		for i, prompt := range prompts {
			heatmapCol[i] = current.Values[prompt]
		}
	}

	// Shifts happen under the lock so SetPrompts always observes a settled
	// shift count when it carries it to the rebuilt surface.
	r.mu.Lock()
	spectrogram := r.spectrogram
	heatmap := r.heatmap
	newest := spectrogram.Width() - 1
	spectrogram.ShiftLeft(1)
	spectrogram.PaintColumn(newest, spectralCol)
	heatmap.ShiftLeft(1)
	heatmap.PaintColumn(newest, heatmapCol)
	r.mu.Unlock()

	if onShift != nil {
		onShift(spectralCol, heatmapCol)
	}

	return true
}

// ApplyScores installs a display score set for subsequent heatmap columns.
// Sets older than the currently applied one (by submit timestamp) are
// rejected so the heatmap never regresses.
func (r *Renderer) ApplyScores(set *score.DisplayScoreSet) bool {
	if set == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && set.SubmittedAt.Before(r.current.SubmittedAt) {
		r.logger.Warn("Dropping out-of-order score set",
			slog.Time("submitted_at", set.SubmittedAt),
			slog.Time("current", r.current.SubmittedAt))
		return false
	}

	r.current = set
	return true
}

// ApplyFrameScores back-paints the heatmap columns covering a just-scored
// window with per-sub-frame values. shiftMark is the heatmap shift count
// captured when the window was submitted; the columns that scrolled during
// classification latency move the window that far left of the right edge.
// Sub-frame i of F lands on windowStart + round(i/F * windowWidth); columns
// already scrolled off the left edge are skipped.
func (r *Renderer) ApplyFrameScores(frameScores map[string][]float64, windowDuration time.Duration, shiftMark uint64) {
	if len(frameScores) == 0 {
		return
	}

	r.mu.Lock()
	prompts := r.config.Prompts
	skip := slideSkip[r.speed]
	heatmap := r.heatmap
	r.mu.Unlock()

	elapsed := 0
	if count := heatmap.ShiftCount(); count > shiftMark {
		elapsed = int(count - shiftMark)
	}

	shiftsPerSecond := float64(time.Second) / float64(r.config.TickInterval) / float64(skip)
	windowWidth := int(math.Round(windowDuration.Seconds() * shiftsPerSecond))
	if windowWidth <= 0 {
		return
	}
	if windowWidth > heatmap.Width() {
		windowWidth = heatmap.Width()
	}
	windowStart := heatmap.Width() - windowWidth - elapsed

	for row, prompt := range prompts {
		frames, ok := frameScores[prompt]
		if !ok || len(frames) == 0 {
			continue
		}

		total := len(frames)
		for i, value := range frames {
			col := windowStart + int(math.Round(float64(i)/float64(total)*float64(windowWidth)))
			if col < 0 {
				continue
			}
			if col >= heatmap.Width() {
				col = heatmap.Width() - 1
			}
			heatmap.SetCell(col, row, clamp01(value))
		}
	}
}

// HeatmapShiftCount returns the heatmap's lifetime shift count. Callers
// capture it when submitting a window and hand it back to ApplyFrameScores.
func (r *Renderer) HeatmapShiftCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heatmap.ShiftCount()
}

// SetPrompts replaces the heatmap's prompt rows. The heatmap surface is
// rebuilt zeroed at the new height; its shift count carries over so the
// lockstep accounting survives the swap. Takes effect on the next tick.
func (r *Renderer) SetPrompts(prompts []string) error {
	if len(prompts) == 0 {
		return fmt.Errorf("prompt list cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	heatmap, err := NewSurface(r.config.Width, len(prompts))
	if err != nil {
		return fmt.Errorf("failed to rebuild heatmap surface: %w", err)
	}
	heatmap.shifts = r.heatmap.ShiftCount()

	r.config.Prompts = prompts
	r.heatmap = heatmap
	r.current = nil
	return nil
}

// SetSlideSpeed changes the scroll speed, effective on the next tick
func (r *Renderer) SetSlideSpeed(speed int) error {
	if _, ok := slideSkip[speed]; !ok {
		return fmt.Errorf("slide speed must be 1-5, got %d", speed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.speed = speed
	return nil
}

// Spectrogram returns the spectrogram surface
func (r *Renderer) Spectrogram() *Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spectrogram
}

// Heatmap returns the heatmap surface
func (r *Renderer) Heatmap() *Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heatmap
}

// CurrentScores returns the latest applied display score set, or nil
func (r *Renderer) CurrentScores() *score.DisplayScoreSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// GetStats returns current renderer statistics
func (r *Renderer) GetStats() RendererStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RendererStats{
		Running:           r.running,
		SlideSpeed:        r.speed,
		Ticks:             r.tickCount,
		SpectrogramShifts: r.spectrogram.ShiftCount(),
		HeatmapShifts:     r.heatmap.ShiftCount(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
