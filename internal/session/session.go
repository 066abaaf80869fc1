package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KanuToCL/SonoTag-sub000/internal/audio"
	"github.com/KanuToCL/SonoTag-sub000/internal/classify"
	"github.com/KanuToCL/SonoTag-sub000/internal/config"
	"github.com/KanuToCL/SonoTag-sub000/internal/metrics"
	"github.com/KanuToCL/SonoTag-sub000/internal/render"
	"github.com/KanuToCL/SonoTag-sub000/internal/score"
)

// Session state
type sessionState int

const (
	stateActive sessionState = iota
	stateStopped
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateStopped:
		return "stopped"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrSessionStopped is returned for operations on a stopped or failed session
var ErrSessionStopped = errors.New("session stopped")

// EventSink receives a session's outbound events. Implemented by the
// WebSocket connection layer; handlers must not block.
type EventSink interface {
	// OnColumns delivers the freshly painted column of each surface after a shift
	OnColumns(spectral, heatmap []float64)
	// OnScores delivers a normalized score set with its ranked label panel
	OnScores(display *score.DisplayScoreSet, ranked []score.RankedScore, latency time.Duration)
	// OnError delivers a transient, user-visible error message
	OnError(message string)
}

// ConfigUpdate carries hot-reconfigurable session parameters. Nil fields are
// left unchanged. Changes take effect on the next window or tick, never
// retroactively.
type ConfigUpdate struct {
	WindowSeconds *float64 `json:"window_seconds,omitempty"`
	SlideSpeed    *int     `json:"slide_speed,omitempty"`
	Normalizer    *string  `json:"normalizer,omitempty"`
	Prompts       []string `json:"prompts,omitempty"`
}

// Session drives the pipeline for one capture source. Capture frames arrive
// on the transport's read goroutine, render ticks on the renderer's loop,
// and classification responses on the scheduler's worker; the accumulator
// and the state fields below are the synchronization points between them.
type Session struct {
	id         string
	sourceRate int
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sink       EventSink

	accumulator *audio.Accumulator
	packager    *audio.Packager
	extractor   *audio.SpectralExtractor
	scheduler   *classify.Scheduler
	renderer    *render.Renderer

	prompts        []string
	normalizer     score.Normalizer
	windowDuration time.Duration

	// Most recent capture frame, feeding the spectrogram column source
	latestFrame []float32
	frameMu     sync.Mutex

	state      sessionState
	createdAt  time.Time
	lastActive time.Time

	framesReceived   uint64
	windowsSubmitted uint64
	windowsSkipped   uint64
	lastRanked       []score.RankedScore

	// Heatmap shift count at the moment the in-flight window was
	// submitted. Single-flight, so one mark is enough.
	submitShiftMark uint64

	mu sync.Mutex
}

// SessionStats represents session statistics
type SessionStats struct {
	ID               string                  `json:"id"`
	State            string                  `json:"state"`
	SourceRate       int                     `json:"source_rate"`
	Prompts          []string                `json:"prompts"`
	WindowSeconds    float64                 `json:"window_seconds"`
	FramesReceived   uint64                  `json:"frames_received"`
	WindowsSubmitted uint64                  `json:"windows_submitted"`
	WindowsSkipped   uint64                  `json:"windows_skipped"`
	CreatedAt        time.Time               `json:"created_at"`
	LastActive       time.Time               `json:"last_active"`
	Accumulator      audio.AccumulatorStats  `json:"accumulator"`
	Scheduler        classify.SchedulerStats `json:"scheduler"`
	Renderer         render.RendererStats    `json:"renderer"`
	LastRanked       []score.RankedScore     `json:"last_ranked,omitempty"`
}

// NewSession builds the pipeline for one capture source. The session does
// not tick until Start is called.
func NewSession(id string, sourceRate int, prompts []string, cfg *config.Config, classifier classify.Classifier, sink EventSink, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	prompts = score.CanonicalizePrompts(prompts)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompt list cannot be empty")
	}
	if cfg.Model.MaxPrompts > 0 && len(prompts) > cfg.Model.MaxPrompts {
		return nil, fmt.Errorf("too many prompts: %d (max %d)", len(prompts), cfg.Model.MaxPrompts)
	}

	windowDuration := cfg.Audio.GetWindowDuration()

	accumulator, err := audio.NewAccumulator(sourceRate, windowDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create accumulator: %w", err)
	}

	packager, err := audio.NewPackager(audio.PackagerConfig{
		ModelSampleRate:    cfg.Model.SampleRate,
		ModelWindowSamples: cfg.Model.WindowSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create packager: %w", err)
	}

	extractor, err := audio.NewSpectralExtractor(audio.DefaultSpectralConfig(cfg.Display.SpectrogramBins))
	if err != nil {
		return nil, fmt.Errorf("failed to create spectral extractor: %w", err)
	}

	normalizer, err := score.NewNormalizer(cfg.Display.Normalizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:             id,
		sourceRate:     sourceRate,
		cfg:            cfg,
		logger:         logger.With(slog.String("session_id", id)),
		metrics:        m,
		sink:           sink,
		accumulator:    accumulator,
		packager:       packager,
		extractor:      extractor,
		prompts:        prompts,
		normalizer:     normalizer,
		windowDuration: windowDuration,
		state:          stateActive,
		createdAt:      time.Now(),
		lastActive:     time.Now(),
	}

	s.scheduler = classify.NewScheduler(classifier, classify.SchedulerConfig{
		Cooldown: cfg.Model.GetCooldownDuration(),
		Timeout:  cfg.Model.GetTimeoutDuration(),
	}, s.handleResult, s.handleError)

	s.renderer, err = render.NewRenderer(render.Config{
		Width:           cfg.Display.Width,
		SpectrogramBins: cfg.Display.SpectrogramBins,
		Prompts:         prompts,
		SlideSpeed:      cfg.Display.SlideSpeed,
		TickInterval:    cfg.Display.GetTickInterval(),
	}, s.spectralColumn, s.handleShift, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	return s, nil
}

// Start begins render ticking
func (s *Session) Start() {
	s.renderer.Start()
	s.logger.Info("Session started",
		slog.Int("source_rate", s.sourceRate),
		slog.Int("prompts", len(s.prompts)))
}

// PushFrame ingests one capture frame. When the accumulated audio reaches
// the window threshold the window is drained, packaged, and submitted; a
// window arriving while a request is in flight or inside the cooldown is
// discarded, and accumulation starts over.
func (s *Session) PushFrame(samples []float32) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.cfg.Audio.MaxFrameSamples > 0 && len(samples) > s.cfg.Audio.MaxFrameSamples {
		s.mu.Unlock()
		return fmt.Errorf("frame too large: %d samples (max %d)", len(samples), s.cfg.Audio.MaxFrameSamples)
	}
	s.framesReceived++
	s.lastActive = time.Now()
	prompts := s.prompts
	windowDuration := s.windowDuration
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFrame(len(samples))
	}

	s.frameMu.Lock()
	s.latestFrame = append(s.latestFrame[:0], samples...)
	s.frameMu.Unlock()

	full, err := s.accumulator.Append(audio.Frame{
		Samples:    samples,
		SampleRate: s.sourceRate,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to buffer frame: %w", err)
	}
	if !full {
		return nil
	}

	window := s.accumulator.Drain()
	if len(window) == 0 {
		return nil
	}

	packaged, err := s.packager.Package(window, s.sourceRate)
	if err != nil {
		return fmt.Errorf("failed to package window: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordWindowPackaged()
	}

	shiftMark := s.renderer.HeatmapShiftCount()
	err = s.scheduler.Submit(packaged.WAV, prompts)
	switch {
	case err == nil:
		s.mu.Lock()
		s.windowsSubmitted++
		s.submitShiftMark = shiftMark
		s.mu.Unlock()
		s.logger.Debug("Window submitted",
			slog.Int("raw_samples", len(window)),
			slog.Float64("window_seconds", windowDuration.Seconds()))
	case errors.Is(err, classify.ErrBusy), errors.Is(err, classify.ErrCooldown):
		s.mu.Lock()
		s.windowsSkipped++
		s.mu.Unlock()
		if s.metrics != nil {
			reason := "busy"
			if errors.Is(err, classify.ErrCooldown) {
				reason = "cooldown"
			}
			s.metrics.RecordWindowDropped(reason)
		}
		s.logger.Debug("Window discarded", slog.String("reason", err.Error()))
	case errors.Is(err, classify.ErrStopped):
		// Session teardown raced the drain, nothing to do
	default:
		return fmt.Errorf("failed to submit window: %w", err)
	}

	return nil
}

// spectralColumn feeds the renderer's newest spectrogram column from the
// most recent capture frame. Runs on the render tick goroutine only.
func (s *Session) spectralColumn() []float64 {
	s.frameMu.Lock()
	frame := make([]float32, len(s.latestFrame))
	copy(frame, s.latestFrame)
	s.frameMu.Unlock()

	if len(frame) == 0 {
		return nil
	}

	bins := s.extractor.Analyze(frame)
	out := make([]float64, len(bins))
	for i, v := range bins {
		out[i] = float64(v)
	}
	return out
}

func (s *Session) handleShift(spectral, heatmap []float64) {
	if s.metrics != nil {
		s.metrics.RenderShifts.Inc()
	}
	if s.sink != nil {
		s.sink.OnColumns(spectral, heatmap)
	}
}

func (s *Session) handleResult(scores *score.ScoreSet, latency time.Duration) {
	s.mu.Lock()
	normalizer := s.normalizer
	windowDuration := s.windowDuration
	shiftMark := s.submitShiftMark
	s.mu.Unlock()

	display := normalizer.Normalize(scores)
	if !s.renderer.ApplyScores(display) {
		return
	}
	if len(scores.FrameScores) > 0 {
		s.renderer.ApplyFrameScores(scores.FrameScores, windowDuration, shiftMark)
	}

	ranked := score.Rank(scores, display)
	s.mu.Lock()
	s.lastRanked = ranked
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordClassification("success", latency)
	}
	s.logger.Debug("Scores applied",
		slog.Duration("latency", latency),
		slog.String("normalizer", normalizer.Name()))

	if s.sink != nil {
		s.sink.OnScores(display, ranked, latency)
	}
}

func (s *Session) handleError(err error, latency time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordClassification("failure", latency)
	}

	// Model failures are transient: the session keeps scrolling and the
	// next window is an independent attempt.
	s.logger.Warn("Classification failed",
		slog.String("error", err.Error()),
		slog.Duration("latency", latency))

	if s.sink != nil {
		message := "classification failed"
		switch {
		case errors.Is(err, classify.ErrModelNotReady):
			message = "model is still loading"
		case errors.Is(err, classify.ErrDecode):
			message = "model returned a malformed response"
		case errors.Is(err, classify.ErrTransport):
			message = "could not reach the model"
		}
		s.sink.OnError(message)
	}
}

// Configure applies a hot parameter update. Each change takes effect on the
// next window or tick.
func (s *Session) Configure(update ConfigUpdate) error {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.mu.Unlock()

	if update.WindowSeconds != nil {
		seconds := *update.WindowSeconds
		if seconds < s.cfg.Audio.MinWindowSeconds || seconds > s.cfg.Audio.MaxWindowSeconds {
			return fmt.Errorf("window duration %.1fs out of range [%.1f, %.1f]",
				seconds, s.cfg.Audio.MinWindowSeconds, s.cfg.Audio.MaxWindowSeconds)
		}
		d := time.Duration(seconds * float64(time.Second))
		if err := s.accumulator.SetWindowDuration(d); err != nil {
			return fmt.Errorf("failed to set window duration: %w", err)
		}
		s.mu.Lock()
		s.windowDuration = d
		s.mu.Unlock()
	}

	if update.SlideSpeed != nil {
		if err := s.renderer.SetSlideSpeed(*update.SlideSpeed); err != nil {
			return err
		}
	}

	if update.Normalizer != nil {
		normalizer, err := score.NewNormalizer(*update.Normalizer)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.normalizer = normalizer
		s.mu.Unlock()
	}

	if len(update.Prompts) > 0 {
		prompts := score.CanonicalizePrompts(update.Prompts)
		if len(prompts) == 0 {
			return fmt.Errorf("prompt list cannot be empty")
		}
		if s.cfg.Model.MaxPrompts > 0 && len(prompts) > s.cfg.Model.MaxPrompts {
			return fmt.Errorf("too many prompts: %d (max %d)", len(prompts), s.cfg.Model.MaxPrompts)
		}
		if err := s.renderer.SetPrompts(prompts); err != nil {
			return err
		}
		s.mu.Lock()
		s.prompts = prompts
		s.lastRanked = nil
		s.mu.Unlock()
	}

	s.logger.Info("Session reconfigured")
	return nil
}

// Fail tears the session down after a fatal capture error. Accumulated audio
// is discarded, never classified late.
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return
	}
	s.state = stateFailed
	s.mu.Unlock()

	s.logger.Error("Session failed", slog.String("reason", reason))
	if s.sink != nil {
		s.sink.OnError(reason)
	}
	s.teardown()
}

// Stop ends the session. In-flight classification responses are discarded
// and partially accumulated audio is dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	s.mu.Unlock()

	s.teardown()
	s.logger.Info("Session stopped")
}

func (s *Session) teardown() {
	s.scheduler.Stop()
	s.renderer.Stop()
	s.accumulator.Reset()
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Active reports whether the session is still accepting frames
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// LastActive returns the time of the most recent capture frame
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Renderer exposes the session's render surfaces
func (s *Session) Renderer() *render.Renderer {
	return s.renderer
}

// GetStats returns current session statistics
func (s *Session) GetStats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := make([]score.RankedScore, len(s.lastRanked))
	copy(ranked, s.lastRanked)

	return SessionStats{
		ID:               s.id,
		State:            s.state.String(),
		SourceRate:       s.sourceRate,
		Prompts:          s.prompts,
		WindowSeconds:    s.windowDuration.Seconds(),
		FramesReceived:   s.framesReceived,
		WindowsSubmitted: s.windowsSubmitted,
		WindowsSkipped:   s.windowsSkipped,
		CreatedAt:        s.createdAt,
		LastActive:       s.lastActive,
		Accumulator:      s.accumulator.GetStats(),
		Scheduler:        s.scheduler.GetStats(),
		Renderer:         s.renderer.GetStats(),
		LastRanked:       ranked,
	}
}
