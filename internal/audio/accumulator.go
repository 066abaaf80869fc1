package audio

import (
	"fmt"
	"sync"
	"time"
)

// Frame is one small PCM chunk delivered by a capture callback.
// Frames are ephemeral: the accumulator copies nothing beyond the slice
// reference, so callers must not mutate Samples after Append.
type Frame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// Accumulator merges small push-based capture frames into one analysis
// window. Append runs on the capture callback context and Drain on the
// session's processing context; a single mutex keeps the two atomic with
// respect to each other so no samples are lost or duplicated.
type Accumulator struct {
	sourceRate int

	// Window data
	frames      [][]float32
	sampleCount int

	// Drain threshold, in samples. Recomputed from the window duration on
	// SetWindowDuration; takes effect on the next window only.
	targetSamples int

	// Statistics
	framesAppended uint64
	windowsDrained uint64
	lastAppend     time.Time

	mu sync.Mutex
}

// AccumulatorStats represents accumulator statistics for monitoring
type AccumulatorStats struct {
	SourceRate     int       `json:"source_rate"`
	BufferedSample int       `json:"buffered_samples"`
	TargetSamples  int       `json:"target_samples"`
	FramesAppended uint64    `json:"frames_appended"`
	WindowsDrained uint64    `json:"windows_drained"`
	LastAppend     time.Time `json:"last_append"`
}

// NewAccumulator creates an accumulator for a capture source running at
// sourceRate, draining once windowDuration of audio has been collected.
func NewAccumulator(sourceRate int, windowDuration time.Duration) (*Accumulator, error) {
	if sourceRate <= 0 {
		return nil, fmt.Errorf("source rate must be positive, got %d", sourceRate)
	}

	if windowDuration <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %v", windowDuration)
	}

	return &Accumulator{
		sourceRate:    sourceRate,
		targetSamples: samplesFor(sourceRate, windowDuration),
	}, nil
}

func samplesFor(rate int, d time.Duration) int {
	return int(float64(rate) * d.Seconds())
}

// Append pushes one capture frame and updates the running sample count.
// It returns true when the accumulated samples have reached the window
// threshold and the caller should drain.
func (a *Accumulator) Append(frame Frame) (bool, error) {
	if frame.SampleRate != a.sourceRate {
		return false, fmt.Errorf("frame rate %d does not match source rate %d",
			frame.SampleRate, a.sourceRate)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(frame.Samples) == 0 {
		return a.sampleCount >= a.targetSamples, nil
	}

	a.frames = append(a.frames, frame.Samples)
	a.sampleCount += len(frame.Samples)
	a.framesAppended++
	a.lastAppend = time.Now()

	return a.sampleCount >= a.targetSamples, nil
}

// Drain concatenates all buffered frames into one contiguous buffer and
// resets the accumulator to empty. The concatenate-and-clear is atomic with
// respect to concurrent Append calls. Returns nil for an empty window.
func (a *Accumulator) Drain() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sampleCount == 0 {
		return nil
	}

	out := make([]float32, 0, a.sampleCount)
	for _, f := range a.frames {
		out = append(out, f...)
	}

	a.frames = nil
	a.sampleCount = 0
	a.windowsDrained++

	return out
}

// Reset discards all buffered audio without producing a window. Used on
// session stop so a paused interval is never classified late.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frames = nil
	a.sampleCount = 0
}

// SetWindowDuration updates the drain threshold. The change applies to the
// next window only: audio already buffered keeps counting toward whichever
// threshold is current when Append checks it.
func (a *Accumulator) SetWindowDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("window duration must be positive, got %v", d)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.targetSamples = samplesFor(a.sourceRate, d)
	return nil
}

// SourceRate returns the capture source sample rate
func (a *Accumulator) SourceRate() int {
	return a.sourceRate
}

// BufferedSamples returns the current number of buffered samples
func (a *Accumulator) BufferedSamples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleCount
}

// TargetSamples returns the current drain threshold in samples
func (a *Accumulator) TargetSamples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetSamples
}

// GetStats returns current accumulator statistics
func (a *Accumulator) GetStats() AccumulatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AccumulatorStats{
		SourceRate:     a.sourceRate,
		BufferedSample: a.sampleCount,
		TargetSamples:  a.targetSamples,
		FramesAppended: a.framesAppended,
		WindowsDrained: a.windowsDrained,
		LastAppend:     a.lastAppend,
	}
}
