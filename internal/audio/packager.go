package audio

import (
	"fmt"
)

// PackagerConfig contains window packaging parameters
type PackagerConfig struct {
	ModelSampleRate    int // rate the model requires
	ModelWindowSamples int // exact input length the model requires
}

// Packager normalizes a drained capture window to the model's required
// fixed-length input: resample to the model rate, then tile or truncate to
// exactly ModelWindowSamples, then encode to the WAV container the model
// consumes.
type Packager struct {
	config PackagerConfig
}

// PackagedWindow is a model-ready classification input. Immutable once built.
type PackagedWindow struct {
	Samples    []float32 // exactly ModelWindowSamples long
	SampleRate int
	WAV        []byte // mono 16-bit PCM container
}

// NewPackager creates a window packager for the given model requirements
func NewPackager(config PackagerConfig) (*Packager, error) {
	if config.ModelSampleRate <= 0 {
		return nil, fmt.Errorf("model sample rate must be positive, got %d", config.ModelSampleRate)
	}

	if config.ModelWindowSamples <= 0 {
		return nil, fmt.Errorf("model window samples must be positive, got %d", config.ModelWindowSamples)
	}

	return &Packager{config: config}, nil
}

// Package converts a drained window at sourceRate into a model-ready input.
// Short windows are tiled cyclically rather than zero-padded so signal energy
// is preserved; long windows keep their most recent samples.
func (p *Packager) Package(window []float32, sourceRate int) (*PackagedWindow, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("cannot package an empty window")
	}

	resampled, err := Resample(window, sourceRate, p.config.ModelSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to resample window: %w", err)
	}

	if len(resampled) == 0 {
		return nil, fmt.Errorf("resampling produced no samples from %d input samples", len(window))
	}

	fitted := fitToLength(resampled, p.config.ModelWindowSamples)

	wav, err := EncodeWAVFloat32(fitted, p.config.ModelSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode window: %w", err)
	}

	return &PackagedWindow{
		Samples:    fitted,
		SampleRate: p.config.ModelSampleRate,
		WAV:        wav,
	}, nil
}

// fitToLength returns a buffer of exactly n samples: the last n samples when
// the input is longer, or the input tiled cyclically when it is shorter.
func fitToLength(in []float32, n int) []float32 {
	if len(in) == n {
		out := make([]float32, n)
		copy(out, in)
		return out
	}

	if len(in) > n {
		// Keep the most recent n samples
		out := make([]float32, n)
		copy(out, in[len(in)-n:])
		return out
	}

	// Tile cyclically: out[i] = in[i mod len(in)]
	out := make([]float32, n)
	for i := range out {
		out[i] = in[i%len(in)]
	}
	return out
}
