package audio

import (
	"fmt"
	"math"
)

// SpectralConfig controls spectral column extraction parameters
type SpectralConfig struct {
	FFTSize int // power-of-2 analysis length (default 2048)
	Bins    int // output frequency buckets per column
	FloorDB float64
	CeilDB  float64
}

// DefaultSpectralConfig returns parameters suitable for a visual spectrogram
// column at 60-ish Hz tick rates.
func DefaultSpectralConfig(bins int) SpectralConfig {
	return SpectralConfig{
		FFTSize: 2048,
		Bins:    bins,
		FloorDB: -80,
		CeilDB:  0,
	}
}

// SpectralExtractor turns a span of recent PCM samples into one column of
// per-frequency-bucket intensities in [0, 1] for the spectrogram surface.
type SpectralExtractor struct {
	cfg    SpectralConfig
	window []float64 // Hann window

	// Scratch buffers reused across calls. Analyze is called once per render
	// tick from a single goroutine; the extractor is not safe for concurrent
	// use.
	re []float64
	im []float64
}

// NewSpectralExtractor creates an extractor with the given config
func NewSpectralExtractor(cfg SpectralConfig) (*SpectralExtractor, error) {
	if cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}

	if cfg.Bins < 1 || cfg.Bins > cfg.FFTSize/2 {
		return nil, fmt.Errorf("bins must be between 1 and %d, got %d", cfg.FFTSize/2, cfg.Bins)
	}

	if cfg.CeilDB <= cfg.FloorDB {
		return nil, fmt.Errorf("ceil_db (%f) must be greater than floor_db (%f)", cfg.CeilDB, cfg.FloorDB)
	}

	return &SpectralExtractor{
		cfg:    cfg,
		window: hannWindow(cfg.FFTSize),
		re:     make([]float64, cfg.FFTSize),
		im:     make([]float64, cfg.FFTSize),
	}, nil
}

// Bins returns the number of frequency buckets per column
func (e *SpectralExtractor) Bins() int {
	return e.cfg.Bins
}

// Analyze computes one spectrogram column from the most recent samples.
// Inputs shorter than the FFT size are zero-padded at the front; longer
// inputs use their tail. The result has length Bins, ordered low frequency
// first, each value in [0, 1].
func (e *SpectralExtractor) Analyze(samples []float32) []float32 {
	n := e.cfg.FFTSize

	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}

	pad := n - len(samples)
	for i := 0; i < pad; i++ {
		e.re[i] = 0
		e.im[i] = 0
	}
	for i, s := range samples {
		e.re[pad+i] = float64(s) * e.window[pad+i]
		e.im[pad+i] = 0
	}

	fft(e.re, e.im)

	// Average the power spectrum half into output buckets, then map log
	// magnitude onto [0, 1] between the configured dB floor and ceiling.
	half := n / 2
	perBucket := half / e.cfg.Bins
	if perBucket < 1 {
		perBucket = 1
	}

	dbRange := e.cfg.CeilDB - e.cfg.FloorDB
	column := make([]float32, e.cfg.Bins)

	for b := 0; b < e.cfg.Bins; b++ {
		start := b * perBucket
		end := start + perBucket
		if end > half {
			end = half
		}

		sum := 0.0
		for k := start; k < end; k++ {
			sum += e.re[k]*e.re[k] + e.im[k]*e.im[k]
		}
		power := sum / float64(end-start)

		if power < 1e-12 {
			power = 1e-12
		}
		db := 10 * math.Log10(power)

		v := (db - e.cfg.FloorDB) / dbRange
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		column[b] = float32(v)
	}

	return column
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// fft performs an in-place radix-2 Cooley-Tukey FFT.
// re and im must have the same power-of-2 length.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	// Cooley-Tukey butterfly
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2.0 * math.Pi / float64(size)
		wR := math.Cos(angle)
		wI := math.Sin(angle)

		for start := 0; start < n; start += size {
			tR, tI := 1.0, 0.0
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half

				tmpR := tR*re[v] - tI*im[v]
				tmpI := tR*im[v] + tI*re[v]

				re[v] = re[u] - tmpR
				im[v] = im[u] - tmpI
				re[u] += tmpR
				im[u] += tmpI

				tR, tI = tR*wR-tI*wI, tR*wI+tI*wR
			}
		}
	}
}
