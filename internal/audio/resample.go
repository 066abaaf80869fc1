package audio

import (
	"fmt"
	"math"
)

// Resample converts PCM samples from srcRate to dstRate using linear
// interpolation. The output length is round(len(in) * dstRate / srcRate);
// the last output sample clamps its source index to the input bound.
//
// No anti-aliasing filter is applied, so downsampling aliases high
// frequencies. That is acceptable for coarse classification input, not for
// listening-quality audio.
func Resample(in []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got src=%d dst=%d", srcRate, dstRate)
	}

	// Identity fast path
	if srcRate == dstRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}

	if len(in) == 0 {
		return []float32{}, nil
	}

	outLen := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	if outLen == 0 {
		return []float32{}, nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		if idx >= len(in)-1 {
			// Clamp to the input bound
			out[i] = in[len(in)-1]
			continue
		}

		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}

	return out, nil
}
