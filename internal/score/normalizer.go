package score

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ScoreSet holds one classification result: raw per-prompt similarity scores
// (which can be negative) tagged with the submit timestamp of the request
// that produced them. Immutable once built.
type ScoreSet struct {
	Prompts     []string           // canonical prompt order
	Raw         map[string]float64 // prompt -> raw similarity
	FrameScores map[string][]float64
	SubmittedAt time.Time
}

// DisplayScoreSet is a ScoreSet passed through a normalization strategy:
// every value bounded to [0, 1], same canonical prompt order. Transient and
// recomputable at any time.
type DisplayScoreSet struct {
	Prompts     []string
	Values      map[string]float64
	SubmittedAt time.Time
}

// RankedScore pairs one prompt with its display value, for the sorted label
// panel. Ranking never affects heatmap row order.
type RankedScore struct {
	Prompt string  `json:"prompt"`
	Value  float64 `json:"value"`
	Raw    float64 `json:"raw"`
}

// Normalizer is a pure transform from raw scores to display intensities.
// Implementations are idempotent and side-effect free, safe to call every
// render tick whether or not the underlying ScoreSet changed.
type Normalizer interface {
	Name() string
	Normalize(set *ScoreSet) *DisplayScoreSet
}

// ClampNormalizer maps raw scores through max(0, min(1, raw)). This matches
// the model's documented similarity convention; negative correlation
// flattens to zero.
type ClampNormalizer struct{}

// Name returns the strategy identifier
func (ClampNormalizer) Name() string { return "clamp" }

// Normalize applies the clamp transform
func (ClampNormalizer) Normalize(set *ScoreSet) *DisplayScoreSet {
	values := make(map[string]float64, len(set.Prompts))
	for _, p := range set.Prompts {
		values[p] = clamp01(set.Raw[p])
	}
	return &DisplayScoreSet{
		Prompts:     set.Prompts,
		Values:      values,
		SubmittedAt: set.SubmittedAt,
	}
}

// RelativeNormalizer min-max scales raw scores over the current set:
// (raw - min) / (max - min). When every score is equal the transform maps
// all prompts to 0.5, avoiding a divide by zero.
type RelativeNormalizer struct{}

// Name returns the strategy identifier
func (RelativeNormalizer) Name() string { return "relative" }

// Normalize applies the min-max transform
func (RelativeNormalizer) Normalize(set *ScoreSet) *DisplayScoreSet {
	values := make(map[string]float64, len(set.Prompts))

	if len(set.Prompts) > 0 {
		min, max := set.Raw[set.Prompts[0]], set.Raw[set.Prompts[0]]
		for _, p := range set.Prompts[1:] {
			v := set.Raw[p]
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}

		if max == min {
			for _, p := range set.Prompts {
				values[p] = 0.5
			}
		} else {
			span := max - min
			for _, p := range set.Prompts {
				values[p] = (set.Raw[p] - min) / span
			}
		}
	}

	return &DisplayScoreSet{
		Prompts:     set.Prompts,
		Values:      values,
		SubmittedAt: set.SubmittedAt,
	}
}

// NewNormalizer returns the strategy registered under name
func NewNormalizer(name string) (Normalizer, error) {
	switch name {
	case "clamp":
		return ClampNormalizer{}, nil
	case "relative":
		return RelativeNormalizer{}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer '%s'", name)
	}
}

// Rank returns display scores sorted best-first for the label panel. The
// returned slice is a copy; the heatmap keeps canonical prompt order.
func Rank(set *ScoreSet, display *DisplayScoreSet) []RankedScore {
	ranked := make([]RankedScore, 0, len(display.Prompts))
	for _, p := range display.Prompts {
		ranked = append(ranked, RankedScore{
			Prompt: p,
			Value:  display.Values[p],
			Raw:    set.Raw[p],
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})

	return ranked
}

// CanonicalizePrompts trims whitespace, drops empties, and collapses
// case-insensitive duplicates while preserving first-seen order. This runs
// before prompts reach the pipeline so every downstream component sees one
// fixed, duplicate-free order.
func CanonicalizePrompts(prompts []string) []string {
	seen := make(map[string]bool, len(prompts))
	out := make([]string, 0, len(prompts))

	for _, p := range prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}

	return out
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
