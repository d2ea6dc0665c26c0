// Package decoder turns raw model output into a classification result.
package decoder

import (
	"fmt"
	"math"
	"sort"

	"github.com/menta2k/palmscan/pkg/types"
)

// Normalize converts raw output into scores in [0,1]. Quantized bytes are
// divided by 255; float outputs pass through unchanged.
func Normalize(raw *types.RawOutput, enc types.Encoding) ([]float32, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty model output", types.ErrInferenceFailed)
	}

	switch enc {
	case types.Quantized:
		if raw.Bytes == nil {
			return nil, fmt.Errorf("%w: expected quantized output", types.ErrInferenceFailed)
		}
		scores := make([]float32, len(raw.Bytes))
		for i, b := range raw.Bytes {
			scores[i] = float32(b) / 255.0
		}
		return scores, nil
	case types.Float:
		if raw.Floats == nil {
			return nil, fmt.Errorf("%w: expected float output", types.ErrInferenceFailed)
		}
		return append([]float32(nil), raw.Floats...), nil
	default:
		return nil, fmt.Errorf("unsupported output encoding %v", enc)
	}
}

// Align pairs each score with the label at the same index
func Align(labels []string, scores []float32) (types.ClassScores, error) {
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("%w: %d labels, %d scores", types.ErrLabelMismatch, len(labels), len(scores))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", types.ErrLabelMismatch)
	}

	out := make(types.ClassScores, len(labels))
	for i, label := range labels {
		out[i] = types.ClassScore{Label: label, Score: scores[i]}
	}
	return out, nil
}

// Decode picks the highest score. On ties the lowest index wins, and no
// confidence threshold is applied.
func Decode(scores types.ClassScores) (*types.ClassificationResult, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: no scores", types.ErrLabelMismatch)
	}

	best := 0
	predictions := make(map[string]float32, len(scores))
	for i, s := range scores {
		predictions[s.Label] = s.Score
		if higher(s.Score, scores[best].Score) {
			best = i
		}
	}

	return &types.ClassificationResult{
		TopLabel:      scores[best].Label,
		TopConfidence: scores[best].Score,
		Predictions:   predictions,
		Scores:        append(types.ClassScores(nil), scores...),
	}, nil
}

// higher orders NaN below every number
func higher(a, b float32) bool {
	if math.IsNaN(float64(b)) {
		return !math.IsNaN(float64(a))
	}
	return a > b
}

// DecodeRaw runs Normalize, Align and Decode in sequence
func DecodeRaw(raw *types.RawOutput, enc types.Encoding, labels []string) (*types.ClassificationResult, error) {
	scores, err := Normalize(raw, enc)
	if err != nil {
		return nil, err
	}
	aligned, err := Align(labels, scores)
	if err != nil {
		return nil, err
	}
	return Decode(aligned)
}

// TopN returns up to n predictions sorted by descending confidence, keeping
// label order among equal scores. n <= 0 returns all of them.
func TopN(result *types.ClassificationResult, n int) []types.Prediction {
	if result == nil {
		return nil
	}

	preds := make([]types.Prediction, 0, len(result.Scores))
	for _, s := range result.Scores {
		preds = append(preds, types.Prediction{Label: s.Label, Confidence: s.Score})
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	if n > 0 && n < len(preds) {
		preds = preds[:n]
	}
	return preds
}
