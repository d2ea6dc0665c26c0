package decoder

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/palmscan/pkg/types"
)

var testLabels = []string{"Healthy", "CaterpillarInfestation", "LeafSpot"}

func TestNormalizeQuantized(t *testing.T) {
	raw := &types.RawOutput{Bytes: []byte{0, 255, 51}}

	scores, err := Normalize(raw, types.Quantized)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := []float32{0, 1, 0.2}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("Score %d: expected %f, got %f", i, want[i], scores[i])
		}
	}
}

func TestNormalizeFloatPassThrough(t *testing.T) {
	raw := &types.RawOutput{Floats: []float32{0.9, 0.05, 0.05}}

	scores, err := Normalize(raw, types.Float)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if scores[0] != 0.9 {
		t.Errorf("Expected 0.9, got %f", scores[0])
	}

	scores[0] = 0
	if raw.Floats[0] != 0.9 {
		t.Error("Normalize must not alias the raw output")
	}
}

func TestNormalizeWrongEncoding(t *testing.T) {
	raw := &types.RawOutput{Floats: []float32{1}}

	if _, err := Normalize(raw, types.Quantized); !errors.Is(err, types.ErrInferenceFailed) {
		t.Errorf("Expected ErrInferenceFailed, got %v", err)
	}
}

func TestAlignMismatch(t *testing.T) {
	_, err := Align(testLabels, []float32{0.5, 0.5})
	if !errors.Is(err, types.ErrLabelMismatch) {
		t.Errorf("Expected ErrLabelMismatch, got %v", err)
	}
}

func TestDecodeArgmax(t *testing.T) {
	scores, _ := Align(testLabels, []float32{0.1, 0.7, 0.2})

	result, err := Decode(scores)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if result.TopLabel != "CaterpillarInfestation" {
		t.Errorf("Expected CaterpillarInfestation, got %s", result.TopLabel)
	}
	if result.TopConfidence != 0.7 {
		t.Errorf("Expected 0.7, got %f", result.TopConfidence)
	}
	if len(result.Predictions) != 3 || result.Predictions["LeafSpot"] != 0.2 {
		t.Errorf("Unexpected predictions %v", result.Predictions)
	}
}

func TestDecodeTieTakesLowestIndex(t *testing.T) {
	scores, _ := Align(testLabels, []float32{0.4, 0.4, 0.2})

	result, err := Decode(scores)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if result.TopLabel != "Healthy" {
		t.Errorf("Expected Healthy on tie, got %s", result.TopLabel)
	}
}

func TestDecodeSkipsNaN(t *testing.T) {
	nan := float32(math.NaN())
	scores, _ := Align(testLabels, []float32{nan, 0.9, 0.1})

	result, err := Decode(scores)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if result.TopLabel != "CaterpillarInfestation" {
		t.Errorf("Expected CaterpillarInfestation, got %s", result.TopLabel)
	}
	if result.TopConfidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %v", result.TopConfidence)
	}
}

func TestDecodeNoThreshold(t *testing.T) {
	scores, _ := Align(testLabels, []float32{0.01, 0.02, 0.03})

	result, err := Decode(scores)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if result.TopLabel != "LeafSpot" {
		t.Errorf("Expected LeafSpot, got %s", result.TopLabel)
	}
}

func TestDecodeRawQuantized(t *testing.T) {
	raw := &types.RawOutput{Bytes: []byte{230, 13, 12}}

	result, err := DecodeRaw(raw, types.Quantized, testLabels)
	if err != nil {
		t.Fatalf("DecodeRaw failed: %v", err)
	}
	if result.TopLabel != "Healthy" {
		t.Errorf("Expected Healthy, got %s", result.TopLabel)
	}
	if result.TopConfidence < 0.90 || result.TopConfidence > 0.91 {
		t.Errorf("Expected ~0.902, got %f", result.TopConfidence)
	}
}

func TestTopN(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}
	scores, _ := Align(labels, []float32{0.1, 0.3, 0.3, 0.3})
	result, _ := Decode(scores)

	top := TopN(result, 3)
	if len(top) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(top))
	}
	for i, want := range []string{"b", "c", "d"} {
		if top[i].Label != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, top[i].Label)
		}
	}

	if all := TopN(result, 0); len(all) != 4 {
		t.Errorf("Expected all 4 predictions, got %d", len(all))
	}

	if len(result.Scores) != 4 {
		t.Error("TopN must not truncate the result")
	}
}
