package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/menta2k/palmscan/internal/testutil"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/types"
)

var labels = []string{"Healthy", "CaterpillarInfestation", "LeafSpot"}

func TestClassify(t *testing.T) {
	inv := testutil.NewMockInvoker(0.9, 0.05, 0.05)
	p := New(processing.NewProcessor(224), inv, labels)

	result, err := p.Classify(context.Background(), processing.NewStaticFrame(testutil.CreateTestImage(320, 240)))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if result.TopLabel != "Healthy" || result.TopConfidence != 0.9 {
		t.Errorf("Expected Healthy/0.9, got %s/%f", result.TopLabel, result.TopConfidence)
	}
	if inv.CallCount != 1 {
		t.Errorf("Expected one invocation, got %d", inv.CallCount)
	}
	if len(inv.LastTensor.Data) != 224*224*3 {
		t.Errorf("Expected quantized tensor of %d bytes, got %d", 224*224*3, len(inv.LastTensor.Data))
	}
}

func TestClassifyFloatInput(t *testing.T) {
	inv := testutil.NewMockInvoker(0.1, 0.2, 0.7)
	inv.In = types.Float
	p := New(processing.NewProcessor(224), inv, labels)

	result, err := p.Classify(context.Background(), processing.NewStaticFrame(testutil.CreateTestImage(100, 100)))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.TopLabel != "LeafSpot" {
		t.Errorf("Expected LeafSpot, got %s", result.TopLabel)
	}
	if len(inv.LastTensor.Data) != 224*224*3*4 {
		t.Errorf("Expected float tensor of %d bytes, got %d", 224*224*3*4, len(inv.LastTensor.Data))
	}
}

func TestClassifyQuantizedOutput(t *testing.T) {
	inv := testutil.NewMockInvoker(0.2, 0.6, 0.2)
	inv.Out = types.Quantized
	p := New(processing.NewProcessor(64), inv, labels)

	result, err := p.Classify(context.Background(), processing.NewStaticFrame(testutil.CreateTestImage(100, 100)))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.TopLabel != "CaterpillarInfestation" {
		t.Errorf("Expected CaterpillarInfestation, got %s", result.TopLabel)
	}
}

func TestInferWrapsInvokerErrors(t *testing.T) {
	inv := testutil.NewMockInvoker()
	inv.Err = errors.New("delegate crashed")
	p := New(processing.NewProcessor(32), inv, labels)

	_, err := p.Classify(context.Background(), processing.NewStaticFrame(testutil.CreateTestImage(50, 50)))
	if !errors.Is(err, types.ErrInferenceFailed) {
		t.Errorf("Expected ErrInferenceFailed, got %v", err)
	}
}

func TestInferLabelMismatch(t *testing.T) {
	inv := testutil.NewMockInvoker(0.5, 0.5)
	p := New(processing.NewProcessor(32), inv, labels)

	_, err := p.Classify(context.Background(), processing.NewStaticFrame(testutil.CreateTestImage(50, 50)))
	if !errors.Is(err, types.ErrLabelMismatch) {
		t.Errorf("Expected ErrLabelMismatch, got %v", err)
	}
}

func TestUnavailableFrameSkipsInference(t *testing.T) {
	inv := testutil.NewMockInvoker(0.9, 0.05, 0.05)
	p := New(processing.NewProcessor(224), inv, labels)

	frame := processing.FrameFunc(func() (image.Image, error) {
		return nil, errors.New("camera closed")
	})

	_, err := p.Classify(context.Background(), frame)
	if !errors.Is(err, types.ErrImageUnavailable) {
		t.Errorf("Expected ErrImageUnavailable, got %v", err)
	}
	if inv.CallCount != 0 {
		t.Errorf("Expected no invocation, got %d", inv.CallCount)
	}
}
