package scoring

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/menta2k/palmscan/internal/testutil"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/tensor"
	"github.com/menta2k/palmscan/pkg/types"
)

var labels = []string{"Healthy_Leaves", "CCI_Caterpillars", "WCLWD_Yellowing"}

func testTensor(t *testing.T) *types.InputTensor {
	t.Helper()
	p := processing.NewProcessor(32)
	buf, err := p.Normalize(processing.NewStaticFrame(testutil.CreateTestImage(64, 48)))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	in, err := tensor.Encode(buf, types.Quantized)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return in
}

func TestInvokeAlignsScores(t *testing.T) {
	mock := &testutil.MockVisionClient{
		SimpleQueryFunc: func(ctx context.Context, model, prompt, imgB64 string) (string, error) {
			return "```json\n{\"scores\": {\"wclwd yellowing\": 0.7, \"healthy_leaves\": \"20%\", \"CCI-Caterpillars\": 0.1,}}\n```", nil
		},
	}

	inv := NewInvoker(mock, "llava", labels)
	out, err := inv.Invoke(context.Background(), testTensor(t))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	want := []float32{0.2, 0.1, 0.7}
	for i := range want {
		if out.Floats[i] != want[i] {
			t.Errorf("Score %d: expected %f, got %f", i, want[i], out.Floats[i])
		}
	}

	if mock.CallCount != 1 {
		t.Errorf("Expected one model call, got %d", mock.CallCount)
	}
	if mock.LastModel != "llava" {
		t.Errorf("Expected model llava, got %s", mock.LastModel)
	}
	for _, l := range labels {
		if !strings.Contains(mock.LastPrompt, l) {
			t.Errorf("Prompt is missing label %s", l)
		}
	}

	img, err := base64.StdEncoding.DecodeString(mock.LastImage)
	if err != nil {
		t.Fatalf("Image is not base64: %v", err)
	}
	decoded, err := processing.DecodeBytes(img)
	if err != nil {
		t.Fatalf("Image does not decode: %v", err)
	}
	if decoded.Bounds().Dx() != 32 {
		t.Errorf("Expected 32px image, got %d", decoded.Bounds().Dx())
	}
}

func TestInvokeMissingLabelsScoreZero(t *testing.T) {
	mock := &testutil.MockVisionClient{
		SimpleQueryFunc: func(ctx context.Context, model, prompt, imgB64 string) (string, error) {
			return `{"scores": {"CCI_Caterpillars": 1.4}}`, nil
		},
	}

	out, err := NewInvoker(mock, "m", labels).Invoke(context.Background(), testTensor(t))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Floats[0] != 0 || out.Floats[1] != 1 || out.Floats[2] != 0 {
		t.Errorf("Unexpected scores %v", out.Floats)
	}
}

func TestInvokePropagatesClientError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &testutil.MockVisionClient{
		SimpleQueryFunc: func(ctx context.Context, model, prompt, imgB64 string) (string, error) {
			return "", boom
		},
	}

	_, err := NewInvoker(mock, "m", labels).Invoke(context.Background(), testTensor(t))
	if !errors.Is(err, boom) {
		t.Errorf("Expected client error, got %v", err)
	}
}

func TestParseScoresRejectsProse(t *testing.T) {
	if _, err := ParseScores("The leaf looks healthy.", labels); err == nil {
		t.Error("Expected error for non-JSON reply")
	}
	if _, err := ParseScores(`{"label": "healthy"}`, labels); err == nil {
		t.Error("Expected error for reply without scores")
	}
	if _, err := ParseScores(`{"scores": {"Healthy_Leaves": "high"}}`, labels); err == nil {
		t.Error("Expected error for non-numeric score")
	}
}

func TestEncodings(t *testing.T) {
	inv := NewInvoker(&testutil.MockVisionClient{}, "m", labels)
	if inv.InputEncoding() != types.Quantized || inv.OutputEncoding() != types.Float {
		t.Errorf("Unexpected encodings %v/%v", inv.InputEncoding(), inv.OutputEncoding())
	}
}
