package testutil

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/menta2k/palmscan/pkg/types"
)

// MockVisionClient is a mock implementation of client.VisionClient
type MockVisionClient struct {
	SimpleQueryFunc func(ctx context.Context, model, prompt, imgB64 string) (string, error)

	mu         sync.Mutex
	CallCount  int
	LastModel  string
	LastPrompt string
	LastImage  string
}

func (m *MockVisionClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastModel, m.LastPrompt, m.LastImage = model, prompt, imgB64
	m.mu.Unlock()

	if m.SimpleQueryFunc != nil {
		return m.SimpleQueryFunc(ctx, model, prompt, imgB64)
	}
	return `{"scores": {}}`, nil
}

// MockInvoker is a mock implementation of client.Invoker returning fixed
// float scores
type MockInvoker struct {
	In, Out    types.Encoding
	Scores     []float32
	Err        error
	InvokeFunc func(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error)

	mu         sync.Mutex
	CallCount  int
	LastTensor *types.InputTensor
}

// NewMockInvoker returns an invoker producing the given float scores
func NewMockInvoker(scores ...float32) *MockInvoker {
	return &MockInvoker{In: types.Quantized, Out: types.Float, Scores: scores}
}

func (m *MockInvoker) InputEncoding() types.Encoding  { return m.In }
func (m *MockInvoker) OutputEncoding() types.Encoding { return m.Out }

func (m *MockInvoker) Invoke(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastTensor = in
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, in)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Out == types.Quantized {
		out := make([]byte, len(m.Scores))
		for i, s := range m.Scores {
			out[i] = byte(s*255 + 0.5)
		}
		return &types.RawOutput{Bytes: out}, nil
	}
	return &types.RawOutput{Floats: append([]float32(nil), m.Scores...)}, nil
}

// Calls returns the number of Invoke calls so far
func (m *MockInvoker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockRecordStore is a mock implementation of client.RecordStore
type MockRecordStore struct {
	UploadFunc func(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error)
	Fail       bool

	mu        sync.Mutex
	CallCount int
	Records   []*types.UploadRecord
}

// ErrStoreDown is returned by a failing MockRecordStore
var ErrStoreDown = errors.New("store unavailable")

func (m *MockRecordStore) Upload(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error) {
	m.mu.Lock()
	m.CallCount++
	m.Records = append(m.Records, record)
	fail := m.Fail
	m.mu.Unlock()

	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, record)
	}
	if fail {
		return nil, ErrStoreDown
	}
	return &types.UploadReceipt{ScanID: "srv_" + record.ID, Message: "Scan uploaded successfully"}, nil
}

// SetFail switches the store between failing and accepting uploads
func (m *MockRecordStore) SetFail(fail bool) {
	m.mu.Lock()
	m.Fail = fail
	m.mu.Unlock()
}

// Calls returns the number of Upload calls so far
func (m *MockRecordStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Last returns the most recent uploaded record
func (m *MockRecordStore) Last() *types.UploadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Records) == 0 {
		return nil
	}
	return m.Records[len(m.Records)-1]
}

// CreateTestImage creates a gradient test image
func CreateTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}
