// Package onnx runs the leaf classifier locally with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/palmscan/pkg/model"
	"github.com/menta2k/palmscan/pkg/tensor"
	"github.com/menta2k/palmscan/pkg/types"
)

// Common locations of the runtime shared library
var libraryPaths = []string{
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/libonnxruntime.so",
	"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
}

// Invoker owns a session with preallocated tensors. Invoke is serialized.
type Invoker struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	spec    *model.Spec

	inU8   *ort.Tensor[uint8]
	inF32  *ort.Tensor[float32]
	outU8  *ort.Tensor[uint8]
	outF32 *ort.Tensor[float32]
}

// InitEnvironment points the runtime at its shared library and initializes
// it once per process. An empty libraryPath searches the usual locations.
func InitEnvironment(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}

	if libraryPath == "" {
		for _, p := range libraryPaths {
			if _, err := os.Stat(p); err == nil {
				libraryPath = p
				break
			}
		}
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// NewInvoker loads the model at modelPath. The tensor shapes come from meta;
// when meta has none, NHWC [1, S, S, 3] input and [1, labels] output are used.
func NewInvoker(modelPath string, meta *model.Metadata, spec *model.Spec) (*Invoker, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	inShape := ort.NewShape(1, int64(spec.ImageSize), int64(spec.ImageSize), types.Channels)
	outShape := ort.NewShape(1, int64(len(spec.Labels)))
	inName, outName := "input", "output"
	if meta != nil {
		if len(meta.InputShape) > 0 {
			inShape = ort.NewShape(meta.InputShape...)
		}
		if len(meta.OutputShape) > 0 {
			outShape = ort.NewShape(meta.OutputShape...)
		}
		if meta.InputName != "" {
			inName = meta.InputName
		}
		if meta.OutputName != "" {
			outName = meta.OutputName
		}
	}

	if want := int64(tensor.ExpectedLength(spec.ImageSize, types.Quantized)); inShape.FlattenedSize() != want {
		return nil, fmt.Errorf("%w: input shape %v does not hold %dx%d RGB", types.ErrTensorSizeMismatch, inShape, spec.ImageSize, spec.ImageSize)
	}
	if outShape.FlattenedSize() != int64(len(spec.Labels)) {
		return nil, fmt.Errorf("%w: output shape %v, %d labels", types.ErrLabelMismatch, outShape, len(spec.Labels))
	}

	inv := &Invoker{spec: spec}
	var in, out ort.ArbitraryTensor
	var err error

	switch spec.InputEncoding {
	case types.Float:
		inv.inF32, err = ort.NewEmptyTensor[float32](inShape)
		in = inv.inF32
	default:
		inv.inU8, err = ort.NewEmptyTensor[uint8](inShape)
		in = inv.inU8
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	switch spec.OutputEncoding {
	case types.Float:
		inv.outF32, err = ort.NewEmptyTensor[float32](outShape)
		out = inv.outF32
	default:
		inv.outU8, err = ort.NewEmptyTensor[uint8](outShape)
		out = inv.outU8
	}
	if err != nil {
		inv.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	inv.session, err = ort.NewAdvancedSession(modelPath,
		[]string{inName}, []string{outName},
		[]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out},
		nil)
	if err != nil {
		inv.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return inv, nil
}

func (inv *Invoker) InputEncoding() types.Encoding  { return inv.spec.InputEncoding }
func (inv *Invoker) OutputEncoding() types.Encoding { return inv.spec.OutputEncoding }

// Invoke copies the tensor into the session input, runs the model and
// returns a copy of the output
func (inv *Invoker) Invoke(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Encoding != inv.spec.InputEncoding {
		return nil, fmt.Errorf("tensor encoding %v, model expects %v", in.Encoding, inv.spec.InputEncoding)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.session == nil {
		return nil, fmt.Errorf("session closed")
	}

	switch in.Encoding {
	case types.Float:
		dst := inv.inF32.GetData()
		if len(in.Data) != len(dst)*4 {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", types.ErrTensorSizeMismatch, len(in.Data), len(dst)*4)
		}
		for i := range dst {
			dst[i] = tensor.Float32At(in.Data, i)
		}
	default:
		dst := inv.inU8.GetData()
		if len(in.Data) != len(dst) {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", types.ErrTensorSizeMismatch, len(in.Data), len(dst))
		}
		copy(dst, in.Data)
	}

	if err := inv.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	if inv.outF32 != nil {
		return &types.RawOutput{Floats: append([]float32(nil), inv.outF32.GetData()...)}, nil
	}
	return &types.RawOutput{Bytes: append([]byte(nil), inv.outU8.GetData()...)}, nil
}

// Close releases the session and its tensors
func (inv *Invoker) Close() {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.inU8 != nil {
		inv.inU8.Destroy()
	}
	if inv.inF32 != nil {
		inv.inF32.Destroy()
	}
	if inv.outU8 != nil {
		inv.outU8.Destroy()
	}
	if inv.outF32 != nil {
		inv.outF32.Destroy()
	}
	if inv.session != nil {
		inv.session.Destroy()
		inv.session = nil
	}
}

// DestroyEnvironment shuts the runtime down; call it once at process exit
func DestroyEnvironment() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}
