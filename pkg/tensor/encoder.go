// Package tensor converts normalized pixel buffers into the byte layout the
// classifier consumes: interleaved R,G,B, row-major, either one byte per
// channel (quantized models) or one native-endian float32 per channel scaled
// to [0,1] (float models).
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/menta2k/palmscan/pkg/types"
)

// ExpectedLength returns the exact byte length of a size×size tensor
func ExpectedLength(size int, enc types.Encoding) int {
	return size * size * types.Channels * enc.BytesPerChannel()
}

// Encode builds the input tensor for buf using the model's encoding
func Encode(buf *types.PixelBuffer, enc types.Encoding) (*types.InputTensor, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTensorSizeMismatch, err)
	}

	want := ExpectedLength(buf.Size, enc)
	data := make([]byte, 0, want)

	switch enc {
	case types.Quantized:
		// PixelBuffer is already packed R,G,B row-major
		data = append(data, buf.Pix...)
	case types.Float:
		var word [4]byte
		for _, v := range buf.Pix {
			binary.NativeEndian.PutUint32(word[:], math.Float32bits(float32(v)/255.0))
			data = append(data, word[:]...)
		}
	default:
		return nil, fmt.Errorf("unsupported tensor encoding %v", enc)
	}

	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", types.ErrTensorSizeMismatch, len(data), want)
	}

	return &types.InputTensor{Encoding: enc, Size: buf.Size, Data: data}, nil
}

// Decode reverses Encode. Float channels are rounded to the nearest 8-bit value.
func Decode(t *types.InputTensor) (*types.PixelBuffer, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	if want := ExpectedLength(t.Size, t.Encoding); len(t.Data) != want || t.Size <= 0 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", types.ErrTensorSizeMismatch, len(t.Data), want)
	}

	buf := types.NewPixelBuffer(t.Size)
	switch t.Encoding {
	case types.Quantized:
		copy(buf.Pix, t.Data)
	case types.Float:
		for i := range buf.Pix {
			f := Float32At(t.Data, i)
			buf.Pix[i] = uint8(math.Round(float64(clamp01(f)) * 255))
		}
	default:
		return nil, fmt.Errorf("unsupported tensor encoding %v", t.Encoding)
	}
	return buf, nil
}

// Float32At reads the i-th native-endian float32 of a float tensor
func Float32At(data []byte, i int) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(data[i*4:]))
}

// Float32s reinterprets a float tensor as a float32 slice copy
func Float32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = Float32At(data, i)
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
