// Package client declares the seams between the pipeline and its external
// collaborators: the inference runtime, vision model servers and the remote
// record store.
package client

import (
	"context"

	"github.com/menta2k/palmscan/pkg/types"
)

// Invoker runs the classifier on one encoded tensor. Implementations are
// called once per image and never retried.
type Invoker interface {
	InputEncoding() types.Encoding
	OutputEncoding() types.Encoding
	Invoke(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error)
}

// VisionClient sends a prompt with an image to a vision language model
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// RecordStore persists upload records remotely
type RecordStore interface {
	Upload(ctx context.Context, record *types.UploadRecord) (*types.UploadReceipt, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc struct {
	In, Out types.Encoding
	Fn      func(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error)
}

func (f InvokerFunc) InputEncoding() types.Encoding  { return f.In }
func (f InvokerFunc) OutputEncoding() types.Encoding { return f.Out }

func (f InvokerFunc) Invoke(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error) {
	return f.Fn(ctx, in)
}
