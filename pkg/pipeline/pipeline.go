// Package pipeline chains normalization, encoding, inference and decoding
// for a single image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/menta2k/palmscan/pkg/client"
	"github.com/menta2k/palmscan/pkg/decoder"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/tensor"
	"github.com/menta2k/palmscan/pkg/types"
)

// Pipeline classifies frames with one invoker and label list
type Pipeline struct {
	proc    *processing.Processor
	invoker client.Invoker
	labels  []string
}

// New creates a pipeline. labels must be ordered like the model output.
func New(proc *processing.Processor, invoker client.Invoker, labels []string) *Pipeline {
	return &Pipeline{
		proc:    proc,
		invoker: invoker,
		labels:  append([]string(nil), labels...),
	}
}

// Labels returns a copy of the label list
func (p *Pipeline) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Processor returns the normalizer used by the pipeline
func (p *Pipeline) Processor() *processing.Processor {
	return p.proc
}

// Preprocess normalizes the frame and encodes it for the invoker
func (p *Pipeline) Preprocess(frame processing.Frame) (*types.PixelBuffer, *types.InputTensor, error) {
	buf, err := p.proc.Normalize(frame)
	if err != nil {
		return nil, nil, err
	}
	in, err := tensor.Encode(buf, p.invoker.InputEncoding())
	if err != nil {
		return nil, nil, err
	}
	return buf, in, nil
}

// Infer runs the model once and decodes its output. Invoker failures are
// reported as ErrInferenceFailed; label mismatches keep ErrLabelMismatch.
func (p *Pipeline) Infer(ctx context.Context, in *types.InputTensor) (*types.ClassificationResult, error) {
	start := time.Now()

	raw, err := p.invoker.Invoke(ctx, in)
	if err != nil {
		if errors.Is(err, types.ErrInferenceFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInferenceFailed, err)
	}

	result, err := decoder.DecodeRaw(raw, p.invoker.OutputEncoding(), p.labels)
	if err != nil {
		return nil, err
	}
	result.ProcessingTime = time.Since(start)
	return result, nil
}

// Classify runs the whole chain on one frame
func (p *Pipeline) Classify(ctx context.Context, frame processing.Frame) (*types.ClassificationResult, error) {
	_, in, err := p.Preprocess(frame)
	if err != nil {
		return nil, err
	}
	return p.Infer(ctx, in)
}
