package types

import (
	"fmt"
	"time"
)

// Encoding describes how a model expects its tensors to be laid out
type Encoding int

const (
	// Quantized tensors carry one unsigned byte per channel value
	Quantized Encoding = iota
	// Float tensors carry one IEEE-754 float32 per channel value
	Float
)

// String returns the name used in model metadata files
func (e Encoding) String() string {
	switch e {
	case Quantized:
		return "uint8"
	case Float:
		return "float32"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// BytesPerChannel returns the size of a single channel value
func (e Encoding) BytesPerChannel() int {
	if e == Float {
		return 4
	}
	return 1
}

// ParseEncoding maps a metadata string to an Encoding
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "uint8", "quantized", "int8":
		return Quantized, nil
	case "float32", "float":
		return Float, nil
	default:
		return 0, fmt.Errorf("unknown tensor encoding %q", s)
	}
}

// Channels is the number of color channels fed to the classifier
const Channels = 3

// PixelBuffer is a square RGB image, 8 bits per channel, row-major
type PixelBuffer struct {
	Size int
	Pix  []uint8
}

// NewPixelBuffer allocates a zeroed buffer of size×size pixels
func NewPixelBuffer(size int) *PixelBuffer {
	return &PixelBuffer{Size: size, Pix: make([]uint8, size*size*Channels)}
}

// RGB returns the channel values of the pixel at (x, y)
func (b *PixelBuffer) RGB(x, y int) (uint8, uint8, uint8) {
	i := (y*b.Size + x) * Channels
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// SetRGB stores the channel values of the pixel at (x, y)
func (b *PixelBuffer) SetRGB(x, y int, r, g, bl uint8) {
	i := (y*b.Size + x) * Channels
	b.Pix[i], b.Pix[i+1], b.Pix[i+2] = r, g, bl
}

// Validate checks that the buffer matches its declared size
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("nil pixel buffer")
	}
	if b.Size <= 0 {
		return fmt.Errorf("invalid pixel buffer size %d", b.Size)
	}
	if len(b.Pix) != b.Size*b.Size*Channels {
		return fmt.Errorf("pixel buffer holds %d bytes, want %d", len(b.Pix), b.Size*b.Size*Channels)
	}
	return nil
}

// InputTensor is the byte buffer handed to the inference runtime
type InputTensor struct {
	Encoding Encoding
	Size     int
	Data     []byte
}

// RawOutput holds per-class scores as produced by the runtime.
// Exactly one of Floats or Bytes is populated.
type RawOutput struct {
	Floats []float32
	Bytes  []byte
}

// Len returns the number of scores in the output
func (o *RawOutput) Len() int {
	if o.Bytes != nil {
		return len(o.Bytes)
	}
	return len(o.Floats)
}

// ClassScore is a single label with its score normalized to [0,1]
type ClassScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// ClassScores is ordered exactly like the model's label list
type ClassScores []ClassScore

// ClassificationResult is the decoded outcome of one classification
type ClassificationResult struct {
	TopLabel       string             `json:"top_label"`
	TopConfidence  float32            `json:"top_confidence"`
	Predictions    map[string]float32 `json:"predictions"`
	Scores         ClassScores        `json:"-"`
	ProcessingTime time.Duration      `json:"processing_time"`
}

// Prediction is an entry of a ranked top-N list
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Presentation is the display summary derived from a raw label
type Presentation struct {
	Emoji              string `json:"emoji"`
	StatusText         string `json:"status_text"`
	SeverityTier       string `json:"severity_tier"`
	SeverityIcon       string `json:"severity_icon"`
	Recommendation     string `json:"recommendation"`
	RecommendationIcon string `json:"recommendation_icon"`
}

// SeverityLevel returns the tier prefixed with its colored marker
func (p Presentation) SeverityLevel() string {
	if p.SeverityIcon == "" {
		return p.SeverityTier
	}
	return p.SeverityIcon + " " + p.SeverityTier
}
