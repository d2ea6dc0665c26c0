// Package model loads the classifier description: its label list and the
// tensor metadata shipped next to the model file.
package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/palmscan/pkg/types"
)

// Metadata describes the model's tensors
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputType   string   `json:"input_type,omitempty"`
	OutputType  string   `json:"output_type,omitempty"`
	Classes     []string `json:"classes,omitempty"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// Spec is the read-only description of the loaded model, shared by every
// session of the process.
type Spec struct {
	Labels         []string
	ImageSize      int
	InputEncoding  types.Encoding
	OutputEncoding types.Encoding
	Version        string
}

// DefaultSpec matches the quantized 224×224 leaf classifier
func DefaultSpec(labels []string) *Spec {
	return &Spec{
		Labels:         labels,
		ImageSize:      224,
		InputEncoding:  types.Quantized,
		OutputEncoding: types.Quantized,
		Version:        "enhanced_v1.0",
	}
}

// LoadLabels reads a newline-delimited label file. Surrounding whitespace
// is trimmed and blank lines are ignored.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels %s: %w", path, err)
	}
	return labels, nil
}

// ParseLabels reads labels from r
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			continue
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels found")
	}
	return labels, nil
}

// LoadMetadata reads the JSON metadata file
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// Spec combines metadata with the label list. Labels from the metadata file
// are used when labels is empty.
func (m *Metadata) Spec(labels []string) (*Spec, error) {
	if len(labels) == 0 {
		labels = m.Classes
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("metadata has no classes and no label file was given")
	}

	spec := DefaultSpec(labels)
	if m.ImageSize > 0 {
		spec.ImageSize = m.ImageSize
	}

	if m.InputType != "" {
		enc, err := types.ParseEncoding(m.InputType)
		if err != nil {
			return nil, fmt.Errorf("input_type: %w", err)
		}
		spec.InputEncoding = enc
	}
	if m.OutputType != "" {
		enc, err := types.ParseEncoding(m.OutputType)
		if err != nil {
			return nil, fmt.Errorf("output_type: %w", err)
		}
		spec.OutputEncoding = enc
	}

	if n := m.OutputClasses(); n > 0 && n != len(labels) {
		return nil, fmt.Errorf("%w: %d labels, model outputs %d", types.ErrLabelMismatch, len(labels), n)
	}
	return spec, nil
}

// OutputClasses returns the class dimension of the output shape, or 0
func (m *Metadata) OutputClasses() int {
	if len(m.OutputShape) == 0 {
		return 0
	}
	return int(m.OutputShape[len(m.OutputShape)-1])
}
