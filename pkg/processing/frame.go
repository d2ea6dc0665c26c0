package processing

import (
	"errors"
	"image"
	"sync"
)

// Frame is a captured still image. Capture sources implement it; the
// normalizer only ever reads from it.
type Frame interface {
	Read() (image.Image, error)
}

// OpaqueImage is an image whose pixels are not CPU addressable, such as a
// hardware buffer. Its At method must not be relied on; Materialize returns a
// readable copy.
type OpaqueImage interface {
	image.Image
	Materialize() (image.Image, error)
}

var errFrameReleased = errors.New("frame released")

// StaticFrame wraps an in-memory image
type StaticFrame struct {
	mu       sync.Mutex
	img      image.Image
	released bool
}

// NewStaticFrame returns a frame backed by img
func NewStaticFrame(img image.Image) *StaticFrame {
	return &StaticFrame{img: img}
}

// Read returns the wrapped image until the frame is released
func (f *StaticFrame) Read() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, errFrameReleased
	}
	return f.img, nil
}

// Release drops the image; later reads fail
func (f *StaticFrame) Release() {
	f.mu.Lock()
	f.released = true
	f.img = nil
	f.mu.Unlock()
}

// SourceFrame decodes a file path or http(s) URL lazily on Read and
// rejects sources below the processor's minimum edge
type SourceFrame struct {
	Source string
	proc   *Processor
}

// Frame returns a lazily decoded frame for a file path or URL
func (p *Processor) Frame(source string) *SourceFrame {
	return &SourceFrame{Source: source, proc: p}
}

func (f *SourceFrame) Read() (image.Image, error) {
	img, err := f.proc.LoadImageSmart(f.Source)
	if err != nil {
		return nil, err
	}
	if err := f.proc.Validate(img); err != nil {
		return nil, err
	}
	return img, nil
}

// FrameFunc adapts a function to the Frame interface
type FrameFunc func() (image.Image, error)

func (fn FrameFunc) Read() (image.Image, error) {
	return fn()
}
