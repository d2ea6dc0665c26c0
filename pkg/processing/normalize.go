package processing

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/menta2k/palmscan/pkg/types"
)

// Normalize reads the frame and resamples it to a size×size RGB buffer.
// The aspect ratio is not preserved and the source image is left untouched.
func (p *Processor) Normalize(frame Frame) (*types.PixelBuffer, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame", types.ErrImageUnavailable)
	}

	img, err := frame.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrImageUnavailable, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: empty frame", types.ErrImageUnavailable)
	}

	img, err = materialize(img)
	if err != nil {
		return nil, err
	}

	return p.NormalizeImage(img)
}

// NormalizeImage resamples an already readable image
func (p *Processor) NormalizeImage(img image.Image) (*types.PixelBuffer, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", types.ErrImageUnavailable)
	}

	resized := imaging.Resize(img, p.size, p.size, imaging.Linear)

	buf := types.NewPixelBuffer(p.size)
	for y := 0; y < p.size; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+p.size*4]
		for x := 0; x < p.size; x++ {
			px := row[x*4 : x*4+3]
			buf.SetRGB(x, y, px[0], px[1], px[2])
		}
	}
	return buf, nil
}

// materialize copies an opaque image into CPU memory
func materialize(img image.Image) (image.Image, error) {
	opaque, ok := img.(OpaqueImage)
	if !ok {
		return img, nil
	}

	readable, err := opaque.Materialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedImageFormat, err)
	}
	if readable == nil {
		return nil, fmt.Errorf("%w: materialized image is empty", types.ErrUnsupportedImageFormat)
	}
	if _, still := readable.(OpaqueImage); still {
		return nil, fmt.Errorf("%w: image is not CPU readable", types.ErrUnsupportedImageFormat)
	}

	b := readable.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, readable, b, draw.Src, nil)
	return dst, nil
}

// ToImage converts a normalized buffer back into an image
func ToImage(buf *types.PixelBuffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Size, buf.Size))
	for y := 0; y < buf.Size; y++ {
		for x := 0; x < buf.Size; x++ {
			r, g, b := buf.RGB(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 0xff
		}
	}
	return img
}
