package server

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/processing"
)

// Stored images are limited to this bounding box
const (
	MaxImageWidth  = 800
	MaxImageHeight = 600
	imageQuality   = 80
)

var imageName = regexp.MustCompile(`^[0-9a-f-]{36}\.webp$`)

// ImageStore writes uploaded scan images to a directory as WebP
type ImageStore struct {
	dir     string
	baseURL string
}

// NewImageStore stores images under dir; baseURL prefixes the returned URLs
func NewImageStore(dir, baseURL string) (*ImageStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %v", err)
	}
	return &ImageStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// SaveBase64 decodes a base64 image (optionally a data URL), shrinks it to
// fit MaxImageWidth×MaxImageHeight and stores it. It returns the public URL.
func (s *ImageStore) SaveBase64(encoded string) (string, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("invalid base64 image: %v", err)
	}

	img, err := processing.DecodeBytes(data)
	if err != nil {
		return "", err
	}
	thumb := resize.Thumbnail(MaxImageWidth, MaxImageHeight, img, resize.Bilinear)

	name := uuid.NewString() + ".webp"
	p := filepath.Join(s.dir, name)
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %v", err)
	}

	err = webp.Encode(f, thumb, &webp.Options{Quality: imageQuality})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return "", fmt.Errorf("failed to encode webp: %v", err)
	}
	return s.baseURL + "/images/" + name, nil
}

// Remove deletes the image behind a URL returned by SaveBase64
func (s *ImageStore) Remove(imageURL string) error {
	p, ok := s.Path(path.Base(imageURL))
	if !ok {
		return nil
	}
	return os.Remove(p)
}

// Path returns the file behind an image name, or false for names this
// store never generates
func (s *ImageStore) Path(name string) (string, bool) {
	if !imageName.MatchString(name) {
		return "", false
	}
	p := filepath.Join(s.dir, name)
	return p, utils.FileExists(p)
}
