// Package imageio loads still images for classification.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes bounds how much of a file is read.
const DefaultMaxBytes = 32 << 20

// ErrUnreadable means the image could not be located, read or decoded.
var ErrUnreadable = errors.New("image unreadable")

// Image is a decoded still image plus what was learned while loading it.
type Image struct {
	Image    image.Image
	Format   string
	Data     []byte
	Width    int
	Height   int
	Metadata *Metadata

	// Hash is the perceptual difference hash; nil when hashing failed.
	Hash *goimagehash.ImageHash
}

// Open reads and decodes the file at path. Every failure wraps ErrUnreadable.
func Open(path string, maxBytes int64) (*Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnreadable, path, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnreadable, path, maxBytes)
	}
	return Decode(data)
}

// Decode decodes raw image bytes (JPEG, PNG, GIF, WebP, BMP or TIFF).
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnreadable)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUnreadable)
	}

	out := &Image{
		Image:    img,
		Format:   format,
		Data:     data,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Metadata: ExtractMetadata(data),
	}
	if h, err := goimagehash.DifferenceHash(img); err == nil {
		out.Hash = h
	}
	return out, nil
}

// HashString returns the perceptual hash as goimagehash formats it, or "".
func (i *Image) HashString() string {
	if i == nil || i.Hash == nil {
		return ""
	}
	return i.Hash.ToString()
}
