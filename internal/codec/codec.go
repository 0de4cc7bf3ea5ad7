// Package codec decodes source files into pixel buffers and re-encodes pixel
// buffers into the configured target format.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dunamismax/optimg/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnreadableImage = errors.New("unreadable image")
	ErrEncodeFailure   = errors.New("encode failure")
	ErrBlockOverflow   = errors.New("encoded image exceeds block size")
)

// Image is a decoded pixel buffer together with what the decoder learned
// about the source.
type Image struct {
	Pixels image.Image
	Format domain.Format
	Mode   domain.ColorMode
}

func NewImage(pixels image.Image, format domain.Format) Image {
	return Image{
		Pixels: pixels,
		Format: format,
		Mode:   domain.ColorModeOf(pixels),
	}
}

func (i Image) Width() int {
	if i.Pixels == nil {
		return 0
	}
	return i.Pixels.Bounds().Dx()
}

func (i Image) Height() int {
	if i.Pixels == nil {
		return 0
	}
	return i.Pixels.Bounds().Dy()
}

// WithPixels returns a copy carrying new pixels. Format stays the source
// format, Mode follows the new buffer.
func (i Image) WithPixels(pixels image.Image) Image {
	return NewImage(pixels, i.Format)
}

// Buffer is an encoded image held in memory.
type Buffer struct {
	Data   []byte
	Format domain.Format
}

func (b Buffer) Len() int64 {
	return int64(len(b.Data))
}

// Decode reads and decodes the file at path. Any failure, including a missing
// file, is reported as ErrUnreadableImage.
func Decode(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: open %s: %w", ErrUnreadableImage, path, err)
	}
	defer f.Close()

	pixels, name, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return Image{}, fmt.Errorf("%w: decode %s: %w", ErrUnreadableImage, path, err)
	}

	bounds := pixels.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return Image{}, fmt.Errorf("%w: %s has invalid dimensions %dx%d", ErrUnreadableImage, path, bounds.Dx(), bounds.Dy())
	}

	return NewImage(pixels, domain.ParseFormat(name)), nil
}
