package codec

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/chai2010/webp"
	"github.com/dunamismax/optimg/internal/domain"
)

const (
	DefaultQuality   = 80
	DefaultBlockSize = 8 << 20

	maxPrealloc = 256 << 10
)

// Options configures an Encoder. BlockSize bounds the encoded output of the
// first attempt; it is never shared between encoders.
type Options struct {
	Format    domain.Format
	Quality   int
	Lossless  bool
	BlockSize int
}

type encodeFunc func(w io.Writer, img image.Image, opts Options) error

type Encoder struct {
	opts   Options
	encode encodeFunc
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}

	var fn encodeFunc
	switch opts.Format {
	case domain.FormatWebP:
		fn = encodeWebP
	case domain.FormatJPEG:
		fn = encodeJPEG
	default:
		return nil, fmt.Errorf("unsupported target format: %q", opts.Format)
	}

	return &Encoder{opts: opts, encode: fn}, nil
}

func (e *Encoder) Format() domain.Format {
	return e.opts.Format
}

// Encode serializes img into the target format. When the output does not fit
// the configured block, it retries once with a block of exactly
// width*height bytes.
func (e *Encoder) Encode(img Image) (Buffer, error) {
	if img.Pixels == nil {
		return Buffer{}, fmt.Errorf("%w: no pixel data", ErrEncodeFailure)
	}

	data, err := e.encodeWithin(img.Pixels, e.opts.BlockSize)
	if errors.Is(err, ErrBlockOverflow) {
		data, err = e.encodeWithin(img.Pixels, img.Width()*img.Height())
	}
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %s %dx%d: %w", ErrEncodeFailure, e.opts.Format, img.Width(), img.Height(), err)
	}

	return Buffer{Data: data, Format: e.opts.Format}, nil
}

func (e *Encoder) encodeWithin(img image.Image, blockSize int) ([]byte, error) {
	w := newBlockWriter(blockSize)
	if err := e.encode(w, img, e.opts); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeWebP(w io.Writer, img image.Image, opts Options) error {
	return webp.Encode(w, img, &webp.Options{
		Lossless: opts.Lossless,
		Quality:  float32(opts.Quality),
	})
}

func encodeJPEG(w io.Writer, img image.Image, opts Options) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: opts.Quality})
}

// blockWriter accumulates output up to a fixed limit and refuses anything
// beyond it with ErrBlockOverflow.
type blockWriter struct {
	buf   []byte
	limit int
}

func newBlockWriter(limit int) *blockWriter {
	if limit < 0 {
		limit = 0
	}
	return &blockWriter{
		buf:   make([]byte, 0, min(limit, maxPrealloc)),
		limit: limit,
	}
}

func (w *blockWriter) Write(p []byte) (int, error) {
	if len(w.buf)+len(p) > w.limit {
		return 0, ErrBlockOverflow
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *blockWriter) Bytes() []byte {
	return w.buf
}
