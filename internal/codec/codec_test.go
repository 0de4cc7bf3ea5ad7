package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/optimg/internal/domain"
	_ "golang.org/x/image/webp"
)

func TestDecodeReportsFormatAndMode(t *testing.T) {
	tmp := t.TempDir()

	pngPath := filepath.Join(tmp, "input.png")
	writeFile(t, pngPath, buildTestPNG(t, 40, 20))

	img, err := Decode(pngPath)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Format != domain.FormatPNG {
		t.Fatalf("expected PNG format, got %q", img.Format)
	}
	if img.Mode != domain.ColorModeRGB {
		t.Fatalf("expected RGB mode, got %q", img.Mode)
	}
	if img.Width() != 40 || img.Height() != 20 {
		t.Fatalf("expected 40x20, got %dx%d", img.Width(), img.Height())
	}

	jpegPath := filepath.Join(tmp, "input.jpg")
	writeFile(t, jpegPath, buildTestJPEG(t, 16, 16))

	img, err = Decode(jpegPath)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if img.Format != domain.FormatJPEG {
		t.Fatalf("expected JPEG format, got %q", img.Format)
	}
}

func TestDecodeUnreadable(t *testing.T) {
	tmp := t.TempDir()

	if _, err := Decode(filepath.Join(tmp, "missing.png")); !errors.Is(err, ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage for missing file, got %v", err)
	}

	garbage := filepath.Join(tmp, "garbage.png")
	writeFile(t, garbage, []byte("definitely not an image"))
	if _, err := Decode(garbage); !errors.Is(err, ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage for garbage, got %v", err)
	}
}

func TestNewEncoderRejectsUnknownFormat(t *testing.T) {
	if _, err := NewEncoder(Options{Format: domain.FormatGIF}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestEncodeWebP(t *testing.T) {
	enc, err := NewEncoder(Options{Format: domain.FormatWebP})
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	buf, err := enc.Encode(NewImage(solidImage(64, 48), domain.FormatPNG))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Format != domain.FormatWebP {
		t.Fatalf("expected WEBP buffer, got %q", buf.Format)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(buf.Data))
	if err != nil {
		t.Fatalf("decode encoded webp: %v", err)
	}
	if name != "webp" || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("unexpected webp output name=%s %dx%d", name, cfg.Width, cfg.Height)
	}
}

func TestEncodeRetriesWithPixelSizedBlock(t *testing.T) {
	enc, err := NewEncoder(Options{Format: domain.FormatJPEG, BlockSize: 16})
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	var limits []int
	inner := enc.encode
	enc.encode = func(w io.Writer, img image.Image, opts Options) error {
		limits = append(limits, w.(*blockWriter).limit)
		return inner(w, img, opts)
	}

	buf, err := enc.Encode(NewImage(solidImage(64, 64), domain.FormatPNG))
	if err != nil {
		t.Fatalf("encode with retry: %v", err)
	}
	if len(buf.Data) == 0 || len(buf.Data) > 64*64 {
		t.Fatalf("unexpected encoded size %d", len(buf.Data))
	}
	if len(limits) != 2 || limits[0] != 16 || limits[1] != 64*64 {
		t.Fatalf("expected attempts with limits [16 4096], got %v", limits)
	}
	if _, err := jpeg.Decode(bytes.NewReader(buf.Data)); err != nil {
		t.Fatalf("retry output is not a valid jpeg: %v", err)
	}
}

func TestEncodeRetryExhausted(t *testing.T) {
	enc, err := NewEncoder(Options{Format: domain.FormatJPEG, BlockSize: 1})
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	_, err = enc.Encode(NewImage(solidImage(1, 1), domain.FormatPNG))
	if !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	if !errors.Is(err, ErrBlockOverflow) {
		t.Fatalf("expected the overflow cause to be kept, got %v", err)
	}
}

func TestEncodeDoesNotRetryOtherErrors(t *testing.T) {
	enc, err := NewEncoder(Options{Format: domain.FormatWebP})
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	calls := 0
	boom := errors.New("boom")
	enc.encode = func(io.Writer, image.Image, Options) error {
		calls++
		return boom
	}

	_, err = enc.Encode(NewImage(solidImage(4, 4), domain.FormatPNG))
	if !errors.Is(err, ErrEncodeFailure) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped encode failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestBlockWriterLimit(t *testing.T) {
	w := newBlockWriter(4)
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.Write([]byte("de")); !errors.Is(err, ErrBlockOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if got := string(w.Bytes()); got != "abc" {
		t.Fatalf("expected buffer to keep accepted bytes, got %q", got)
	}
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 140, B: 200, A: 255})
		}
	}
	return img
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solidImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode source jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
