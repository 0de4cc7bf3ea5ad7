package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/image/webp"
)

var (
	errTruncated   = errors.New("truncated container")
	jpegExifPrefix = []byte("Exif\x00\x00")
	pngSignature   = []byte("\x89PNG\r\n\x1a\n")
)

const (
	vp8xFlagEXIF  = 0x08
	vp8xFlagAlpha = 0x10
)

type container int

const (
	containerUnknown container = iota
	containerJPEG
	containerPNG
	containerWebP
)

func sniff(data []byte) container {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return containerJPEG
	case bytes.HasPrefix(data, pngSignature):
		return containerPNG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return containerWebP
	default:
		return containerUnknown
	}
}

// extractRaw returns the TIFF-structured EXIF block of a container, or nil
// when the container holds none.
func extractRaw(kind container, data []byte) ([]byte, error) {
	switch kind {
	case containerJPEG:
		return extractJPEG(data)
	case containerPNG:
		return extractPNG(data)
	case containerWebP:
		return extractWebP(data)
	default:
		return nil, nil
	}
}

type riffChunk struct {
	id      string
	payload []byte
}

func readRIFF(data []byte) ([]riffChunk, error) {
	if sniff(data) != containerWebP {
		return nil, errors.New("missing RIFF/WEBP header")
	}

	var chunks []riffChunk
	pos := 12
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, errTruncated
		}
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, errTruncated
		}
		chunks = append(chunks, riffChunk{id: id, payload: data[body : body+size]})
		pos = body + size + size&1
	}
	return chunks, nil
}

func writeRIFF(chunks []riffChunk) []byte {
	size := 4
	for _, c := range chunks {
		size += 8 + len(c.payload) + len(c.payload)&1
	}

	out := make([]byte, 0, size+8)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(size))
	out = append(out, "WEBP"...)
	for _, c := range chunks {
		out = append(out, c.id...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c.payload)))
		out = append(out, c.payload...)
		if len(c.payload)&1 == 1 {
			out = append(out, 0)
		}
	}
	return out
}

func extractWebP(data []byte) ([]byte, error) {
	chunks, err := readRIFF(data)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.id == "EXIF" {
			return bytes.TrimPrefix(c.payload, jpegExifPrefix), nil
		}
	}
	return nil, nil
}

// embedWebP converts a simple WebP into the extended layout when needed, sets
// the EXIF flag and stores raw in an EXIF chunk after the image data.
func embedWebP(data, raw []byte) ([]byte, error) {
	chunks, err := readRIFF(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleTarget, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: webp has no chunks", ErrIncompatibleTarget)
	}

	out := make([]riffChunk, 0, len(chunks)+2)
	if chunks[0].id != "VP8X" {
		header, err := vp8xFor(data, chunks[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIncompatibleTarget, err)
		}
		out = append(out, riffChunk{id: "VP8X", payload: header})
	} else {
		if len(chunks[0].payload) != 10 {
			return nil, fmt.Errorf("%w: malformed VP8X chunk", ErrIncompatibleTarget)
		}
		header := append([]byte(nil), chunks[0].payload...)
		out = append(out, riffChunk{id: "VP8X", payload: header})
		chunks = chunks[1:]
	}
	out[0].payload[0] |= vp8xFlagEXIF

	exifChunk := riffChunk{id: "EXIF", payload: raw}
	inserted := false
	for _, c := range chunks {
		if c.id == "EXIF" {
			continue
		}
		if c.id == "XMP " && !inserted {
			out = append(out, exifChunk)
			inserted = true
		}
		out = append(out, c)
	}
	if !inserted {
		out = append(out, exifChunk)
	}
	return writeRIFF(out), nil
}

func vp8xFor(data []byte, first riffChunk) ([]byte, error) {
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read webp config: %w", err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, errors.New("webp has invalid dimensions")
	}

	header := make([]byte, 10)
	if first.id == "VP8L" && len(first.payload) >= 5 {
		bits := binary.LittleEndian.Uint32(first.payload[1:5])
		if bits>>28&1 == 1 {
			header[0] |= vp8xFlagAlpha
		}
	}
	putUint24(header[4:7], uint32(cfg.Width-1))
	putUint24(header[7:10], uint32(cfg.Height-1))
	return header, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
