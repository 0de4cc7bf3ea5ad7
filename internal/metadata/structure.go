package metadata

import (
	"bytes"
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

const (
	pngExifChunk   = "eXIf"
	maxJPEGSegment = 0xFFFF - 2
)

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg segments: %w", err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, errors.New("parse jpeg segments: unexpected media context")
	}
	return sl, nil
}

func extractJPEG(data []byte) ([]byte, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}
	for _, s := range sl.Segments() {
		if s.IsExif() {
			return s.Exif()
		}
	}
	return nil, nil
}

func extractPNG(data []byte) ([]byte, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse png chunks: %w", err)
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, errors.New("parse png chunks: unexpected media context")
	}
	if chunks := cs.Index()[pngExifChunk]; len(chunks) > 0 {
		return chunks[0].Data, nil
	}
	return nil, nil
}

// embedJPEG stores raw as the single EXIF APP1 segment of data, replacing any
// existing one.
func embedJPEG(data, raw []byte) ([]byte, error) {
	if len(jpegstructure.ExifPrefix)+len(raw)+2 > maxJPEGSegment {
		return nil, fmt.Errorf("%w: %d bytes do not fit a jpeg APP1 segment", ErrMetadataTooLarge, len(raw))
	}

	sl, err := parseJPEG(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleTarget, err)
	}
	ib, err := exifBuilder(raw)
	if err != nil {
		return nil, err
	}
	if err := sl.SetExif(ib); err != nil {
		return nil, fmt.Errorf("set jpeg exif: %w", err)
	}
	for _, s := range sl.Segments() {
		if s.IsExif() && len(s.Data)+2 > maxJPEGSegment {
			return nil, fmt.Errorf("%w: encoded block is %d bytes", ErrMetadataTooLarge, len(s.Data))
		}
	}

	var out bytes.Buffer
	out.Grow(len(data) + len(raw) + 16)
	if err := sl.Write(&out); err != nil {
		return nil, fmt.Errorf("write jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// exifBuilder rebuilds an IFD chain from a raw TIFF block.
func exifBuilder(raw []byte) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("exif ifd mapping: %w", err)
	}
	_, index, err := exif.Collect(im, exif.NewTagIndex(), raw)
	if err != nil {
		return nil, fmt.Errorf("collect exif: %w", err)
	}
	return exif.NewIfdBuilderFromExistingChain(index.RootIfd), nil
}
