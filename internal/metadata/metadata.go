// Package metadata detects EXIF blocks in source images and carries them over
// into re-encoded output. Failures here never fail a conversion: they are
// reported as a Reason and the caller carries on without metadata.
package metadata

import (
	"errors"
	"fmt"
	"os"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/dunamismax/optimg/internal/domain"
)

var (
	ErrIncompatibleTarget = errors.New("target format cannot carry exif")
	ErrMetadataTooLarge   = errors.New("exif block too large for target")
	ErrNoMetadata         = errors.New("source has no exif metadata")
)

// Reason classifies the outcome of probing a source file.
type Reason string

const (
	ReasonPresent     Reason = "present"
	ReasonNotFound    Reason = "not_found"
	ReasonUnsupported Reason = "unsupported_format"
	ReasonMalformed   Reason = "malformed"
	ReasonUnreadable  Reason = "unreadable"
)

type Inspection struct {
	Reason Reason
	Tags   int
	// Err is the underlying cause for ReasonMalformed and ReasonUnreadable.
	Err error

	raw []byte
}

func (p Inspection) Present() bool {
	return p.Reason == ReasonPresent
}

// Inspect reads path and classifies its EXIF block. Only JPEG, PNG and WebP
// containers are searched.
func Inspect(path string) Inspection {
	data, err := os.ReadFile(path)
	if err != nil {
		return Inspection{Reason: ReasonUnreadable, Err: err}
	}
	return inspectBytes(data)
}

func inspectBytes(data []byte) Inspection {
	kind := sniff(data)
	if kind == containerUnknown {
		return Inspection{Reason: ReasonUnsupported}
	}

	raw, err := extractRaw(kind, data)
	if err != nil {
		return Inspection{Reason: ReasonMalformed, Err: err}
	}
	if len(raw) == 0 {
		return Inspection{Reason: ReasonNotFound}
	}

	if _, err := exif.ParseExifHeader(raw); err != nil {
		switch {
		case errors.Is(err, exif.ErrNoExif):
			return Inspection{Reason: ReasonNotFound}
		case errors.Is(err, exif.ErrExifHeaderError):
			return Inspection{Reason: ReasonMalformed, Err: err}
		default:
			return Inspection{Reason: ReasonMalformed, Err: fmt.Errorf("parse exif header: %w", err)}
		}
	}

	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return Inspection{Reason: ReasonMalformed, Err: fmt.Errorf("read exif tags: %w", err)}
	}
	if len(tags) == 0 {
		return Inspection{Reason: ReasonNotFound}
	}

	return Inspection{Reason: ReasonPresent, Tags: len(tags), raw: raw}
}

// HasMetadata reports whether path carries a readable, non-empty EXIF block.
func HasMetadata(path string) bool {
	return Inspect(path).Present()
}

// Transplant copies the EXIF block of sourcePath into target, an encoded
// image in the given format, and returns the new encoded bytes. On error the
// target slice is left as it was.
func Transplant(sourcePath string, target []byte, format domain.Format) ([]byte, error) {
	insp := Inspect(sourcePath)
	if !insp.Present() {
		if insp.Err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoMetadata, insp.Reason, insp.Err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, insp.Reason)
	}
	return embed(target, insp.raw, format)
}

func embed(target, raw []byte, format domain.Format) ([]byte, error) {
	switch format {
	case domain.FormatWebP:
		return embedWebP(target, raw)
	case domain.FormatJPEG:
		return embedJPEG(target, raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrIncompatibleTarget, format)
	}
}
