package domain

import (
	"image"
	"image/color"
	"strings"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "JPEG"
	FormatPNG     Format = "PNG"
	FormatGIF     Format = "GIF"
	FormatWebP    Format = "WEBP"
	FormatBMP     Format = "BMP"
	FormatTIFF    Format = "TIFF"
)

// ParseFormat maps decoder names and user input ("jpg", "webp", ...) to a
// Format.
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "webp":
		return FormatWebP
	case "bmp":
		return FormatBMP
	case "tiff", "tif":
		return FormatTIFF
	default:
		return FormatUnknown
	}
}

// Extension returns the canonical file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatUnknown:
		return ""
	default:
		return "." + strings.ToLower(string(f))
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatUnknown:
		return "application/octet-stream"
	default:
		return "image/" + strings.ToLower(string(f))
	}
}

type ColorMode string

const (
	ColorModeUnknown     ColorMode = ""
	ColorModeRGB         ColorMode = "RGB"
	ColorModeRGBA        ColorMode = "RGBA"
	ColorModeRGB64       ColorMode = "RGB64"
	ColorModeGrayscale   ColorMode = "Grayscale"
	ColorModeGrayscale16 ColorMode = "Grayscale16"
	ColorModeIndexed     ColorMode = "Indexed"
	ColorModeCMYK        ColorMode = "CMYK"
)

// SingleChannel reports whether the mode carries luminance only.
func (m ColorMode) SingleChannel() bool {
	return m == ColorModeGrayscale || m == ColorModeGrayscale16
}

type opaquer interface {
	Opaque() bool
}

// ColorModeOf derives the color mode from the concrete pixel layout. RGBA
// buffers without any transparent pixel report as RGB.
func ColorModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case nil:
		return ColorModeUnknown
	case *image.Gray:
		return ColorModeGrayscale
	case *image.Gray16:
		return ColorModeGrayscale16
	case *image.Paletted:
		return ColorModeIndexed
	case *image.CMYK:
		return ColorModeCMYK
	case *image.YCbCr:
		return ColorModeRGB
	case *image.NYCbCrA:
		return withAlpha(m, ColorModeRGB, ColorModeRGBA)
	case *image.RGBA64, *image.NRGBA64:
		return ColorModeRGB64
	}

	switch img.ColorModel() {
	case color.GrayModel:
		return ColorModeGrayscale
	case color.Gray16Model:
		return ColorModeGrayscale16
	}
	if o, ok := img.(opaquer); ok {
		return withAlpha(o, ColorModeRGB, ColorModeRGBA)
	}
	return ColorModeRGBA
}

func withAlpha(o opaquer, opaque, translucent ColorMode) ColorMode {
	if o.Opaque() {
		return opaque
	}
	return translucent
}
