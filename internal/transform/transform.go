// Package transform holds the pixel transforms applied between decode and
// encode. Every function returns a new image and leaves its input untouched.
package transform

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/optimg/internal/codec"
)

// Downsize scales img down, preserving aspect ratio, until it fits within
// maxW x maxH. A bound <= 0 leaves that axis unconstrained. Images that
// already fit are returned as is with false. It never upscales.
func Downsize(img codec.Image, maxW, maxH int) (codec.Image, bool) {
	w, h := img.Width(), img.Height()
	nw, nh, ok := FitDimensions(w, h, maxW, maxH)
	if !ok {
		return img, false
	}

	resized := imaging.Resize(img.Pixels, nw, nh, imaging.Lanczos)
	out := img.WithPixels(matchLayout(resized, img))
	out.Mode = img.Mode
	return out, true
}

// matchLayout converts the NRGBA output of a resize back to the pixel layout
// of src so the color mode survives. Paletted sources are remapped to the
// nearest entry of their own palette.
func matchLayout(resized *image.NRGBA, src codec.Image) image.Image {
	r := resized.Bounds()
	var dst draw.Image
	switch s := src.Pixels.(type) {
	case *image.Gray:
		return toGray(resized)
	case *image.Gray16:
		dst = image.NewGray16(r)
	case *image.Paletted:
		p := make([]color.Color, len(s.Palette))
		copy(p, s.Palette)
		dst = image.NewPaletted(r, p)
	case *image.CMYK:
		dst = image.NewCMYK(r)
	case *image.RGBA64:
		dst = image.NewRGBA64(r)
	case *image.NRGBA64:
		dst = image.NewNRGBA64(r)
	default:
		if src.Mode.SingleChannel() {
			return toGray(resized)
		}
		return resized
	}
	draw.Draw(dst, r, resized, r.Min, draw.Src)
	return dst
}

// FitDimensions computes the largest size with the aspect ratio of w x h that
// fits within the bounds. ok is false when w x h already fits.
func FitDimensions(w, h, maxW, maxH int) (nw, nh int, ok bool) {
	if w <= 0 || h <= 0 {
		return w, h, false
	}
	if maxW <= 0 {
		maxW = w
	}
	if maxH <= 0 {
		maxH = h
	}
	if w <= maxW && h <= maxH {
		return w, h, false
	}

	aspect := float64(w) / float64(h)
	if aspect > float64(maxW)/float64(maxH) {
		nw = maxW
		nh = int(math.Round(float64(maxW) / aspect))
	} else {
		nh = maxH
		nw = int(math.Round(float64(maxH) * aspect))
	}

	nw = clamp(nw, 1, maxW)
	nh = clamp(nh, 1, maxH)
	return nw, nh, true
}

// Grayscale converts img to luminance. Opaque images become single-channel
// *image.Gray; images with transparency keep their alpha channel next to
// equal R, G and B values.
func Grayscale(img codec.Image) codec.Image {
	gray := imaging.Grayscale(img.Pixels)
	if !gray.Opaque() {
		return img.WithPixels(gray)
	}
	return img.WithPixels(toGray(gray))
}

// toGray keeps the red channel of an NRGBA image whose channels already
// carry luminance.
func toGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range dstRow {
			dstRow[x] = srcRow[x*4]
		}
	}
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
