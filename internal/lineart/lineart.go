// Package lineart converts a photo into high-contrast black-and-white line
// art with no external dependency. It is the guaranteed-available fallback in
// the preview race, so it must stay deterministic and bounded: pure pixel
// work on a capped canvas, no I/O.
package lineart

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/dillydallydog/dogart/internal/domain"
)

// Variant selects one of the two supported filter pipelines. They are kept
// separate rather than merged because their noise/detail tradeoffs differ by
// input: Classic keeps more fine detail, Smooth suppresses spurious lines on
// noisy phone photos.
type Variant string

const (
	VariantClassic Variant = "classic"
	VariantSmooth  Variant = "smooth"
)

// ParseVariant sanitizes free-form configuration into a supported variant.
func ParseVariant(s string) Variant {
	if Variant(strings.ToLower(strings.TrimSpace(s))) == VariantSmooth {
		return VariantSmooth
	}
	return VariantClassic
}

const maxCanvas = 1024

// Laplacian kernels used for edge emphasis. laplacian8 weighs the full
// 8-neighborhood, laplacian4 only the cross neighbors.
var (
	laplacian8 = [9]int{-1, -1, -1, -1, 8, -1, -1, -1, -1}
	laplacian4 = [9]int{0, -1, 0, -1, 4, -1, 0, -1, 0}
	sharpen    = [9]int{0, -1, 0, -1, 5, -1, 0, -1, 0}
)

// Render produces white-stroke-on-black line art as a PNG. Same input bytes
// and variant always yield byte-identical output. Every internal failure is
// reported as domain.ErrConversionFailed; callers must still treat this as
// fallible even though it is the terminal fallback.
func Render(src []byte, v Variant) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("lineart: panic during conversion: %v: %w", r, domain.ErrConversionFailed)
		}
	}()

	img, _, decErr := image.Decode(bytes.NewReader(src))
	if decErr != nil {
		return nil, fmt.Errorf("lineart: decode: %v: %w", decErr, domain.ErrConversionFailed)
	}

	gray := toGray(fitWithin(img, maxCanvas))

	var edges *image.Gray
	switch v {
	case VariantSmooth:
		denoised := median3(gray)
		a := stretch(convolve3(denoised, laplacian8))
		b := stretch(convolve3(denoised, laplacian4))
		edges = multiply(a, b)
		edges = threshold(edges, 150)
	default:
		edges = stretch(convolve3(gray, laplacian8))
		edges = stretch(convolve3(edges, sharpen))
		edges = threshold(edges, 128)
	}
	invert(edges)

	var buf bytes.Buffer
	if encErr := png.Encode(&buf, edges); encErr != nil {
		return nil, fmt.Errorf("lineart: encode: %v: %w", encErr, domain.ErrConversionFailed)
	}
	return buf.Bytes(), nil
}

// fitWithin scales img so neither dimension exceeds bound, preserving aspect
// ratio and never enlarging.
func fitWithin(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= bound && h <= bound {
		return img
	}
	scale := float64(bound) / float64(w)
	if h > w {
		scale = float64(bound) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// convolve3 applies a 3x3 kernel, clamping each output sample to [0, 255].
// Border pixels use edge replication.
func convolve3(src *image.Gray, kernel [9]int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(grayAt(src, x+dx, y+dy)) * kernel[k]
					k++
				}
			}
			dst.Pix[y*dst.Stride+x] = clamp8(sum)
		}
	}
	return dst
}

// stretch linearly rescales the intensity range to the full 0..255 scale.
func stretch(src *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, p := range src.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if hi <= lo {
		return src
	}
	span := int(hi) - int(lo)
	for i, p := range src.Pix {
		src.Pix[i] = uint8((int(p) - int(lo)) * 255 / span)
	}
	return src
}

// median3 replaces each pixel with the median of its 3x3 neighborhood.
func median3(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	var window [9]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = int(grayAt(src, x+dx, y+dy))
					k++
				}
			}
			neighborhood := window[:]
			sort.Ints(neighborhood)
			dst.Pix[y*dst.Stride+x] = uint8(neighborhood[4])
		}
	}
	return dst
}

// multiply blends two equally sized edge maps multiplicatively, which keeps
// only strokes both maps agree on.
func multiply(a, b *image.Gray) *image.Gray {
	for i := range a.Pix {
		a.Pix[i] = uint8(int(a.Pix[i]) * int(b.Pix[i]) / 255)
	}
	return a
}

// threshold forces every pixel to pure black or pure white.
func threshold(src *image.Gray, t uint8) *image.Gray {
	for i, p := range src.Pix {
		if p >= t {
			src.Pix[i] = 255
		} else {
			src.Pix[i] = 0
		}
	}
	return src
}

func invert(src *image.Gray) {
	for i, p := range src.Pix {
		src.Pix[i] = 255 - p
	}
}

func grayAt(src *image.Gray, x, y int) uint8 {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return src.Pix[y*src.Stride+x]
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
