// Package imaging holds the pre- and post-race image stages: upload
// normalization before any line-art generation is attempted, and the preview
// watermark stamped on the winning image.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// maxDimension caps the working resolution so per-request compute and
	// the payload shipped to providers stay bounded.
	maxDimension = 1280

	jpegQuality = 95
)

// Normalize standardizes an uploaded photo: corrects EXIF orientation,
// downscales so neither dimension exceeds 1280 (never upscales), and
// re-encodes as high-quality JPEG. On any decoding or processing error it
// returns the original bytes unchanged; a bad upload must degrade, never
// abort the flow. HEIC/HEIF cannot be decoded pure-Go and falls into the
// degraded path.
func Normalize(raw []byte, logger zerolog.Logger) []byte {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if isHEIC(raw) {
			logger.Warn().Msg("normalize: HEIC upload, passing original bytes through")
		} else {
			logger.Warn().Err(err).Msg("normalize: undecodable upload, passing original bytes through")
		}
		return raw
	}

	img = applyOrientation(img, orientation(raw))
	img = scaleWithin(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		logger.Warn().Err(err).Str("format", format).Msg("normalize: re-encode failed, passing original bytes through")
		return raw
	}
	return buf.Bytes()
}

// isHEIC sniffs the ISO BMFF ftyp box for HEIF family brands.
func isHEIC(raw []byte) bool {
	if len(raw) < 12 || string(raw[4:8]) != "ftyp" {
		return false
	}
	switch string(raw[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "hevm", "hevs", "mif1", "msf1":
		return true
	}
	return false
}

// orientation reads the EXIF Orientation tag, defaulting to 1 (upright).
func orientation(raw []byte) int {
	meta, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation bakes the EXIF orientation into the pixels so rotated
// phone photos display upright everywhere downstream.
func applyOrientation(img image.Image, o int) image.Image {
	if o <= 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	switch o {
	case 3, 2, 4:
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	default: // 5..8 swap axes
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch o {
			case 2: // mirror horizontal
				dst.Set(w-1-x, y, c)
			case 3: // rotate 180
				dst.Set(w-1-x, h-1-y, c)
			case 4: // mirror vertical
				dst.Set(x, h-1-y, c)
			case 5: // transpose
				dst.Set(y, x, c)
			case 6: // rotate 90 CW
				dst.Set(h-1-y, x, c)
			case 7: // transverse
				dst.Set(h-1-y, w-1-x, c)
			case 8: // rotate 270 CW
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

// scaleWithin downscales img so neither dimension exceeds bound, preserving
// aspect ratio. Smaller images pass through untouched.
func scaleWithin(img image.Image, bound int) image.Image {
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
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
