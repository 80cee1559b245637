package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

const (
	watermarkAngle = -30 * math.Pi / 180
	watermarkAlpha = 90 // ~35% opacity
)

// Watermark stamps text diagonally across the center of the preview image.
// Font size tracks the shorter dimension (8%), the overlay is rotated -30
// degrees and composited at roughly 35% opacity. Output is PNG so the alpha
// blend survives re-encoding.
func Watermark(src []byte, text string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("watermark: decode: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	fontSize := float64(w) * 0.08
	if h < w {
		fontSize = float64(h) * 0.08
	}
	layer, err := renderTextLayer(text, fontSize)
	if err != nil {
		return nil, err
	}

	// Ensure an alpha channel, then composite the rotated text layer
	// centered on the canvas.
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), img, b.Min, xdraw.Src)

	lb := layer.Bounds()
	lx, ly := float64(lb.Dx())/2, float64(lb.Dy())/2
	cx, cy := float64(w)/2, float64(h)/2
	cos, sin := math.Cos(watermarkAngle), math.Sin(watermarkAngle)
	m := f64.Aff3{
		cos, -sin, cx - cos*lx + sin*ly,
		sin, cos, cy - sin*lx - cos*ly,
	}
	xdraw.BiLinear.Transform(canvas, m, layer, lb, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("watermark: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// renderTextLayer draws the watermark text onto its own transparent layer so
// it can be rotated as a unit.
func renderTextLayer(text string, size float64) (*image.NRGBA, error) {
	if size < 8 {
		size = 8
	}
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("watermark: parse font: %w", err)
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("watermark: build face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	width := font.MeasureString(face, text).Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	layer := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := font.Drawer{
		Dst:  layer,
		Src:  image.NewUniform(color.NRGBA{A: watermarkAlpha}),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	drawer.DrawString(text)
	return layer, nil
}
