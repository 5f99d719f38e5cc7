package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

var ErrInvalidSurface = errors.New("invalid surface size")

// pages are composited onto white, as a PDF viewer shows them
var whiteBackground = color.White

// Surface is an in-memory pixel buffer pages are drawn into.
// It keeps the requested size exactly; the pixel grid drops any fractional
// part, the same way a canvas does when given a fractional width.
type Surface struct {
	width  float64
	height float64
	img    *image.RGBA
}

// NewSurface allocates a surface of the given size
func NewSurface(width, height float64) (*Surface, error) {
	if math.IsNaN(width) || math.IsNaN(height) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidSurface, width, height)
	}
	w, h := int(width), int(height)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidSurface, width, height)
	}
	return &Surface{width: width, height: height, img: image.NewRGBA(image.Rect(0, 0, w, h))}, nil
}

// Width is the requested width
func (s *Surface) Width() float64 { return s.width }

// Height is the requested height
func (s *Surface) Height() float64 { return s.height }

// Bounds is the pixel grid
func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// Image exposes the pixel buffer
func (s *Surface) Image() *image.RGBA { return s.img }

// Fill paints every pixel with c
func (s *Surface) Fill(c color.Color) {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawImage paints src over the whole surface, scaling when sizes differ
func (s *Surface) DrawImage(src image.Image) {
	if src.Bounds().Size() == s.img.Bounds().Size() {
		draw.Draw(s.img, s.img.Bounds(), src, src.Bounds().Min, draw.Over)
		return
	}
	draw.CatmullRom.Scale(s.img, s.img.Bounds(), src, src.Bounds(), draw.Over, nil)
}
