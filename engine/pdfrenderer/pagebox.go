package pdfrenderer

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/ledongthuc/pdf"
)

// pageSize is a page's visible area in points, after /Rotate
type pageSize struct {
	width, height float64
}

// readPageSizes reads every page's crop box (falling back to the media box)
// with its fractional part intact. It returns nil when the structure cannot be read.
func readPageSizes(data []byte) (sizes []pageSize, err error) {
	defer func() {
		if r := recover(); r != nil {
			sizes, err = nil, fmt.Errorf("unable to read page boxes: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to read page boxes: %w", err)
	}
	sizes = make([]pageSize, reader.NumPage())
	for i := range sizes {
		page := reader.Page(i + 1).V
		box, ok := rectOf(inherited(page, "MediaBox"))
		if !ok {
			continue
		}
		if crop, ok := rectOf(inherited(page, "CropBox")); ok {
			box = box.intersect(crop)
		}
		size := pageSize{width: box.x1 - box.x0, height: box.y1 - box.y0}
		if rotation(page)%180 != 0 {
			size.width, size.height = size.height, size.width
		}
		sizes[i] = size
	}
	return sizes, nil
}

type pdfRect struct {
	x0, y0, x1, y1 float64
}

func rectOf(v pdf.Value) (pdfRect, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return pdfRect{}, false
	}
	r := pdfRect{
		x0: math.Min(v.Index(0).Float64(), v.Index(2).Float64()),
		y0: math.Min(v.Index(1).Float64(), v.Index(3).Float64()),
		x1: math.Max(v.Index(0).Float64(), v.Index(2).Float64()),
		y1: math.Max(v.Index(1).Float64(), v.Index(3).Float64()),
	}
	return r, r.x1 > r.x0 && r.y1 > r.y0
}

func (r pdfRect) intersect(o pdfRect) pdfRect {
	out := pdfRect{
		x0: math.Max(r.x0, o.x0),
		y0: math.Max(r.y0, o.y0),
		x1: math.Min(r.x1, o.x1),
		y1: math.Min(r.y1, o.y1),
	}
	if out.x1 <= out.x0 || out.y1 <= out.y0 {
		return r
	}
	return out
}

// maxTreeDepth bounds the walk up a page tree that may be cyclic
const maxTreeDepth = 64

// inherited looks key up on the page and then its ancestors in the page tree
func inherited(page pdf.Value, key string) pdf.Value {
	v := page
	for depth := 0; depth < maxTreeDepth && v.Kind() == pdf.Dict; depth++ {
		if value := v.Key(key); !value.IsNull() {
			return value
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

// rotation is the page's /Rotate normalized to 0, 90, 180 or 270
func rotation(page pdf.Value) int {
	degrees := int(inherited(page, "Rotate").Int64()) % 360
	if degrees < 0 {
		degrees += 360
	}
	return degrees / 90 * 90
}

// refineBounds prefers the fractional size when it matches whole-point bounds,
// which differ from the true size by less than a point on each axis
func refineBounds(bounds image.Rectangle, size pageSize) (width, height float64) {
	width, height = float64(bounds.Dx()), float64(bounds.Dy())
	if size.width <= 0 || size.height <= 0 {
		return width, height
	}
	if math.Abs(size.width-width) <= 1 && math.Abs(size.height-height) <= 1 {
		return size.width, size.height
	}
	return width, height
}
