package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
)

var errBrokenPage = errors.New("broken content stream")

// fakeEngine renders gradients at fixed page sizes (in points)
type fakeEngine struct {
	sizes    [][2]float64
	openErr  error
	failPage int
	gate     chan struct{} // Render blocks until closed when set

	rendered   atomic.Int32
	closedDocs atomic.Int32
}

func newFakeEngine(pages int) *fakeEngine {
	f := &fakeEngine{}
	for i := 0; i < pages; i++ {
		f.sizes = append(f.sizes, [2]float64{100, 150})
	}
	return f
}

func (f *fakeEngine) Open(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeDocument{engine: f}, nil
}

func (f *fakeEngine) Close() error { return nil }

type fakeDocument struct {
	engine *fakeEngine
}

func (d *fakeDocument) PageCount() int { return len(d.engine.sizes) }

func (d *fakeDocument) Page(ctx context.Context, number int) (pdfrenderer.Page, error) {
	if number < 1 || number > len(d.engine.sizes) {
		return nil, fmt.Errorf("page %d out of range", number)
	}
	size := d.engine.sizes[number-1]
	return &fakePage{engine: d.engine, number: number, width: size[0], height: size[1]}, nil
}

func (d *fakeDocument) Close() error {
	d.engine.closedDocs.Add(1)
	return nil
}

type fakePage struct {
	engine        *fakeEngine
	number        int
	width, height float64
}

func (p *fakePage) Viewport(scale float64) pdfrenderer.Viewport {
	return pdfrenderer.NewViewport(p.width, p.height, scale)
}

func (p *fakePage) Render(ctx context.Context, surface *pdfrenderer.Surface, viewport pdfrenderer.Viewport) error {
	if p.engine.gate != nil {
		select {
		case <-p.engine.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.number == p.engine.failPage {
		return errBrokenPage
	}
	img := surface.Image()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / b.Dx()),
				G: uint8(y * 255 / b.Dy()),
				B: uint8(p.number * 60),
				A: 255,
			})
		}
	}
	p.engine.rendered.Add(1)
	return nil
}

// readyBridge returns a bridge that has finished loading eng
func readyBridge(t *testing.T, eng pdfrenderer.Engine) *pdfrenderer.Bridge {
	t.Helper()
	bridge := pdfrenderer.NewBridge(func(ctx context.Context) (pdfrenderer.Engine, error) {
		return eng, nil
	})
	require.NoError(t, bridge.EnsureReady(context.Background()))
	return bridge
}

// samplePDF builds a real document so uploads can also be inspected
func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "Letter", "")
	pdf.SetTitle("Quarterly report", false)
	pdf.SetFont("Helvetica", "", 24)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(72, 72, fmt.Sprintf("Page %d", i))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func pdfUpload(t *testing.T, pages int) Upload {
	return Upload{Name: "report.pdf", ContentType: PDFMediaType, Data: samplePDF(t, pages)}
}

// notReadyRenderer is a bridge that never finishes loading
type notReadyRenderer struct{}

func (notReadyRenderer) Ready() bool { return false }

func (notReadyRenderer) Engine() (pdfrenderer.Engine, error) { return nil, pdfrenderer.ErrNotReady }
