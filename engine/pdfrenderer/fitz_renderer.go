package pdfrenderer

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// nativeDPI is the resolution at which go-fitz reports page bounds (1pt = 1px)
const nativeDPI = 72.0

// FitzEngine implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzEngine struct {
}

// NewFitzEngine creates a new Fitz-based PDF engine
func NewFitzEngine() (*FitzEngine, error) {
	return &FitzEngine{}, nil
}

// Open parses a document held in memory
func (e *FitzEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	// MuPDF only reports bounds in whole points
	sizes, err := readPageSizes(data)
	if err != nil {
		Logger.Debug("Falling back to whole-point page sizes", "error", err)
	}
	return &fitzDocument{doc: doc, sizes: sizes}, nil
}

// Close cleans up resources (no-op for Fitz as each document is closed on its own)
func (e *FitzEngine) Close() error {
	return nil
}

type fitzDocument struct {
	doc   *fitz.Document
	sizes []pageSize
}

func (d *fitzDocument) PageCount() int { return d.doc.NumPage() }

func (d *fitzDocument) Page(ctx context.Context, number int) (Page, error) {
	if number < 1 || number > d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range 1-%d", number, d.doc.NumPage())
	}
	bounds, err := d.doc.Bound(number - 1)
	if err != nil {
		return nil, fmt.Errorf("unable to read bounds of page %d: %w", number, err)
	}
	var size pageSize
	if number <= len(d.sizes) {
		size = d.sizes[number-1]
	}
	width, height := refineBounds(bounds, size)
	return &fitzPage{doc: d.doc, index: number - 1, width: width, height: height}, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

type fitzPage struct {
	doc           *fitz.Document
	index         int
	width, height float64
}

func (p *fitzPage) Viewport(scale float64) Viewport {
	return NewViewport(p.width, p.height, scale)
}

// Render rasterizes at the viewport's DPI and copies into the surface
func (p *fitzPage) Render(ctx context.Context, surface *Surface, viewport Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := p.doc.ImageDPI(p.index, nativeDPI*viewport.Scale)
	if err != nil {
		return fmt.Errorf("unable to render page %d: %w", p.index+1, err)
	}
	surface.Fill(whiteBackground)
	surface.DrawImage(img)
	return nil
}
