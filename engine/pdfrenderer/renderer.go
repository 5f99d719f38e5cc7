package pdfrenderer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Engine is the part of a PDF rendering library this program relies on
type Engine interface {
	// Open parses a PDF held in memory
	Open(ctx context.Context, data []byte) (Document, error)

	// Close cleans up any resources used by the engine
	Close() error
}

// Document is one parsed PDF
type Document interface {
	PageCount() int
	// Page returns the page at a 1-based index
	Page(ctx context.Context, number int) (Page, error)
	Close() error
}

// Page is a single page of a Document
type Page interface {
	// Viewport returns the page bounds at the given magnification
	Viewport(scale float64) Viewport
	// Render draws the page content into surface using viewport
	Render(ctx context.Context, surface *Surface, viewport Viewport) error
}

// Viewport is a page's visual bounds at a scale, in device pixels
type Viewport struct {
	Width  float64
	Height float64
	Scale  float64
}

// NewViewport scales native page dimensions (PDF points)
func NewViewport(nativeWidth, nativeHeight, scale float64) Viewport {
	return Viewport{Width: nativeWidth * scale, Height: nativeHeight * scale, Scale: scale}
}

// Loader initializes an Engine; it runs once per Bridge
type Loader func(ctx context.Context) (Engine, error)

// NewLoader returns the loader for a configured engine name
func NewLoader(name string, workers int) (Loader, error) {
	switch strings.ToLower(name) {
	case "", "pdfium":
		return func(ctx context.Context) (Engine, error) {
			return NewPDFiumEngine(PDFiumConfig{Workers: workers})
		}, nil
	case "fitz", "mupdf":
		return func(ctx context.Context) (Engine, error) {
			return NewFitzEngine()
		}, nil
	}
	return nil, fmt.Errorf("unknown render engine %q (supported: pdfium, fitz)", name)
}
