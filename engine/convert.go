package engine

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/drummonds/pdf2image/export"
)

const (
	// RenderScale is the device pixel ratio pages are rasterized at
	RenderScale = 2.0

	PDFMediaType = "application/pdf"
)

// Upload is a file handed to the converter
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// PageImage is one rasterized page
type PageImage struct {
	PageNum int                  `json:"pageNum"`
	Surface *pdfrenderer.Surface `json:"-"`
	DataURI string               `json:"dataUri"`
	Width   float64              `json:"width"`
	Height  float64              `json:"height"`
}

// Renderer is the part of the bridge a converter needs
type Renderer interface {
	Ready() bool
	Engine() (pdfrenderer.Engine, error)
}

// ProgressFunc is told after each page is rendered
type ProgressFunc func(page, total int)

// Converter turns a PDF into page images
type Converter struct {
	renderer Renderer
	scale    float64
}

// ConverterOption configures a Converter
type ConverterOption func(*Converter)

// WithScale overrides RenderScale
func WithScale(scale float64) ConverterOption {
	return func(c *Converter) {
		if scale > 0 {
			c.scale = scale
		}
	}
}

// NewConverter renders through renderer at RenderScale unless overridden
func NewConverter(renderer Renderer, opts ...ConverterOption) *Converter {
	c := &Converter{renderer: renderer, scale: RenderScale}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scale is the magnification pages are rendered at
func (c *Converter) Scale() float64 {
	return c.scale
}

// Validate checks that upload can be converted right now without starting any work
func (c *Converter) Validate(upload Upload) error {
	if upload.ContentType != PDFMediaType {
		return invalid(ErrInvalidType, fmt.Sprintf("%s has type %q", upload.Name, upload.ContentType))
	}
	if !c.renderer.Ready() {
		if _, err := c.renderer.Engine(); errors.Is(err, ErrLoadFailure) {
			return err
		}
		return invalid(ErrNotReady, "")
	}
	return nil
}

// Convert renders every page of upload in order
func (c *Converter) Convert(ctx context.Context, upload Upload) ([]PageImage, error) {
	return c.ConvertWithProgress(ctx, upload, nil)
}

// ConvertWithProgress is Convert with a per-page callback.
// Pages are rendered one after another; the first failure discards every
// page rendered so far.
func (c *Converter) ConvertWithProgress(ctx context.Context, upload Upload, progress ProgressFunc) ([]PageImage, error) {
	if err := c.Validate(upload); err != nil {
		return nil, err
	}
	eng, err := c.renderer.Engine()
	if err != nil {
		return nil, err
	}

	doc, err := eng.Open(ctx, upload.Data)
	if err != nil {
		return nil, &ConversionFailure{Cause: fmt.Errorf("unable to open %s: %w", upload.Name, err)}
	}
	defer doc.Close()

	total := doc.PageCount()
	if total < 1 {
		return nil, &ConversionFailure{Cause: errors.New("document has no pages")}
	}
	Logger.Info("Converting PDF", "name", upload.Name, "pages", total, "scale", c.scale)

	pages := make([]PageImage, 0, total)
	for number := 1; number <= total; number++ {
		if err := ctx.Err(); err != nil {
			return nil, &ConversionFailure{Page: number, Cause: err}
		}
		page, err := c.renderPage(ctx, doc, number)
		if err != nil {
			Logger.Error("Page conversion failed", "name", upload.Name, "page", number, "error", err)
			return nil, &ConversionFailure{Page: number, Cause: err}
		}
		pages = append(pages, page)
		if progress != nil {
			progress(number, total)
		}
	}

	Logger.Info("PDF converted", "name", upload.Name, "pages", len(pages))
	return pages, nil
}

func (c *Converter) renderPage(ctx context.Context, doc pdfrenderer.Document, number int) (PageImage, error) {
	page, err := doc.Page(ctx, number)
	if err != nil {
		return PageImage{}, err
	}
	viewport := page.Viewport(c.scale)
	surface, err := pdfrenderer.NewSurface(viewport.Width, viewport.Height)
	if err != nil {
		return PageImage{}, err
	}
	if err := page.Render(ctx, surface, viewport); err != nil {
		return PageImage{}, err
	}
	uri, err := export.DataURI(surface.Image())
	if err != nil {
		return PageImage{}, err
	}
	return PageImage{
		PageNum: number,
		Surface: surface,
		DataURI: uri,
		Width:   viewport.Width,
		Height:  viewport.Height,
	}, nil
}

// Images returns the pixel buffers of pages in order
func Images(pages []PageImage) []image.Image {
	images := make([]image.Image, len(pages))
	for i, page := range pages {
		images[i] = page.Surface.Image()
	}
	return images
}
