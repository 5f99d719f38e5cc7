package pdfrenderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumConfig sizes the WebAssembly worker pool
type PDFiumConfig struct {
	Workers int
	Timeout time.Duration // how long to wait for a free instance
}

// PDFiumEngine renders with go-pdfium on WebAssembly (pure Go, no CGo)
type PDFiumEngine struct {
	mu       sync.Mutex // one pdfium instance, one caller at a time
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumEngine starts the WebAssembly worker pool and checks out an instance
func NewPDFiumEngine(cfg PDFiumConfig) (*PDFiumEngine, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  cfg.Workers,
		MaxTotal: cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(cfg.Timeout)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	Logger.Info("PDFium worker pool configured", "workers", cfg.Workers)

	return &PDFiumEngine{
		pool:     pool,
		instance: instance,
	}, nil
}

// Open loads a document from memory
func (e *PDFiumEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := e.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		e.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{engine: e, doc: doc.Document, pages: pageCountResp.PageCount}, nil
}

// Close cleans up resources used by the PDFium engine
func (e *PDFiumEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	e.instance = nil
	return nil
}

type pdfiumDocument struct {
	engine *PDFiumEngine
	doc    references.FPDF_DOCUMENT
	pages  int
}

func (d *pdfiumDocument) PageCount() int { return d.pages }

func (d *pdfiumDocument) Page(ctx context.Context, number int) (Page, error) {
	if number < 1 || number > d.pages {
		return nil, fmt.Errorf("page %d out of range 1-%d", number, d.pages)
	}
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()

	size, err := d.engine.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.doc,
		Index:    number - 1,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to read size of page %d: %w", number, err)
	}
	return &pdfiumPage{doc: d, index: number - 1, width: size.Width, height: size.Height}, nil
}

func (d *pdfiumDocument) Close() error {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()
	_, err := d.engine.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	return err
}

type pdfiumPage struct {
	doc           *pdfiumDocument
	index         int
	width, height float64 // points
}

func (p *pdfiumPage) Viewport(scale float64) Viewport {
	return NewViewport(p.width, p.height, scale)
}

// Render rasterizes straight to the surface's pixel grid
func (p *pdfiumPage) Render(ctx context.Context, surface *Surface, viewport Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size := surface.Bounds().Size()

	engine := p.doc.engine
	engine.mu.Lock()
	defer engine.mu.Unlock()

	pageRender, err := engine.instance.RenderPageInPixels(&requests.RenderPageInPixels{
		Width:  size.X,
		Height: size.Y,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: p.doc.doc,
				Index:    p.index,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to render page %d: %w", p.index+1, err)
	}
	// Clean up WebAssembly resources for this page
	defer pageRender.Cleanup()

	surface.Fill(whiteBackground)
	surface.DrawImage(pageRender.Result.Image)
	return nil
}
