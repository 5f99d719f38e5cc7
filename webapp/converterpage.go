package webapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/drummonds/pdf2image/export"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

const (
	pdfMediaType     = "application/pdf"
	msgNotPDF        = "Please upload a PDF file"
	msgStillLoading  = "The PDF renderer is still loading, please try again shortly"
	defaultStaggerMs = 500
	defaultMaxMB     = 100
)

// ConverterPage uploads a PDF, shows its pages and downloads them
type ConverterPage struct {
	app.Compo

	status    StatusInfo
	statusErr string
	about     AboutInfo

	phase    string
	errMsg   string
	document *DocumentInfo
	pages    []PageInfo
	options  export.Options
	notice   string

	statusPoll poller
}

// OnMount is called when the component is mounted
func (p *ConverterPage) OnMount(ctx app.Context) {
	p.phase = "idle"
	p.options = export.DefaultOptions()
	p.loadAbout(ctx)
	p.loadSession(ctx)
	p.loadStatus(ctx)

	// Poll until the renderer has finished loading
	p.statusPoll.Start(ctx, time.Second, func(ctx app.Context) {
		if p.status.RendererReady || p.status.RendererError != "" {
			p.statusPoll.Stop()
			return
		}
		p.loadStatus(ctx)
	})
}

// OnDismount is called when the component is unmounted
func (p *ConverterPage) OnDismount() {
	p.statusPoll.Stop()
}

func (p *ConverterPage) processing() bool {
	return p.phase == "processing"
}

// canUpload is true once the renderer is ready and nothing is converting
func (p *ConverterPage) canUpload() bool {
	return p.status.RendererReady && !p.processing()
}

// Render renders the converter page
func (p *ConverterPage) Render() app.UI {
	return app.Div().Class("converter-page").Body(
		p.renderHeader(),
		p.renderUpload(),
		app.If(len(p.pages) > 0 && !p.processing(), func() app.UI {
			return p.renderControls()
		}),
		app.If(p.processing(), func() app.UI {
			return app.Div().Class("converter-loading").Body(
				app.Div().Class("spinner"),
				app.H3().Text("Processing your document..."),
				app.P().Text("Documents with many pages can take a little while."),
			)
		}),
		app.If(len(p.pages) > 0 && !p.processing(), func() app.UI {
			return p.renderGrid()
		}),
	)
}

func (p *ConverterPage) renderHeader() app.UI {
	return app.Div().Class("converter-header").Body(
		app.H2().Text("PDF to Image"),
		app.P().Text("Convert your PDF into high quality PNG or JPG images. "+
			"Pages are rendered on this machine and never leave it."),
		app.If(!p.status.RendererReady && p.status.RendererError == "" && p.statusErr == "", func() app.UI {
			return app.Div().Class("status-chip status-loading").Body(
				app.Span().Class("spinner-small"),
				app.Text("Initializing conversion engine..."),
			)
		}),
		app.If(p.status.RendererError != "", func() app.UI {
			return app.Div().Class("status-chip status-error").Text(p.status.RendererError)
		}),
		app.If(p.statusErr != "", func() app.UI {
			return app.Div().Class("status-chip status-error").Text(p.statusErr)
		}),
		app.If(p.errMsg != "", func() app.UI {
			return app.Div().Class("status-chip status-error").Text(p.errMsg)
		}),
		app.If(p.notice != "", func() app.UI {
			return app.Div().Class("status-chip status-info").Text(p.notice)
		}),
	)
}

func (p *ConverterPage) uploadPrompt() string {
	switch {
	case p.processing():
		return "Processing..."
	case p.status.RendererReady:
		return "Click to choose a PDF file"
	default:
		return "Preparing..."
	}
}

func (p *ConverterPage) maxUploadMB() int {
	if p.about.MaxUploadMB > 0 {
		return p.about.MaxUploadMB
	}
	return defaultMaxMB
}

func (p *ConverterPage) renderUpload() app.UI {
	areaClass := "upload-area"
	if !p.canUpload() {
		areaClass += " upload-disabled"
	}
	return app.Div().Class("upload-section").Body(
		app.Label().Class(areaClass).Body(
			app.Div().Class("upload-icon").Text("⬆"),
			app.P().Class("upload-prompt").Text(p.uploadPrompt()),
			app.P().Class("upload-hint").Text(fmt.Sprintf("PDF documents up to %d MB", p.maxUploadMB())),
			app.Input().
				Type("file").
				Class("upload-input").
				Accept(pdfMediaType).
				Disabled(!p.canUpload()).
				OnChange(p.onFileSelected),
		),
		app.If(p.document != nil, func() app.UI {
			return app.Div().Class("file-chip").Body(
				app.Span().Class("file-chip-name").Text(p.document.Name),
				app.Span().Class("file-chip-badge").Text(documentBadge(p.document)),
			)
		}),
	)
}

// documentBadge labels the file chip
func documentBadge(doc *DocumentInfo) string {
	if doc.Version != "" {
		return "PDF " + doc.Version
	}
	return "PDF"
}

func (p *ConverterPage) renderControls() app.UI {
	return app.Div().Class("control-panel").Body(
		app.Div().Class("control-group").Body(
			app.Span().Class("control-label").Text("Output format:"),
			app.Div().Class("format-toggle").Body(
				p.renderFormatButton(export.FormatPNG, "PNG"),
				p.renderFormatButton(export.FormatJPG, "JPG"),
			),
			app.If(p.options.Format == export.FormatJPG, func() app.UI {
				return app.Div().Class("quality-control").Body(
					app.Span().Class("control-label").Text("Quality:"),
					app.Input().
						Type("range").
						Attr("min", strconv.FormatFloat(export.MinQuality, 'f', -1, 64)).
						Attr("max", strconv.FormatFloat(export.MaxQuality, 'f', -1, 64)).
						Attr("step", strconv.FormatFloat(export.QualityStep, 'f', -1, 64)).
						Value(strconv.FormatFloat(p.options.Quality, 'f', -1, 64)).
						OnInput(p.onQualityInput).
						OnChange(p.onQualityChange),
					app.Span().Class("quality-value").Text(fmt.Sprintf("%d%%", QualityPercent(p.options.Quality))),
				)
			}),
		),
		app.Div().Class("control-actions").Body(
			app.Button().
				Class("btn-secondary").
				OnClick(p.onExportToFolder).
				Text("Save to output folder"),
			app.Button().
				Class("btn-primary").
				OnClick(p.onDownloadAll).
				Text(fmt.Sprintf("Download all (%d)", len(p.pages))),
		),
	)
}

func (p *ConverterPage) renderFormatButton(format export.Format, label string) app.UI {
	class := "format-button"
	if p.options.Format == format {
		class += " format-active"
	}
	return app.Button().
		Class(class).
		OnClick(func(ctx app.Context, e app.Event) {
			p.options.Format = format
			p.saveOptions(ctx)
		}).
		Text(label)
}

func (p *ConverterPage) renderGrid() app.UI {
	return app.Div().Class("page-grid").Body(
		app.Range(p.pages).Slice(func(i int) app.UI {
			page := p.pages[i]
			return app.Div().Class("page-card").Body(
				app.Div().Class("page-preview").Body(
					app.Img().
						Src(page.DataURI).
						Alt(fmt.Sprintf("Page %d", page.PageNum)),
				),
				app.Div().Class("page-footer").Body(
					app.Div().Class("page-meta").Body(
						app.Span().Class("page-number").Text(fmt.Sprintf("Page %d", page.PageNum)),
						app.Span().Class("page-size").Text(DimensionsLabel(page.Width, page.Height)),
					),
					app.Button().
						Class("btn-download").
						Title("Download this page").
						OnClick(func(ctx app.Context, e app.Event) {
							p.downloadPage(i)
						}).
						Text("Download"),
				),
			)
		}),
	)
}

// SelectionProblem returns why a chosen file cannot be converted, or ""
func SelectionProblem(fileType string, rendererReady bool) string {
	if fileType != pdfMediaType {
		return msgNotPDF
	}
	if !rendererReady {
		return msgStillLoading
	}
	return ""
}

// onFileSelected uploads the chosen file for conversion
func (p *ConverterPage) onFileSelected(ctx app.Context, e app.Event) {
	input := ctx.JSSrc()
	files := input.Get("files")
	if !files.Truthy() || files.Length() == 0 {
		return
	}
	file := files.Index(0)
	// allow choosing the same file again
	defer input.Set("value", "")

	if problem := SelectionProblem(file.Get("type").String(), p.status.RendererReady); problem != "" {
		app.Window().Call("alert", problem)
		return
	}

	form := app.Window().Get("FormData").New()
	form.Call("append", "pdf", file)
	init := requestInit(http.MethodPost)
	init.Set("body", form)

	p.phase = "processing"
	p.errMsg = ""
	p.notice = ""
	p.pages = nil
	p.document = &DocumentInfo{Name: file.Get("name").String()}

	fetchAPI(ctx, "/api/convert", init, func(ctx app.Context, status int, body []byte, err error) {
		switch {
		case err != nil:
			p.phase = "error"
			p.errMsg = err.Error()
		case status == http.StatusOK:
			p.applySession(body)
		case status == http.StatusUnprocessableEntity:
			p.phase = "error"
			p.errMsg = apiError(status, body)
		default:
			// the server refused before converting; show what it still holds
			app.Window().Call("alert", apiError(status, body))
			p.loadSession(ctx)
		}
	})
}

func (p *ConverterPage) applySession(body []byte) {
	var session SessionInfo
	if err := json.Unmarshal(body, &session); err != nil {
		p.errMsg = "Failed to parse response: " + err.Error()
		return
	}
	p.phase = session.Phase
	p.errMsg = session.Error
	p.document = session.Document
	p.pages = session.Pages
	if session.Options.Validate() == nil {
		p.options = session.Options
	}
}

func (p *ConverterPage) onQualityInput(ctx app.Context, e app.Event) {
	if q, err := strconv.ParseFloat(ctx.JSSrc().Get("value").String(), 64); err == nil {
		p.options.Quality = q
	}
}

func (p *ConverterPage) onQualityChange(ctx app.Context, e app.Event) {
	p.onQualityInput(ctx, e)
	p.saveOptions(ctx)
}

// saveOptions stores the output settings in the server session
func (p *ConverterPage) saveOptions(ctx app.Context) {
	init, err := jsonRequestInit(http.MethodPut, p.options)
	if err != nil {
		p.errMsg = err.Error()
		return
	}
	fetchAPI(ctx, "/api/options", init, func(ctx app.Context, status int, body []byte, err error) {
		if err != nil || status != http.StatusOK {
			p.notice = "Could not save output settings"
		}
	})
}

// downloadPage triggers a browser download for the page at index
func (p *ConverterPage) downloadPage(index int) {
	if index < 0 || index >= len(p.pages) {
		return
	}
	link := app.Window().Get("document").Call("createElement", "a")
	link.Set("href", DownloadURL(p.pages[index].PageNum, p.options))
	link.Set("download", export.FileName(index, p.options.Format))
	link.Call("click")
}

func (p *ConverterPage) stagger() time.Duration {
	ms := p.about.StaggerMs
	if ms <= 0 {
		ms = defaultStaggerMs
	}
	return time.Duration(ms) * time.Millisecond
}

// onDownloadAll downloads every page, one per stagger interval so the browser allows them
func (p *ConverterPage) onDownloadAll(ctx app.Context, e app.Event) {
	stagger := p.stagger()
	for i := range p.pages {
		ctx.After(time.Duration(i)*stagger, func(ctx app.Context) {
			p.downloadPage(i)
		})
	}
}

// onExportToFolder asks the server to write every page to its output folder
func (p *ConverterPage) onExportToFolder(ctx app.Context, e app.Event) {
	fetchAPI(ctx, "/api/export", requestInit(http.MethodPost), func(ctx app.Context, status int, body []byte, err error) {
		if err != nil {
			p.notice = err.Error()
			return
		}
		if status != http.StatusAccepted {
			p.notice = apiError(status, body)
			return
		}
		var info ExportInfo
		if err := json.Unmarshal(body, &info); err != nil {
			p.notice = "Export scheduled"
			return
		}
		p.notice = fmt.Sprintf("Saving %d files to %s", len(info.Files), info.Directory)
	})
}

func (p *ConverterPage) loadStatus(ctx app.Context) {
	fetchAPI(ctx, "/api/status", nil, func(ctx app.Context, status int, body []byte, err error) {
		if err != nil {
			p.statusErr = err.Error()
			return
		}
		p.statusErr = ""
		if err := json.Unmarshal(body, &p.status); err != nil {
			p.statusErr = "Failed to parse status: " + err.Error()
		}
	})
}

func (p *ConverterPage) loadSession(ctx app.Context) {
	fetchAPI(ctx, "/api/pages", nil, func(ctx app.Context, status int, body []byte, err error) {
		if err == nil && status == http.StatusOK {
			p.applySession(body)
		}
	})
}

func (p *ConverterPage) loadAbout(ctx app.Context) {
	fetchAPI(ctx, "/api/about", nil, func(ctx app.Context, status int, body []byte, err error) {
		if err == nil && status == http.StatusOK {
			json.Unmarshal(body, &p.about)
		}
	})
}
