package webapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutPage displays information about the application
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	fetchAPI(ctx, "/api/about", nil, func(ctx app.Context, status int, body []byte, err error) {
		a.loading = false
		switch {
		case err != nil:
			a.error = "Network error"
		case status != http.StatusOK:
			a.error = apiError(status, body)
		default:
			if err := json.Unmarshal(body, &a.aboutInfo); err != nil {
				a.error = fmt.Sprintf("Failed to parse response: %v", err)
			}
		}
	})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdf2image"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdf2image"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About pdf2image"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Application Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Renderer", a.getEngineDisplay()),
					a.renderInfoItem("Job Database", a.getDatabaseDisplay()),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Rendering"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Render Scale: "),
						app.Text(fmt.Sprintf("%gx", a.aboutInfo.RenderScale)),
					),
					app.If(a.aboutInfo.Engine == "pdfium", func() app.UI {
						return app.P().Body(
							app.Strong().Text("PDFium Workers: "),
							app.Text(fmt.Sprint(a.aboutInfo.PDFiumWorkers)),
						)
					}),
					app.P().Body(
						app.Strong().Text("Upload Limit: "),
						app.Text(fmt.Sprintf("%d MB", a.aboutInfo.MaxUploadMB)),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Export"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Output Folder: "),
						app.Text(a.aboutInfo.OutputPath),
					),
					app.P().Body(
						app.Strong().Text("Download Interval: "),
						app.Text(a.getStaggerDisplay()),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About pdf2image"),
				app.P().Text("pdf2image turns every page of a PDF into a PNG or JPG image."),
				app.P().Text("Documents are rendered locally and are never uploaded to a third party."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

// getDatabaseDisplay returns a user-friendly database display name
func (a *AboutPage) getDatabaseDisplay() string {
	switch a.aboutInfo.DatabaseType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	case "memory", "":
		return "In-memory"
	default:
		return a.aboutInfo.DatabaseType
	}
}

// getEngineDisplay names the PDF rendering backend
func (a *AboutPage) getEngineDisplay() string {
	switch a.aboutInfo.Engine {
	case "pdfium":
		return "PDFium (WebAssembly)"
	case "fitz", "mupdf":
		return "MuPDF"
	default:
		return a.aboutInfo.Engine
	}
}

func (a *AboutPage) getStaggerDisplay() string {
	return (time.Duration(a.aboutInfo.StaggerMs) * time.Millisecond).String()
}
