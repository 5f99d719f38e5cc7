package webapp

import (
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// destination is a page the not-found screen can send people to
type destination struct {
	href, label, hint string
}

var destinations = []destination{
	{"/", "Convert a PDF", "Upload a PDF and download its pages as PNG or JPG"},
	{"/jobs", "Jobs", "Past conversions and exports to the output folder"},
	{"/about", "About", "Renderer, output folder and version"},
}

// NotFoundPage is shown for any client route the app does not know
type NotFoundPage struct {
	app.Compo
	Path string
}

// missingMessage names the path that could not be found
func missingMessage(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return "That page does not exist."
	}
	return "Nothing lives at " + path + "."
}

func (p *NotFoundPage) Render() app.UI {
	return app.Div().Class("not-found-page").Body(
		app.Div().Class("not-found-container").Body(
			app.H1().Class("not-found-title").Text("404"),
			app.P().Class("not-found-message").Text(missingMessage(p.Path)),
			app.Ul().Class("not-found-links").Body(
				app.Range(destinations).Slice(func(i int) app.UI {
					d := destinations[i]
					return app.Li().Body(
						app.A().Href(d.href).Class("not-found-home-link").Text(d.label),
						app.Span().Class("not-found-hint").Text(" "+d.hint),
					)
				}),
			),
		),
	)
}
