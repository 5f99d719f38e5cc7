package webapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Version info - can be set at build time with -ldflags
var (
	Version   = "dev"
	BuildDate = ""
)

// NavBar is the navigation bar component
type NavBar struct {
	app.Compo
	activeJobCount int
	refresh        poller
}

// Render renders the navigation bar
func (n *NavBar) Render() app.UI {
	return app.Nav().
		Class("navbar").
		Body(
			app.Div().Class("navbar-brand").Body(
				app.H1().Text("pdf2image"),
				app.Span().Class("version-info").Body(
					app.Text(versionInfo(Version, BuildDate, n.activeJobCount)),
				),
			),
			app.Div().Class("navbar-menu").Body(
				app.A().
					Href("/").
					Class("navbar-item").
					Body(app.Text("Convert")),
				app.A().
					Href("/jobs").
					Class("navbar-item").
					Body(app.Text("Jobs")),
				app.A().
					Href("/about").
					Class("navbar-item").
					Body(app.Text("About")),
			),
		)
}

// OnMount is called when the component is mounted
func (n *NavBar) OnMount(ctx app.Context) {
	n.loadActiveJobCount(ctx)

	// Start auto-refresh every 5 seconds
	n.refresh.Start(ctx, 5*time.Second, n.loadActiveJobCount)
}

// OnDismount is called when the component is unmounted
func (n *NavBar) OnDismount() {
	n.refresh.Stop()
}

// versionInfo returns formatted version and date information with job count
func versionInfo(version, buildDate string, activeJobs int) string {
	date := buildDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	jobInfo := ""
	if activeJobs > 0 {
		jobInfo = fmt.Sprintf(" | %d active job", activeJobs)
		if activeJobs > 1 {
			jobInfo += "s"
		}
	}

	return fmt.Sprintf("%s | %s%s", version, date, jobInfo)
}

// loadActiveJobCount fetches the count of active jobs from the API
func (n *NavBar) loadActiveJobCount(ctx app.Context) {
	fetchAPI(ctx, "/api/jobs/active", nil, func(ctx app.Context, status int, body []byte, err error) {
		// Silently fail - don't update job count on network error
		if err != nil {
			return
		}
		n.activeJobCount = 0
		if status != http.StatusOK {
			return
		}
		var jobs []Job
		if json.Unmarshal(body, &jobs) == nil {
			n.activeJobCount = len(jobs)
		}
	})
}
