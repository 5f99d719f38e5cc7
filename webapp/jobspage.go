package webapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// JobsPage lists past conversions and folder exports
type JobsPage struct {
	app.Compo
	jobs        []Job
	typeFilter  string
	loading     bool
	error       string
	notice      string
	autoRefresh bool
	refresh     poller
}

// OnMount is called when the component is mounted
func (j *JobsPage) OnMount(ctx app.Context) {
	j.autoRefresh = true
	j.loadJobs(ctx)

	// Start auto-refresh every 2 seconds
	j.refresh.Start(ctx, 2*time.Second, func(ctx app.Context) {
		if j.autoRefresh {
			j.loadJobs(ctx)
		}
	})
}

// OnDismount is called when the component is unmounted
func (j *JobsPage) OnDismount() {
	j.refresh.Stop()
}

// Render renders the jobs page
func (j *JobsPage) Render() app.UI {
	return app.Div().
		Class("jobs-page").
		Body(
			app.H2().Text("Jobs"),
			app.P().Text("Every conversion and every export to the output folder is recorded here."),
			app.Div().Class("jobs-controls").Body(
				app.Select().Class("jobs-filter").OnChange(j.onFilterChange).Body(
					j.renderFilterOption("", "All jobs"),
					j.renderFilterOption("conversion", "Conversions"),
					j.renderFilterOption("export", "Exports"),
				),
				app.Button().
					Class("btn-primary").
					OnClick(func(ctx app.Context, e app.Event) { j.loadJobs(ctx) }).
					Disabled(j.loading).
					Text("Refresh"),
				app.Button().
					Class("btn-secondary").
					OnClick(j.onClearFinished).
					Text("Clear finished"),
				app.Label().Class("auto-refresh-label").Body(
					app.Input().
						Type("checkbox").
						Checked(j.autoRefresh).
						OnChange(func(ctx app.Context, e app.Event) {
							j.autoRefresh = ctx.JSSrc().Get("checked").Bool()
						}),
					app.Text(" Auto-refresh"),
				),
			),
			app.If(j.notice != "", func() app.UI {
				return app.Div().Class("info").Text(j.notice)
			}),
			j.renderList(),
		)
}

func (j *JobsPage) renderFilterOption(value, label string) app.UI {
	return app.Option().Value(value).Selected(j.typeFilter == value).Text(label)
}

func (j *JobsPage) renderList() app.UI {
	switch {
	case j.loading && len(j.jobs) == 0:
		return app.Div().Class("loading").Text("Loading jobs...")
	case j.error != "":
		return app.Div().Class("error").Text("Error: " + j.error)
	case len(j.jobs) == 0:
		return app.Div().Class("info").Body(
			app.P().Text("No jobs yet. Convert a PDF to create one."),
		)
	}
	return app.Div().Class("jobs-list").Body(
		app.Range(j.jobs).Slice(func(i int) app.UI {
			return renderJob(j.jobs[i])
		}),
	)
}

func renderJob(job Job) app.UI {
	return app.Div().
		Class("job-card job-"+job.Status).
		Body(
			app.Div().Class("job-header").Body(
				app.Div().Class("job-type").Body(
					app.Strong().Text(jobTypeLabel(job.Type)),
					app.Span().Class("job-status-badge job-status-"+job.Status).Text(job.Status),
				),
				app.Div().Class("job-time").Text(relativeTime(job.CreatedAt, time.Now())),
			),
			app.If(job.Status == "running", func() app.UI {
				return app.Div().Class("job-progress").Body(
					app.Div().Class("progress-bar").Body(
						app.Div().
							Class("progress-fill").
							Style("width", fmt.Sprintf("%d%%", job.Progress)),
					),
					app.Div().Class("progress-text").Text(fmt.Sprintf("%d%% - %s", job.Progress, job.CurrentStep)),
				)
			}),
			app.If(job.Message != "", func() app.UI {
				return app.Div().Class("job-message").Text(job.Message)
			}),
			app.If(job.Error != "", func() app.UI {
				return app.Div().Class("job-error").Body(
					app.Strong().Text("Error: "),
					app.Text(job.Error),
				)
			}),
			app.If(job.Result != "", func() app.UI {
				return app.Div().Class("job-result").Text(resultSummary(job.Result))
			}),
			app.Div().Class("job-footer").Body(
				app.Div().Class("job-id").Text("ID: "+job.ID),
				app.If(job.CompletedAt != "", func() app.UI {
					return app.Div().Class("job-completed").Text("Finished: " + relativeTime(job.CompletedAt, time.Now()))
				}),
			),
		)
}

// jobTypeLabel names a job type for display
func jobTypeLabel(jobType string) string {
	switch jobType {
	case "conversion":
		return "PDF Conversion"
	case "export":
		return "Export to Folder"
	default:
		return jobType
	}
}

// relativeTime shows an RFC 3339 timestamp relative to now when it is recent
func relativeTime(timeStr string, now time.Time) string {
	if timeStr == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, timeStr)
	if err != nil {
		return timeStr
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	}
	return t.Local().Format("Jan 2, 2006 at 3:04 PM")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// resultSummary turns a conversion or export result into one line
func resultSummary(result string) string {
	var data struct {
		File   string   `json:"file"`
		Pages  *int     `json:"pages"`
		Format string   `json:"format"`
		Saved  *int     `json:"saved"`
		Failed []string `json:"failed"`
	}
	if err := json.Unmarshal([]byte(result), &data); err != nil {
		return result
	}

	var parts []string
	if data.File != "" {
		parts = append(parts, "File: "+data.File)
	}
	if data.Pages != nil {
		parts = append(parts, fmt.Sprintf("Pages: %d", *data.Pages))
	}
	if data.Saved != nil {
		parts = append(parts, fmt.Sprintf("Saved: %d %s files", *data.Saved, strings.ToUpper(data.Format)))
	}
	if len(data.Failed) > 0 {
		parts = append(parts, "Failed: "+strings.Join(data.Failed, ", "))
	}
	if len(parts) == 0 {
		return result
	}
	return strings.Join(parts, ", ")
}

// jobsPath is the listing URL for a type filter
func jobsPath(typeFilter string) string {
	query := url.Values{}
	query.Set("limit", "50")
	if typeFilter != "" {
		query.Set("type", typeFilter)
	}
	return "/api/jobs?" + query.Encode()
}

func (j *JobsPage) onFilterChange(ctx app.Context, e app.Event) {
	j.typeFilter = ctx.JSSrc().Get("value").String()
	j.jobs = nil
	j.loadJobs(ctx)
}

func (j *JobsPage) onClearFinished(ctx app.Context, e app.Event) {
	fetchAPI(ctx, "/api/jobs", requestInit(http.MethodDelete), func(ctx app.Context, status int, body []byte, err error) {
		if err != nil || status != http.StatusOK {
			j.notice = "Could not clear finished jobs"
			return
		}
		var payload struct {
			Deleted int `json:"deleted"`
		}
		json.Unmarshal(body, &payload)
		j.notice = fmt.Sprintf("Removed %s", plural(payload.Deleted, "job"))
		j.loadJobs(ctx)
	})
}

// loadJobs fetches jobs from the API
func (j *JobsPage) loadJobs(ctx app.Context) {
	j.loading = true
	j.error = ""

	fetchAPI(ctx, jobsPath(j.typeFilter), nil, func(ctx app.Context, status int, body []byte, err error) {
		j.loading = false
		if err != nil {
			j.error = "Network error: Could not connect to server"
			return
		}
		if status != http.StatusOK {
			j.error = fmt.Sprintf("Failed to load jobs (status: %d)", status)
			return
		}
		var jobs []Job
		if err := json.Unmarshal(body, &jobs); err != nil {
			j.error = "Failed to parse jobs: " + err.Error()
			return
		}
		j.jobs = jobs
	})
}
