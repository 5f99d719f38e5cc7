package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/drummonds/pdf2image/export"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

var errNetwork = errors.New("network error: could not connect to server")

// GetAPIBaseURL returns the configured API base URL
// It reads from window.pdf2imageConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	// Check if config is available in browser
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	config := app.Window().Get("pdf2imageConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			url := apiURL.String()
			// Ensure no trailing slash
			if len(url) > 0 && url[len(url)-1] == '/' {
				return url[:len(url)-1]
			}
			return url
		}
	}

	// Fallback to relative URLs (same origin)
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/pages") -> "http://backend:8000/api/pages"
// or just "/api/pages" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// DownloadURL is the attachment link for one page in the given options
func DownloadURL(pageNum int, options export.Options) string {
	query := url.Values{}
	query.Set("format", string(options.Format))
	if options.Format == export.FormatJPG {
		query.Set("quality", strconv.FormatFloat(options.Quality, 'f', -1, 64))
	}
	return BuildAPIURL(fmt.Sprintf("/api/pages/%d/download?%s", pageNum, query.Encode()))
}

// Job represents a conversion or export job
type Job struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
	Result      string `json:"result,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// PageInfo is one converted page as the API describes it
type PageInfo struct {
	PageNum int     `json:"pageNum"`
	DataURI string  `json:"dataUri"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// DocumentInfo is the uploaded file chip
type DocumentInfo struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	Pages   int    `json:"pages"`
	Version string `json:"version,omitempty"`
	Title   string `json:"title,omitempty"`
}

// SessionInfo is the server session
type SessionInfo struct {
	Phase    string         `json:"phase"`
	Error    string         `json:"error,omitempty"`
	Document *DocumentInfo  `json:"document,omitempty"`
	Pages    []PageInfo     `json:"pages"`
	Options  export.Options `json:"options"`
}

// StatusInfo reports renderer readiness
type StatusInfo struct {
	Engine        string `json:"engine"`
	RendererReady bool   `json:"rendererReady"`
	RendererError string `json:"rendererError,omitempty"`
	Phase         string `json:"phase"`
	PageCount     int    `json:"pageCount"`
}

// AboutInfo represents the about information from the API
type AboutInfo struct {
	Version       string  `json:"version"`
	Engine        string  `json:"engine"`
	PDFiumWorkers int     `json:"pdfiumWorkers"`
	RenderScale   float64 `json:"renderScale"`
	DatabaseType  string  `json:"databaseType"`
	OutputPath    string  `json:"outputPath"`
	StaggerMs     int64   `json:"staggerMs"`
	MaxUploadMB   int     `json:"maxUploadMB"`
}

// ExportInfo is the answer to a bulk export request
type ExportInfo struct {
	Files     []string `json:"files"`
	Directory string   `json:"directory"`
	StaggerMs int64    `json:"staggerMs"`
}

// apiError pulls the error text out of a JSON error body
func apiError(status int, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("request failed (status: %d)", status)
}

// QualityPercent is the slider label for a quality fraction
func QualityPercent(quality float64) int {
	return int(math.Round(quality * 100))
}

// DimensionsLabel shows a page's pixel size rounded to whole pixels
func DimensionsLabel(width, height float64) string {
	return fmt.Sprintf("%d × %d PX", int(math.Round(width)), int(math.Round(height)))
}

// requestInit builds the options object for fetch
func requestInit(method string) app.Value {
	init := app.Window().Get("Object").New()
	init.Set("method", method)
	return init
}

// jsonRequestInit is requestInit with a JSON body
func jsonRequestInit(method string, v any) (app.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	init := requestInit(method)
	headers := app.Window().Get("Object").New()
	headers.Set("Content-Type", "application/json")
	init.Set("headers", headers)
	init.Set("body", string(data))
	return init, nil
}

// fetchAPI calls path and hands the status and raw body to done on the UI goroutine.
// init may be nil for a plain GET.
func fetchAPI(ctx app.Context, path string, init app.Value, done func(ctx app.Context, status int, body []byte, err error)) {
	ctx.Async(func() {
		var res app.Value
		if init == nil {
			res = app.Window().Call("fetch", BuildAPIURL(path))
		} else {
			res = app.Window().Call("fetch", BuildAPIURL(path), init)
		}

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				body := ""
				if len(args) > 0 {
					body = args[0].String()
				}
				ctx.Dispatch(func(ctx app.Context) {
					done(ctx, status, []byte(body), nil)
				})
				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(func(ctx app.Context) {
				done(ctx, 0, nil, errNetwork)
			})
			return nil
		}))
	})
}
