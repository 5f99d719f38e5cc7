package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/database"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/drummonds/pdf2image/export"
	"github.com/drummonds/pdf2image/internal/build"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Bridge       *pdfrenderer.Bridge
	Session      *Session
	Sink         export.Sink
}

// NewServerHandler builds the converter and session around bridge
func NewServerHandler(serverConfig config.ServerConfig, db database.Repository, e *echo.Echo, bridge *pdfrenderer.Bridge, sink export.Sink) *ServerHandler {
	converter := NewConverter(bridge, WithScale(serverConfig.RenderScale))
	options := export.Options{Format: export.Format(serverConfig.DefaultFormat), Quality: serverConfig.DefaultQuality}
	var jobs JobTracker
	if db != nil {
		jobs = db
	}
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Bridge:       bridge,
		Session:      NewSession(converter, jobs, options),
		Sink:         sink,
	}
}

// AddAPIRoutes registers every JSON endpoint under /api
func (serverHandler *ServerHandler) AddAPIRoutes() {
	api := serverHandler.Echo.Group("/api")

	api.GET("/health", serverHandler.Health)
	api.GET("/status", serverHandler.GetStatus)
	api.GET("/about", serverHandler.GetAboutInfo)

	// Conversion routes
	api.POST("/convert", serverHandler.ConvertPDF)
	api.GET("/pages", serverHandler.GetPages)
	api.GET("/pages/:num/download", serverHandler.DownloadPage)
	api.DELETE("/session", serverHandler.ResetSession)

	// Output settings and bulk export
	api.GET("/options", serverHandler.GetOptions)
	api.PUT("/options", serverHandler.PutOptions)
	api.POST("/export", serverHandler.ExportPages)

	// Job tracking routes
	if serverHandler.DB != nil {
		api.GET("/jobs", serverHandler.GetRecentJobs)
		api.DELETE("/jobs", serverHandler.PruneJobs)
		api.GET("/jobs/active", serverHandler.GetActiveJobs)
		api.GET("/jobs/:id", serverHandler.GetJob)
	}
}

// Health reports that the server is up
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{} "Server is up"
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
}

// StatusResponse describes the renderer and session
type StatusResponse struct {
	Engine        string `json:"engine"`
	RendererReady bool   `json:"rendererReady"`
	RendererError string `json:"rendererError,omitempty"`
	Phase         Phase  `json:"phase"`
	PageCount     int    `json:"pageCount"`
}

// GetStatus reports whether the renderer has loaded and what the session is doing
// @Summary Renderer and session status
// @Tags Health
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (serverHandler *ServerHandler) GetStatus(c echo.Context) error {
	snap := serverHandler.Session.Snapshot()
	status := StatusResponse{
		Engine:        serverHandler.ServerConfig.RenderEngine,
		RendererReady: serverHandler.Bridge.Ready(),
		Phase:         snap.Phase,
		PageCount:     len(snap.Pages),
	}
	if err := serverHandler.Bridge.Err(); err != nil {
		status.RendererError = UserMessage(err)
	}
	return c.JSON(http.StatusOK, status)
}

// AboutResponse describes how this server is configured
type AboutResponse struct {
	Version       string  `json:"version"`
	Engine        string  `json:"engine"`
	PDFiumWorkers int     `json:"pdfiumWorkers"`
	RenderScale   float64 `json:"renderScale"`
	DatabaseType  string  `json:"databaseType"`
	OutputPath    string  `json:"outputPath"`
	StaggerMs     int64   `json:"staggerMs"`
	MaxUploadMB   int     `json:"maxUploadMB"`
}

// GetAboutInfo returns application information
// @Summary Get application information
// @Description Returns version, renderer and export settings
// @Tags System
// @Produce json
// @Success 200 {object} AboutResponse "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	cfg := serverHandler.ServerConfig
	engine := cfg.RenderEngine
	if engine == "" {
		engine = "pdfium"
	}
	return c.JSON(http.StatusOK, AboutResponse{
		Version:       build.Version,
		Engine:        engine,
		PDFiumWorkers: cfg.PDFiumWorkers,
		RenderScale:   serverHandler.Session.converter.Scale(),
		DatabaseType:  cfg.DatabaseType,
		OutputPath:    cfg.OutputPath,
		StaggerMs:     cfg.ExportStagger.Milliseconds(),
		MaxUploadMB:   cfg.MaxUploadMB,
	})
}

// ConvertPDF converts an uploaded PDF into page images
// @Summary Convert a PDF
// @Description Rasterizes every page of the uploaded PDF, replacing the previous result
// @Tags Convert
// @Accept multipart/form-data
// @Produce json
// @Param pdf formData file true "PDF file"
// @Success 200 {object} Snapshot "Converted pages"
// @Failure 400 {object} map[string]interface{} "Not a PDF"
// @Failure 409 {object} map[string]interface{} "Conversion already running or discarded by a reset"
// @Failure 422 {object} map[string]interface{} "Conversion failed"
// @Failure 503 {object} map[string]interface{} "Renderer not ready"
// @Router /convert [post]
func (serverHandler *ServerHandler) ConvertPDF(c echo.Context) error {
	fileHeader, err := c.FormFile("pdf")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Missing pdf file in upload",
		})
	}
	file, err := fileHeader.Open()
	if err != nil {
		Logger.Error("Unable to open uploaded file", "name", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Unable to read uploaded file",
		})
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		Logger.Error("Unable to read uploaded file", "name", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Unable to read uploaded file",
		})
	}

	upload := Upload{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Data:        data,
	}
	// the conversion belongs to the session, not to this request
	ctx := context.WithoutCancel(c.Request().Context())
	if err := serverHandler.Session.Upload(ctx, upload); err != nil {
		Logger.Warn("Conversion rejected or failed", "name", upload.Name, "error", err)
		return c.JSON(statusFor(err), map[string]interface{}{
			"error": UserMessage(err),
		})
	}
	return c.JSON(http.StatusOK, serverHandler.Session.Snapshot())
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrLoadFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, export.ErrUnknownFormat), errors.Is(err, export.ErrQualityRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// GetPages returns the session with every converted page
// @Summary Converted pages
// @Tags Convert
// @Produce json
// @Success 200 {object} Snapshot
// @Router /pages [get]
func (serverHandler *ServerHandler) GetPages(c echo.Context) error {
	return c.JSON(http.StatusOK, serverHandler.Session.Snapshot())
}

// DownloadPage encodes one page and sends it as an attachment
// @Summary Download a page
// @Tags Convert
// @Produce image/png,image/jpeg
// @Param num path int true "Page number (1-based)"
// @Param format query string false "png or jpg (default: session setting)"
// @Param quality query number false "0.5 to 1.0, jpg only (default: session setting)"
// @Success 200 {file} binary "Encoded page"
// @Failure 400 {object} map[string]interface{} "Invalid options"
// @Failure 404 {object} map[string]interface{} "Page not found"
// @Router /pages/{num}/download [get]
func (serverHandler *ServerHandler) DownloadPage(c echo.Context) error {
	number, err := strconv.Atoi(c.Param("num"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid page number",
		})
	}
	options, err := serverHandler.requestOptions(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	page, err := serverHandler.Session.Page(number)
	if err != nil {
		return c.JSON(statusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
	}

	data, err := export.EncodeBytes(page.Surface.Image(), options)
	if err != nil {
		Logger.Error("Unable to encode page", "page", number, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Unable to encode page",
		})
	}
	name := export.FileName(number-1, options.Format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, options.Format.MimeType(), data)
}

// requestOptions overlays format and quality query parameters on the session options
func (serverHandler *ServerHandler) requestOptions(c echo.Context) (export.Options, error) {
	options := serverHandler.Session.Options()
	if formatStr := c.QueryParam("format"); formatStr != "" {
		format, err := export.ParseFormat(formatStr)
		if err != nil {
			return options, err
		}
		options.Format = format
	}
	if qualityStr := c.QueryParam("quality"); qualityStr != "" {
		quality, err := strconv.ParseFloat(qualityStr, 64)
		if err != nil {
			return options, fmt.Errorf("%w: %q", export.ErrQualityRange, qualityStr)
		}
		options.Quality = quality
	}
	return options, options.Validate()
}

// ResetSession clears the current document
// @Summary Clear converted pages
// @Tags Convert
// @Produce json
// @Success 200 {object} Snapshot
// @Router /session [delete]
func (serverHandler *ServerHandler) ResetSession(c echo.Context) error {
	serverHandler.Session.Reset()
	return c.JSON(http.StatusOK, serverHandler.Session.Snapshot())
}

// GetOptions returns the output settings
// @Summary Output settings
// @Tags Options
// @Produce json
// @Success 200 {object} export.Options
// @Router /options [get]
func (serverHandler *ServerHandler) GetOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, serverHandler.Session.Options())
}

// PutOptions replaces the output settings
// @Summary Change output settings
// @Tags Options
// @Accept json
// @Produce json
// @Param options body export.Options true "Format and quality"
// @Success 200 {object} export.Options
// @Failure 400 {object} map[string]interface{} "Invalid options"
// @Router /options [put]
func (serverHandler *ServerHandler) PutOptions(c echo.Context) error {
	var request struct {
		Format  string  `json:"format"`
		Quality float64 `json:"quality"`
	}
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid request body",
		})
	}
	format, err := export.ParseFormat(request.Format)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	options := export.Options{Format: format, Quality: request.Quality}
	if err := serverHandler.Session.SetOptions(options); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	Logger.Info("Output settings changed", "format", options.Format, "quality", options.Quality)
	return c.JSON(http.StatusOK, serverHandler.Session.Options())
}

// ExportResponse lists what a bulk export was asked to write
type ExportResponse struct {
	Files     []string `json:"files"`
	Directory string   `json:"directory"`
	StaggerMs int64    `json:"staggerMs"`
}

// ExportPages saves every page to the output directory, one file per stagger interval
// @Summary Export all pages
// @Description Schedules every page for writing and returns at once; failures are only logged
// @Tags Options
// @Produce json
// @Success 202 {object} ExportResponse
// @Failure 400 {object} map[string]interface{} "Nothing to export"
// @Router /export [post]
func (serverHandler *ServerHandler) ExportPages(c echo.Context) error {
	if serverHandler.Sink == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error": "Export directory is not available",
		})
	}
	stagger := serverHandler.ServerConfig.ExportStagger
	ctx := context.WithoutCancel(c.Request().Context())
	schedule, err := serverHandler.Session.ExportAll(ctx, serverHandler.Sink, stagger)
	if err != nil {
		return c.JSON(statusFor(err), map[string]interface{}{
			"error": UserMessage(err),
		})
	}
	return c.JSON(http.StatusAccepted, ExportResponse{
		Files:     schedule.Files(),
		Directory: serverHandler.ServerConfig.OutputPath,
		StaggerMs: stagger.Milliseconds(),
	})
}
