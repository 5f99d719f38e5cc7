package main

import (
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdf2image/config"
	database "github.com/drummonds/pdf2image/database"
	engine "github.com/drummonds/pdf2image/engine"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/drummonds/pdf2image/export"
	"github.com/drummonds/pdf2image/webapp"
)

//go:embed webapp/webapp.css
var webappFS embed.FS

// webDir holds app.wasm and wasm_exec.js, built by `make wasm`
const webDir = "web"

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	export.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up job database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Unable to set up job database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	loader, err := pdfrenderer.NewLoader(serverConfig.RenderEngine, serverConfig.PDFiumWorkers)
	if err != nil {
		Logger.Error("Invalid render engine", "error", err)
		os.Exit(1)
	}
	bridge := pdfrenderer.NewBridge(loader)
	bridge.Start() // loads in the background; uploads are refused until it is ready
	defer bridge.Close()

	e := echo.New()
	Logger.Info("Echo created")
	e.HTTPErrorHandler = notFoundHandler(e)
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", serverConfig.MaxUploadMB)))
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	serverHandler := engine.NewServerHandler(serverConfig, db, e, bridge, nil)
	if err := serverHandler.StartupChecks(); err == nil && serverConfig.OutputPath != "" {
		sink, err := export.NewDirSink(serverConfig.OutputPath)
		if err != nil {
			Logger.Error("Unable to open output directory", "path", serverConfig.OutputPath, "error", err)
		} else {
			serverHandler.Sink = sink
		}
	}
	Logger.Info("Startup checks complete")

	serverHandler.AddAPIRoutes()
	scheduler := serverHandler.InitializeSchedules() //initialize all the cron jobs
	defer scheduler.Stop()

	Logger.Info("Setting up go-app WASM UI")
	addFrontendRoutes(e, serverConfig, webapp.Handler())

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = e.Start(addr)

		// Check if error is "address already in use"
		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			serverConfig.ListenAddrPort = nextPort(serverConfig.ListenAddrPort)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				os.Exit(1)
			}
		} else if startErr != nil && startErr != http.ErrServerClosed {
			Logger.Error("Failed to start server", "error", startErr)
			os.Exit(1)
		} else {
			break
		}
	}

	if startErr == nil && serverConfig.ListenAddrPort != startPort {
		Logger.Warn("Server started on alternative port due to conflicts",
			"requested_port", startPort,
			"actual_port", serverConfig.ListenAddrPort)
	}
}

// notFoundHandler answers 404s with JSON under /api and a small page elsewhere
func notFoundHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code != http.StatusNotFound {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}

		if strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		c.HTML(http.StatusNotFound, `<!DOCTYPE html>
<html>
<head><title>404 - Not Found</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1>404 - Page Not Found</h1>
	<p>The page you're looking for doesn't exist.</p>
	<a href="/" style="color: #3498db; text-decoration: none; font-size: 18px;">← Back to the converter</a>
</body>
</html>`)
	}
}

// addFrontendRoutes serves the WASM UI and its assets; appHandler takes everything else
func addFrontendRoutes(e *echo.Echo, serverConfig config.ServerConfig, appHandler http.Handler) {
	// go-app expects wasm_exec.js at the root
	e.File("/wasm_exec.js", webDir+"/wasm_exec.js")

	// Register go-app specific resources
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.Static("/web", webDir)

	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Inject backend API URL into the page
	e.GET("/config.js", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, frontendConfigJS(serverConfig))
	})

	// Unknown API paths must not fall through to the app
	e.Any("/api/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	// The WASM app handles its own client-side routing and 404s via NotFoundPage component
	e.Any("/*", echo.WrapHandler(appHandler))
}

func frontendConfigJS(serverConfig config.ServerConfig) string {
	return fmt.Sprintf(`
// pdf2image Frontend Configuration
window.pdf2imageConfig = {
    apiURL: %q
};
`, serverConfig.ServerAPIURL)
}

// nextPort returns port+1, or the port unchanged if it is not numeric
func nextPort(port string) string {
	portNum := 0
	if _, err := fmt.Sscanf(port, "%d", &portNum); err != nil {
		return port
	}
	return fmt.Sprintf("%d", portNum+1)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use")
}
