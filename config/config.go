package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string

	// Rendering
	RenderEngine  string  // pdfium or fitz
	PDFiumWorkers int     // worker instances in the pdfium WebAssembly pool
	RenderScale   float64 // magnification applied to every page

	// Export
	DefaultFormat  string
	DefaultQuality float64
	ExportStagger  time.Duration
	OutputPath     string // absolute path bulk exports are written to
	MaxUploadMB    int

	// Job history
	DatabaseType         string // memory, sqlite or postgres
	DatabaseHost         string
	DatabasePort         string
	DatabaseUser         string
	DatabasePassword     string `json:"-"`
	DatabaseDbname       string
	DatabaseSslmode      string
	JobRetention         time.Duration
	JobCleanupIntervalMn int

	FrontEndConfig
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// loadEnvFiles loads .env files (silently ignore if they don't exist)
func loadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
}

// Load reads the configuration from the environment, applying defaults
func Load() ServerConfig {
	cfg := ServerConfig{}

	cfg.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	cfg.ListenAddrIP = getEnv("SERVER_ADDR", "127.0.0.1")

	cfg.RenderEngine = strings.ToLower(getEnv("RENDER_ENGINE", "pdfium"))
	cfg.PDFiumWorkers = getEnvInt("PDFIUM_WORKERS", 1)
	if cfg.PDFiumWorkers < 1 {
		cfg.PDFiumWorkers = 1
	}
	cfg.RenderScale = getEnvFloat("RENDER_SCALE", 2.0)
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = 2.0
	}

	cfg.DefaultFormat = strings.ToLower(getEnv("DEFAULT_FORMAT", "png"))
	cfg.DefaultQuality = getEnvFloat("DEFAULT_QUALITY", 0.95)
	cfg.ExportStagger = time.Duration(getEnvInt("EXPORT_STAGGER_MS", 500)) * time.Millisecond
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 100)

	outputPath := filepath.ToSlash(getEnv("OUTPUT_PATH", "exports"))
	outputPathAbs, err := filepath.Abs(outputPath)
	if err != nil {
		outputPathAbs = outputPath
	}
	cfg.OutputPath = outputPathAbs

	cfg.DatabaseType = strings.ToLower(getEnv("DATABASE_TYPE", "memory"))
	cfg.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	cfg.DatabasePort = getEnv("DATABASE_PORT", "5432")
	cfg.DatabaseUser = getEnv("DATABASE_USER", "pdf2image")
	cfg.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	cfg.DatabaseDbname = getEnv("DATABASE_NAME", "")
	cfg.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")
	cfg.JobRetention = time.Duration(getEnvInt("JOB_RETENTION_HOURS", 24)) * time.Hour
	cfg.JobCleanupIntervalMn = getEnvInt("JOB_CLEANUP_INTERVAL", 60)

	cfg.ServerAPIURL = getEnv("SERVER_API_URL", "")

	return cfg
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	loadEnvFiles()

	logger := setupLogging(getEnv("LOG_OUTPUT", "stdout"))
	Logger = logger

	serverConfig := Load()

	fmt.Println("\n========================================")
	fmt.Println("   pdf2image - PDF to PNG/JPG converter")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	fmt.Printf("Render engine: %s (scale %.1fx)\n", serverConfig.RenderEngine, serverConfig.RenderScale)
	fmt.Printf("Bulk exports: %s\n", serverConfig.OutputPath)
	fmt.Println("Initializing...")

	logger.Info("Configuration loaded",
		"engine", serverConfig.RenderEngine,
		"database", serverConfig.DatabaseType,
		"outputPath", serverConfig.OutputPath)

	if serverConfig.DatabaseType != "memory" {
		logger.Warn("Job history is persisted beyond this session", "type", serverConfig.DatabaseType)
	}

	return serverConfig, logger
}

// SetupCLI loads configuration for the command line converter; logs go to stderr
func SetupCLI() (ServerConfig, *slog.Logger) {
	loadEnvFiles()

	logger := setupLogging("stderr")
	Logger = logger

	return Load(), logger
}

// setupLogging configures the application logger
func setupLogging(logOutput string) *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	var logWriter io.Writer

	switch logOutput {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdf2image.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// EnsureDirectory makes sure path exists and is a directory, creating it if needed
func EnsureDirectory(path string, logger *slog.Logger) error {
	if path == "" {
		return fmt.Errorf("directory path not configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("Creating directory", "path", path)
			if err := os.MkdirAll(path, 0755); err != nil {
				logger.Error("Failed to create directory", "path", path, "error", err)
				return err
			}
			return nil
		}
		logger.Error("Error checking directory", "path", path, "error", err)
		return err
	}

	if !info.IsDir() {
		logger.Error("Path exists but is not a directory", "path", path)
		return fmt.Errorf("path is not a directory: %s", path)
	}
	logger.Debug("Directory exists", "path", path)
	return nil
}
