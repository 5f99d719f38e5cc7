package engine

import (
	"github.com/drummonds/pdf2image/config"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	rendererChecks(serverHandler.ServerConfig)
	return outputDirectoryChecks(serverHandler.ServerConfig)
}

// rendererChecks logs which engine is loading; the load itself reports failure
func rendererChecks(serverConfig config.ServerConfig) {
	Logger.Info("PDF renderer configured",
		"engine", serverConfig.RenderEngine,
		"workers", serverConfig.PDFiumWorkers,
		"scale", serverConfig.RenderScale)
	if serverConfig.RenderScale != RenderScale {
		Logger.Warn("Render scale differs from the default", "scale", serverConfig.RenderScale, "default", RenderScale)
	}
}

// outputDirectoryChecks ensures the bulk export directory exists
func outputDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.OutputPath == "" {
		Logger.Warn("Output path not configured, bulk export disabled")
		return nil
	}
	if err := config.EnsureDirectory(serverConfig.OutputPath, Logger); err != nil {
		Logger.Error("Output directory unusable, bulk export disabled", "path", serverConfig.OutputPath, "error", err)
		return err
	}
	return nil
}
