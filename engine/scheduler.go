package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/drummonds/pdf2image/database"
	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// InitializeSchedules starts the cron jobs (currently just job history pruning)
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	if serverHandler.DB == nil {
		return c
	}

	retention := serverHandler.ServerConfig.JobRetention
	var pruneJob cron.Job
	pruneJob = cron.FuncJob(func() { pruneJobs(serverHandler.DB, retention) })
	pruneJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(pruneJob) //ensure we don't kick off another if old one is still running
	interval := serverHandler.ServerConfig.JobCleanupIntervalMn
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), pruneJob); err != nil {
		Logger.Error("Unable to schedule job pruning", "interval_minutes", interval, "error", err)
		return c
	}
	Logger.Info("Adding job pruning scheduler", "interval_minutes", interval, "retention", retention)
	c.Start()
	return c
}

// pruneJobs removes finished jobs older than retention
func pruneJobs(db database.Repository, retention time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in job pruning", "panic", r)
		}
	}()

	deleted, err := db.DeleteOldJobs(retention)
	if err != nil {
		Logger.Error("Failed to prune old jobs", "error", err)
		return
	}
	if deleted > 0 {
		Logger.Info("Pruned old jobs", "deleted", deleted, "retention", retention)
	}
}
