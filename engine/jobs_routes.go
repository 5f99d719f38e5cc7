package engine

import (
	"errors"
	"net/http"
	"time"

	"github.com/drummonds/pdf2image/database"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 100
)

// GetJob retrieves a job by ID
// @Summary Get job by ID
// @Description Retrieve one conversion or export job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID (ULID)"
// @Success 200 {object} database.Job "Job details"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id} [get]
func (serverHandler *ServerHandler) GetJob(c echo.Context) error {
	jobID, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid job ID format",
		})
	}

	job, err := serverHandler.DB.GetJob(jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Job not found",
		})
	}
	if err != nil {
		Logger.Error("Failed to get job", "jobID", jobID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve job",
		})
	}
	return c.JSON(http.StatusOK, job)
}

// jobQuery reads type, status, limit and offset from the query string
func jobQuery(c echo.Context) (database.JobQuery, error) {
	query := database.JobQuery{Limit: defaultJobsLimit}
	var jobType, status string
	err := echo.QueryParamsBinder(c).
		Int("limit", &query.Limit).
		Int("offset", &query.Offset).
		String("type", &jobType).
		String("status", &status).
		BindError()
	if err != nil {
		return query, err
	}

	switch jobType := database.JobType(jobType); jobType {
	case "", database.JobTypeConversion, database.JobTypeExport:
		query.Type = jobType
	default:
		return query, errors.New("unknown job type")
	}
	if status != "" {
		query.Statuses = []database.JobStatus{database.JobStatus(status)}
	}
	if query.Limit <= 0 || query.Limit > maxJobsLimit {
		query.Limit = defaultJobsLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	return query, nil
}

// GetRecentJobs lists jobs newest first
// @Summary Get recent jobs
// @Description Retrieve recent conversion and export jobs, newest first
// @Tags Jobs
// @Produce json
// @Param limit query int false "Number of jobs to return (default: 20, max: 100)"
// @Param offset query int false "Offset for pagination (default: 0)"
// @Param type query string false "conversion or export"
// @Param status query string false "pending, running, completed, failed or cancelled"
// @Success 200 {array} database.Job "List of jobs"
// @Failure 400 {object} map[string]interface{} "Invalid filter"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs [get]
func (serverHandler *ServerHandler) GetRecentJobs(c echo.Context) error {
	query, err := jobQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	jobs, err := serverHandler.DB.ListJobs(query)
	if err != nil {
		Logger.Error("Failed to get recent jobs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve jobs",
		})
	}
	if jobs == nil {
		jobs = []database.Job{}
	}
	return c.JSON(http.StatusOK, jobs)
}

// GetActiveJobs retrieves all currently running or pending jobs
// @Summary Get active jobs
// @Description Retrieve the conversion or export that is still running, if any
// @Tags Jobs
// @Produce json
// @Success 200 {array} database.Job "List of active jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs/active [get]
func (serverHandler *ServerHandler) GetActiveJobs(c echo.Context) error {
	jobs, err := serverHandler.DB.GetActiveJobs()
	if err != nil {
		Logger.Error("Failed to get active jobs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve active jobs",
		})
	}
	if jobs == nil {
		jobs = []database.Job{}
	}
	return c.JSON(http.StatusOK, jobs)
}

// PruneJobs deletes finished jobs now instead of waiting for the scheduler
// @Summary Delete finished jobs
// @Tags Jobs
// @Produce json
// @Param olderThan query string false "Minimum age such as 1h (default: 0, every finished job)"
// @Success 200 {object} map[string]interface{} "Number of jobs deleted"
// @Failure 400 {object} map[string]interface{} "Invalid age"
// @Router /jobs [delete]
func (serverHandler *ServerHandler) PruneJobs(c echo.Context) error {
	var olderThan time.Duration
	if err := echo.QueryParamsBinder(c).Duration("olderThan", &olderThan).BindError(); err != nil || olderThan < 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "olderThan must be a non-negative duration such as 1h",
		})
	}

	deleted, err := serverHandler.DB.DeleteOldJobs(olderThan)
	if err != nil {
		Logger.Error("Failed to delete jobs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to delete jobs",
		})
	}
	Logger.Info("Pruned jobs on request", "deleted", deleted, "olderThan", olderThan)
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": deleted})
}
