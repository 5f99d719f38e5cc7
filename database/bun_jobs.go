package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// ErrJobNotFound is returned when no job has the requested ID
var ErrJobNotFound = errors.New("job not found")

// Close closes the database connection
func (b *BunDB) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// CreateJob creates a new pending job
func (b *BunDB) CreateJob(jobType JobType, message string) (*Job, error) {
	now := time.Now()
	jobID, err := CalculateUUID(now)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        jobID,
		Type:      jobType,
		Status:    JobStatusPending,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := b.db.NewInsert().Model(newBunJob(job)).Exec(context.Background()); err != nil {
		return nil, fmt.Errorf("creating %s job: %w", jobType, err)
	}
	return job, nil
}

// updateJob applies set to one job row and stamps updated_at
func (b *BunDB) updateJob(jobID ulid.ULID, set func(q *bun.UpdateQuery, now time.Time) *bun.UpdateQuery) error {
	now := time.Now()
	q := b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String())
	_, err := set(q, now).Exec(context.Background())
	return err
}

// UpdateJobProgress records a job's percentage and current step
func (b *BunDB) UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error {
	return b.updateJob(jobID, func(q *bun.UpdateQuery, _ time.Time) *bun.UpdateQuery {
		return q.Set("progress = ?", progress).Set("current_step = ?", currentStep)
	})
}

// SetJobTotalSteps records how many pages or files a job will work through
func (b *BunDB) SetJobTotalSteps(jobID ulid.ULID, total int) error {
	return b.updateJob(jobID, func(q *bun.UpdateQuery, _ time.Time) *bun.UpdateQuery {
		return q.Set("total_steps = ?", total)
	})
}

// UpdateJobStatus moves a job to status; started_at is set once, completed_at on finish
func (b *BunDB) UpdateJobStatus(jobID ulid.ULID, status JobStatus, message string) error {
	return b.updateJob(jobID, func(q *bun.UpdateQuery, now time.Time) *bun.UpdateQuery {
		q = q.Set("status = ?", status).Set("message = ?", message)
		if status == JobStatusRunning {
			q = q.Set("started_at = COALESCE(started_at, ?)", now)
		}
		if status.Finished() {
			q = q.Set("completed_at = ?", now)
		}
		return q
	})
}

// UpdateJobError fails a job with errorMsg
func (b *BunDB) UpdateJobError(jobID ulid.ULID, errorMsg string) error {
	return b.updateJob(jobID, func(q *bun.UpdateQuery, now time.Time) *bun.UpdateQuery {
		return q.Set("status = ?", JobStatusFailed).
			Set("error = ?", errorMsg).
			Set("completed_at = ?", now)
	})
}

// CompleteJob finishes a job at 100% with an optional JSON result
func (b *BunDB) CompleteJob(jobID ulid.ULID, result string) error {
	return b.updateJob(jobID, func(q *bun.UpdateQuery, now time.Time) *bun.UpdateQuery {
		return q.Set("status = ?", JobStatusCompleted).
			Set("progress = ?", 100).
			Set("result = ?", result).
			Set("completed_at = ?", now)
	})
}

// GetJob retrieves a job by ID, or ErrJobNotFound
func (b *BunDB) GetJob(jobID ulid.ULID) (*Job, error) {
	row := new(BunJob)
	err := b.db.NewSelect().
		Model(row).
		Where("id = ?", jobID.String()).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job, err := row.job()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs matching query, newest first
func (b *BunDB) ListJobs(query JobQuery) ([]Job, error) {
	var rows []BunJob
	q := b.db.NewSelect().Model(&rows).Order("created_at DESC")
	if query.Type != "" {
		q = q.Where("type = ?", string(query.Type))
	}
	if len(query.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statusStrings(query.Statuses)))
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}
	if err := q.Scan(context.Background()); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.job()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetRecentJobs pages through every job, newest first
func (b *BunDB) GetRecentJobs(limit, offset int) ([]Job, error) {
	return b.ListJobs(JobQuery{Limit: limit, Offset: offset})
}

// GetActiveJobs retrieves all running or pending jobs
func (b *BunDB) GetActiveJobs() ([]Job, error) {
	return b.ListJobs(JobQuery{Statuses: []JobStatus{JobStatusPending, JobStatusRunning}})
}

// DeleteOldJobs deletes finished jobs that completed more than olderThan ago
func (b *BunDB) DeleteOldJobs(olderThan time.Duration) (int, error) {
	result, err := b.db.NewDelete().
		Model((*BunJob)(nil)).
		Where("status IN (?)", bun.In(statusStrings(finishedStatuses))).
		Where("completed_at < ?", time.Now().Add(-olderThan)).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	return int(count), err
}

func statusStrings(statuses []JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
