package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drummonds/pdf2image/database"
	"github.com/drummonds/pdf2image/export"
	"github.com/oklog/ulid/v2"
)

// Phase is where the session is in its convert cycle
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseReady      Phase = "ready"
	PhaseError      Phase = "error"
)

var (
	ErrNoPages      = errors.New("there are no converted pages yet")
	ErrPageNotFound = errors.New("page not found")
)

// JobTracker records conversions and exports; database.Repository satisfies it
type JobTracker interface {
	CreateJob(jobType database.JobType, message string) (*database.Job, error)
	UpdateJobStatus(jobID ulid.ULID, status database.JobStatus, message string) error
	SetJobTotalSteps(jobID ulid.ULID, total int) error
	UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobError(jobID ulid.ULID, errorMsg string) error
	CompleteJob(jobID ulid.ULID, result string) error
}

// Snapshot is a copy of the session state
type Snapshot struct {
	Phase    Phase          `json:"phase"`
	Error    string         `json:"error,omitempty"`
	Document *DocumentInfo  `json:"document,omitempty"`
	Pages    []PageImage    `json:"pages"`
	Options  export.Options `json:"options"`
}

// Session holds one user's converted document and output settings
type Session struct {
	converter *Converter
	jobs      JobTracker

	mu         sync.Mutex
	generation int
	converting bool
	phase      Phase
	errMsg     string
	document   *DocumentInfo
	pages      []PageImage
	options    export.Options
}

// NewSession starts idle; jobs may be nil
func NewSession(converter *Converter, jobs JobTracker, options export.Options) *Session {
	if options.Validate() != nil {
		options = export.DefaultOptions()
	}
	return &Session{converter: converter, jobs: jobs, phase: PhaseIdle, options: options}
}

// Upload converts upload and replaces the current pages with the result.
// A rejected upload leaves the session exactly as it was.
func (s *Session) Upload(ctx context.Context, upload Upload) error {
	s.mu.Lock()
	if s.converting {
		s.mu.Unlock()
		return invalid(ErrBusy, "")
	}
	if err := s.converter.Validate(upload); err != nil {
		s.mu.Unlock()
		return err
	}
	s.generation++
	generation := s.generation
	s.converting = true
	s.phase = PhaseProcessing
	s.errMsg = ""
	s.pages = nil
	s.document = s.describe(upload)
	s.mu.Unlock()

	jobID := s.startJob(database.JobTypeConversion, "Converting "+upload.Name)
	pages, err := s.converter.ConvertWithProgress(ctx, upload, func(page, total int) {
		s.jobProgress(jobID, page, total, fmt.Sprintf("Rendered page %d of %d", page, total))
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.converting = false
	if generation != s.generation {
		// reset while converting; the result belongs to nobody
		s.finishJob(jobID, ErrDiscarded, "")
		return ErrDiscarded
	}
	if err != nil {
		s.phase = PhaseError
		s.errMsg = UserMessage(err)
		s.finishJob(jobID, err, "")
		return err
	}
	s.phase = PhaseReady
	s.pages = pages
	s.document.Pages = len(pages)
	s.finishJob(jobID, nil, resultJSON(database.ConversionResult{File: upload.Name, Pages: len(pages)}))
	return nil
}

func (s *Session) describe(upload Upload) *DocumentInfo {
	info, err := Inspect(upload.Name, upload.Data)
	if err != nil {
		Logger.Debug("Could not inspect PDF", "name", upload.Name, "error", err)
	}
	return &info
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Phase:   s.phase,
		Error:   s.errMsg,
		Pages:   append([]PageImage{}, s.pages...),
		Options: s.options,
	}
	if s.document != nil {
		doc := *s.document
		snap.Document = &doc
	}
	return snap
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Options returns the output settings
func (s *Session) Options() export.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// SetOptions replaces the output settings if they are valid
func (s *Session) SetOptions(options export.Options) error {
	if err := options.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.options = options
	s.mu.Unlock()
	return nil
}

// Page returns a converted page by its 1-based number
func (s *Session) Page(number int) (PageImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if number < 1 || number > len(s.pages) {
		return PageImage{}, fmt.Errorf("%w: %d", ErrPageNotFound, number)
	}
	return s.pages[number-1], nil
}

// Reset drops the document and pages and returns to idle. A conversion still
// running keeps new uploads out until it returns, then its result is dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.phase = PhaseIdle
	s.errMsg = ""
	s.document = nil
	s.pages = nil
}

// ExportAll schedules every page for saving to sink with the current options.
// The export job is completed in the background once every timer has fired.
func (s *Session) ExportAll(ctx context.Context, sink export.Sink, stagger time.Duration) (*export.Schedule, error) {
	s.mu.Lock()
	pages := s.pages
	options := s.options
	s.mu.Unlock()
	if len(pages) == 0 {
		return nil, invalid(ErrNoPages, "")
	}

	schedule, err := export.ExportAll(ctx, sink, Images(pages), options, stagger)
	if err != nil {
		return nil, err
	}

	jobID := s.startJob(database.JobTypeExport, fmt.Sprintf("Exporting %d pages as %s", len(pages), options.Format))
	if jobID != nil {
		if err := s.jobs.SetJobTotalSteps(*jobID, len(pages)); err != nil {
			Logger.Warn("Failed to set job steps", "jobID", jobID.String(), "error", err)
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					Logger.Error("Panic recovered while tracking export", "panic", r, "jobID", jobID.String())
				}
			}()
			schedule.Wait()
			result := database.ExportResult{Format: string(options.Format), Saved: schedule.Saved(), Failed: schedule.Failed()}
			s.finishJob(jobID, nil, resultJSON(result))
		}()
	}
	return schedule, nil
}

func (s *Session) startJob(jobType database.JobType, message string) *ulid.ULID {
	if s.jobs == nil {
		return nil
	}
	job, err := s.jobs.CreateJob(jobType, message)
	if err != nil {
		Logger.Warn("Failed to create job", "type", jobType, "error", err)
		return nil
	}
	if err := s.jobs.UpdateJobStatus(job.ID, database.JobStatusRunning, message); err != nil {
		Logger.Warn("Failed to update job status", "jobID", job.ID.String(), "error", err)
	}
	return &job.ID
}

func (s *Session) jobProgress(jobID *ulid.ULID, step, total int, message string) {
	if jobID == nil {
		return
	}
	if step == 1 {
		if err := s.jobs.SetJobTotalSteps(*jobID, total); err != nil {
			Logger.Warn("Failed to set job steps", "jobID", jobID.String(), "error", err)
		}
	}
	if err := s.jobs.UpdateJobProgress(*jobID, step*100/total, message); err != nil {
		Logger.Warn("Failed to update job progress", "jobID", jobID.String(), "error", err)
	}
}

func (s *Session) finishJob(jobID *ulid.ULID, failure error, result string) {
	if jobID == nil {
		return
	}
	var err error
	if failure != nil {
		err = s.jobs.UpdateJobError(*jobID, failure.Error())
	} else {
		err = s.jobs.CompleteJob(*jobID, result)
	}
	if err != nil {
		Logger.Warn("Failed to finish job", "jobID", jobID.String(), "error", err)
	}
}

func resultJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
