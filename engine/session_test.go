package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/database"
	"github.com/drummonds/pdf2image/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, eng *fakeEngine, jobs JobTracker) *Session {
	t.Helper()
	return NewSession(NewConverter(readyBridge(t, eng)), jobs, export.DefaultOptions())
}

type memorySink struct {
	mu    sync.Mutex
	names []string
}

func (m *memorySink) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return nil
}

func (m *memorySink) saved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

func TestSession_StartsIdleWithDefaults(t *testing.T) {
	session := newTestSession(t, newFakeEngine(1), nil)

	snap := session.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Pages)
	assert.Nil(t, snap.Document)
	assert.Equal(t, export.FormatPNG, snap.Options.Format)
	assert.Equal(t, 0.95, snap.Options.Quality)

	bad := NewSession(nil, nil, export.Options{Format: "gif"})
	assert.Equal(t, export.DefaultOptions(), bad.Options(), "invalid initial options fall back to defaults")
}

func TestSession_UploadReady(t *testing.T) {
	session := newTestSession(t, newFakeEngine(3), nil)

	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 3)))

	snap := session.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Pages, 3)
	require.NotNil(t, snap.Document)
	assert.Equal(t, "report.pdf", snap.Document.Name)
	assert.Equal(t, 3, snap.Document.Pages)
}

func TestSession_RejectedUploadLeavesStateAlone(t *testing.T) {
	session := newTestSession(t, newFakeEngine(2), nil)
	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 2)))
	before := session.Snapshot()

	upload := pdfUpload(t, 2)
	upload.Name = "photo.png"
	upload.ContentType = "image/png"
	err := session.Upload(context.Background(), upload)
	assert.ErrorIs(t, err, ErrInvalidType)

	after := session.Snapshot()
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Document, after.Document)
	assert.Len(t, after.Pages, 2)
}

func TestSession_NotReadyLeavesStateIdle(t *testing.T) {
	session := NewSession(NewConverter(notReadyRenderer{}), nil, export.DefaultOptions())

	err := session.Upload(context.Background(), pdfUpload(t, 1))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, PhaseIdle, session.Phase())
}

func TestSession_FailureClearsPreviousPages(t *testing.T) {
	eng := newFakeEngine(2)
	session := newTestSession(t, eng, nil)
	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 2)))

	eng.failPage = 1
	err := session.Upload(context.Background(), pdfUpload(t, 2))
	assert.ErrorIs(t, err, ErrConversion)

	snap := session.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "PDF processing failed: broken content stream", snap.Error)
	assert.Empty(t, snap.Pages)

	// a later good upload recovers from the error phase
	eng.failPage = 0
	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 2)))
	assert.Equal(t, PhaseReady, session.Phase())
	assert.Empty(t, session.Snapshot().Error)
}

func TestSession_BusyWhileProcessing(t *testing.T) {
	eng := newFakeEngine(1)
	eng.gate = make(chan struct{})
	session := newTestSession(t, eng, nil)

	upload := pdfUpload(t, 1)
	done := make(chan error, 1)
	go func() { done <- session.Upload(context.Background(), upload) }()

	require.Eventually(t, func() bool { return session.Phase() == PhaseProcessing }, time.Second, time.Millisecond)
	assert.Empty(t, session.Snapshot().Pages, "accepted upload clears the result set")

	err := session.Upload(context.Background(), upload)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, ErrValidation)

	close(eng.gate)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseReady, session.Phase())
}

func TestSession_ResetDuringConversionDropsResult(t *testing.T) {
	eng := newFakeEngine(1)
	eng.gate = make(chan struct{})
	session := newTestSession(t, eng, nil)

	upload := pdfUpload(t, 1)
	done := make(chan error, 1)
	go func() { done <- session.Upload(context.Background(), upload) }()
	require.Eventually(t, func() bool { return session.Phase() == PhaseProcessing }, time.Second, time.Millisecond)

	session.Reset()
	close(eng.gate)
	assert.ErrorIs(t, <-done, ErrDiscarded)

	snap := session.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Pages)
}

func TestSession_ResetKeepsUploadsOutUntilConversionReturns(t *testing.T) {
	eng := newFakeEngine(2)
	eng.gate = make(chan struct{})
	session := newTestSession(t, eng, nil)

	upload := pdfUpload(t, 2)
	done := make(chan error, 1)
	go func() { done <- session.Upload(context.Background(), upload) }()
	require.Eventually(t, func() bool { return session.Phase() == PhaseProcessing }, time.Second, time.Millisecond)

	session.Reset()
	err := session.Upload(context.Background(), pdfUpload(t, 2))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, PhaseIdle, session.Phase(), "a rejected upload changes nothing")

	close(eng.gate)
	assert.ErrorIs(t, <-done, ErrDiscarded)
	assert.EqualValues(t, 2, eng.rendered.Load(), "only the first conversion rendered")

	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 2)))
	assert.Equal(t, PhaseReady, session.Phase())
	assert.EqualValues(t, 4, eng.rendered.Load())
}

func TestSession_OptionsAndPages(t *testing.T) {
	session := newTestSession(t, newFakeEngine(2), nil)

	assert.Error(t, session.SetOptions(export.Options{Format: export.FormatJPG, Quality: 0.3}))
	assert.Equal(t, export.FormatPNG, session.Options().Format)

	require.NoError(t, session.SetOptions(export.Options{Format: export.FormatJPG, Quality: 0.7}))
	assert.Equal(t, export.Options{Format: export.FormatJPG, Quality: 0.7}, session.Options())

	_, err := session.Page(1)
	assert.ErrorIs(t, err, ErrPageNotFound)

	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 2)))
	page, err := session.Page(2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.PageNum)

	_, err = session.Page(3)
	assert.ErrorIs(t, err, ErrPageNotFound)

	session.Reset()
	assert.Equal(t, PhaseIdle, session.Phase())
	assert.Equal(t, export.FormatJPG, session.Options().Format, "reset keeps output settings")
}

func TestSession_ExportAll(t *testing.T) {
	session := newTestSession(t, newFakeEngine(3), nil)
	sink := &memorySink{}

	_, err := session.ExportAll(context.Background(), sink, time.Millisecond)
	assert.ErrorIs(t, err, ErrNoPages)

	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 3)))
	require.NoError(t, session.SetOptions(export.Options{Format: export.FormatJPG, Quality: 0.8}))

	schedule, err := session.ExportAll(context.Background(), sink, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"page_1.jpg", "page_2.jpg", "page_3.jpg"}, schedule.Files())

	schedule.Wait()
	assert.Equal(t, []string{"page_1.jpg", "page_2.jpg", "page_3.jpg"}, sink.saved())
}

func TestSession_TracksJobs(t *testing.T) {
	repo, err := database.NewRepository(config.ServerConfig{DatabaseType: "memory"})
	require.NoError(t, err)
	defer repo.Close()

	session := newTestSession(t, newFakeEngine(3), repo)
	require.NoError(t, session.Upload(context.Background(), pdfUpload(t, 3)))

	jobs, err := repo.GetRecentJobs(10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	conversion := jobs[0]
	assert.Equal(t, database.JobTypeConversion, conversion.Type)
	assert.Equal(t, database.JobStatusCompleted, conversion.Status)
	assert.Equal(t, 3, conversion.TotalSteps)

	var result database.ConversionResult
	require.NoError(t, json.Unmarshal([]byte(conversion.Result), &result))
	assert.Equal(t, database.ConversionResult{File: "report.pdf", Pages: 3}, result)

	schedule, err := session.ExportAll(context.Background(), &memorySink{}, time.Millisecond)
	require.NoError(t, err)
	schedule.Wait()

	require.Eventually(t, func() bool {
		jobs, err := repo.GetRecentJobs(10, 0)
		return err == nil && len(jobs) == 2 && jobs[0].Status == database.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	jobs, err = repo.GetRecentJobs(1, 0)
	require.NoError(t, err)
	assert.Equal(t, database.JobTypeExport, jobs[0].Type)
	var exported database.ExportResult
	require.NoError(t, json.Unmarshal([]byte(jobs[0].Result), &exported))
	assert.Equal(t, 3, exported.Saved)
	assert.Empty(t, exported.Failed)
}

func TestSession_FailedConversionJob(t *testing.T) {
	repo, err := database.NewRepository(config.ServerConfig{DatabaseType: "memory"})
	require.NoError(t, err)
	defer repo.Close()

	eng := newFakeEngine(2)
	eng.failPage = 2
	session := newTestSession(t, eng, repo)
	require.Error(t, session.Upload(context.Background(), pdfUpload(t, 2)))

	jobs, err := repo.GetRecentJobs(10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, database.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "page 2")
}
