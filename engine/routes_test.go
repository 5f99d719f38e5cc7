package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drummonds/pdf2image/config"
	"github.com/drummonds/pdf2image/database"
	"github.com/drummonds/pdf2image/engine/pdfrenderer"
	"github.com/drummonds/pdf2image/export"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler *ServerHandler
	engine  *fakeEngine
	outDir  string
}

func newTestServer(t *testing.T, eng *fakeEngine, bridge *pdfrenderer.Bridge, db database.Repository) *testServer {
	t.Helper()
	outDir := t.TempDir()
	sink, err := export.NewDirSink(outDir)
	require.NoError(t, err)

	serverConfig := config.ServerConfig{
		RenderEngine:   "fake",
		RenderScale:    RenderScale,
		DefaultFormat:  "png",
		DefaultQuality: 0.95,
		ExportStagger:  time.Millisecond,
		OutputPath:     outDir,
	}
	handler := NewServerHandler(serverConfig, db, echo.New(), bridge, sink)
	handler.AddAPIRoutes()
	return &testServer{handler: handler, engine: eng, outDir: outDir}
}

func newReadyServer(t *testing.T, pages int) *testServer {
	eng := newFakeEngine(pages)
	return newTestServer(t, eng, readyBridge(t, eng), nil)
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.Echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

// convertRequest builds a multipart upload with an explicit part content type
func convertRequest(t *testing.T, name, contentType string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdf"; filename="%s"`, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorText(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]interface{}](t, rec)["error"].(string)
}

func TestHealth(t *testing.T) {
	server := newReadyServer(t, 1)
	rec := server.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]interface{}](t, rec)["status"])
}

func TestAboutInfo(t *testing.T) {
	server := newReadyServer(t, 1)
	rec := server.get(t, "/api/about")
	require.Equal(t, http.StatusOK, rec.Code)

	about := decode[AboutResponse](t, rec)
	assert.Equal(t, "dev", about.Version)
	assert.Equal(t, "fake", about.Engine)
	assert.Equal(t, RenderScale, about.RenderScale)
	assert.Equal(t, server.outDir, about.OutputPath)
	assert.Equal(t, int64(1), about.StaggerMs)
}

func TestThreePageConversionAndJPGDownload(t *testing.T) {
	server := newReadyServer(t, 3)

	rec := server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 3)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decode[Snapshot](t, rec)
	assert.Equal(t, PhaseReady, snap.Phase)
	require.Len(t, snap.Pages, 3)
	for i, page := range snap.Pages {
		assert.Equal(t, i+1, page.PageNum)
		assert.True(t, strings.HasPrefix(page.DataURI, "data:image/png;base64,"))
		assert.Greater(t, len(page.DataURI), len("data:image/png;base64,"))
	}

	rec = server.get(t, "/api/pages/2/download?format=jpg&quality=0.7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="page_2.jpg"`)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestDownloadUsesSessionOptions(t *testing.T) {
	server := newReadyServer(t, 1)
	require.Equal(t, http.StatusOK, server.do(t, convertRequest(t, "a.pdf", PDFMediaType, samplePDF(t, 1))).Code)

	rec := server.get(t, "/api/pages/1/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "page_1.png")

	rec = server.get(t, "/api/pages/9/download")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = server.get(t, "/api/pages/1/download?quality=0.2&format=jpg")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = server.get(t, "/api/pages/1/download?format=gif")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = server.get(t, "/api/pages/one/download")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertRejectsNonPDF(t *testing.T) {
	server := newReadyServer(t, 1)

	rec := server.do(t, convertRequest(t, "photo.png", "image/png", []byte("\x89PNG")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrInvalidType.Error(), errorText(t, rec))
	assert.Zero(t, server.engine.rendered.Load())

	snap := decode[Snapshot](t, server.get(t, "/api/pages"))
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Pages)
}

func TestConvertMissingFile(t *testing.T) {
	server := newReadyServer(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, server.do(t, req).Code)
}

func TestConvertWhileRendererLoading(t *testing.T) {
	eng := newFakeEngine(1)
	release := make(chan struct{})
	bridge := pdfrenderer.NewBridge(func(ctx context.Context) (pdfrenderer.Engine, error) {
		<-release
		return eng, nil
	})
	bridge.Start()
	defer close(release)
	server := newTestServer(t, eng, bridge, nil)

	status := decode[StatusResponse](t, server.get(t, "/api/status"))
	assert.False(t, status.RendererReady)
	assert.Equal(t, "fake", status.Engine)

	rec := server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 1)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, PhaseIdle, server.handler.Session.Phase())
}

func TestConvertAfterLoadFailure(t *testing.T) {
	bridge := pdfrenderer.NewBridge(func(ctx context.Context) (pdfrenderer.Engine, error) {
		return nil, errors.New("wasm runtime unavailable")
	})
	require.Error(t, bridge.EnsureReady(context.Background()))
	server := newTestServer(t, newFakeEngine(1), bridge, nil)

	status := decode[StatusResponse](t, server.get(t, "/api/status"))
	assert.False(t, status.RendererReady)
	assert.Contains(t, status.RendererError, "Failed to load")

	rec := server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 1)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConvertFailure(t *testing.T) {
	server := newReadyServer(t, 2)
	server.engine.failPage = 2

	rec := server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 2)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "PDF processing failed: broken content stream", errorText(t, rec))

	snap := decode[Snapshot](t, server.get(t, "/api/pages"))
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Empty(t, snap.Pages)
}

func TestConvertWhileBusy(t *testing.T) {
	server := newReadyServer(t, 1)
	server.engine.gate = make(chan struct{})

	first := convertRequest(t, "first.pdf", PDFMediaType, samplePDF(t, 1))
	second := convertRequest(t, "second.pdf", PDFMediaType, samplePDF(t, 1))

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		server.handler.Echo.ServeHTTP(rec, first)
		done <- rec.Code
	}()
	require.Eventually(t, func() bool {
		return server.handler.Session.Phase() == PhaseProcessing
	}, time.Second, time.Millisecond)

	rec := server.do(t, second)
	assert.Equal(t, http.StatusConflict, rec.Code)

	status := decode[StatusResponse](t, server.get(t, "/api/status"))
	assert.Equal(t, PhaseProcessing, status.Phase)

	close(server.engine.gate)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestOptionsRoutes(t *testing.T) {
	server := newReadyServer(t, 1)

	options := decode[export.Options](t, server.get(t, "/api/options"))
	assert.Equal(t, export.DefaultOptions(), options)

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/options", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return server.do(t, req)
	}

	rec := put(`{"format":"JPEG","quality":0.7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.Options{Format: export.FormatJPG, Quality: 0.7}, decode[export.Options](t, rec))

	assert.Equal(t, http.StatusBadRequest, put(`{"format":"jpg","quality":0.3}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{"format":"webp","quality":0.9}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`not json`).Code)

	assert.Equal(t, export.Options{Format: export.FormatJPG, Quality: 0.7}, server.handler.Session.Options(),
		"rejected updates keep the last good settings")
}

func TestExportRoute(t *testing.T) {
	server := newReadyServer(t, 3)

	rec := server.do(t, httptest.NewRequest(http.MethodPost, "/api/export", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing to export yet")

	require.Equal(t, http.StatusOK, server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 3))).Code)
	require.NoError(t, server.handler.Session.SetOptions(export.Options{Format: export.FormatJPG, Quality: 0.9}))

	rec = server.do(t, httptest.NewRequest(http.MethodPost, "/api/export", nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	response := decode[ExportResponse](t, rec)
	assert.Equal(t, []string{"page_1.jpg", "page_2.jpg", "page_3.jpg"}, response.Files)
	assert.Equal(t, server.outDir, response.Directory)

	require.Eventually(t, func() bool {
		for _, name := range response.Files {
			if _, err := os.Stat(filepath.Join(server.outDir, name)); err != nil {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestResetSessionRoute(t *testing.T) {
	server := newReadyServer(t, 1)
	require.Equal(t, http.StatusOK, server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 1))).Code)

	rec := server.do(t, httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[Snapshot](t, rec)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Pages)
}

func TestJobRoutes(t *testing.T) {
	repo, err := database.NewRepository(config.ServerConfig{DatabaseType: "memory"})
	require.NoError(t, err)
	defer repo.Close()

	eng := newFakeEngine(2)
	server := newTestServer(t, eng, readyBridge(t, eng), repo)
	require.Equal(t, http.StatusOK, server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 2))).Code)

	jobs := decode[[]database.Job](t, server.get(t, "/api/jobs"))
	require.Len(t, jobs, 1)
	assert.Equal(t, database.JobTypeConversion, jobs[0].Type)
	assert.Equal(t, database.JobStatusCompleted, jobs[0].Status)

	rec := server.get(t, "/api/jobs/"+jobs[0].ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobs[0].ID, decode[database.Job](t, rec).ID)

	active := decode[[]database.Job](t, server.get(t, "/api/jobs/active"))
	assert.Empty(t, active)

	assert.Equal(t, http.StatusBadRequest, server.get(t, "/api/jobs/not-a-ulid").Code)
	assert.Equal(t, http.StatusNotFound, server.get(t, "/api/jobs/"+ulid.Make().String()).Code)

	assert.Len(t, decode[[]database.Job](t, server.get(t, "/api/jobs?type=conversion&status=completed")), 1)
	assert.Empty(t, decode[[]database.Job](t, server.get(t, "/api/jobs?type=export")))
	assert.Equal(t, http.StatusBadRequest, server.get(t, "/api/jobs?type=ingestion").Code)
	assert.Equal(t, http.StatusBadRequest, server.get(t, "/api/jobs?limit=many").Code)
}

func TestPruneJobsRoute(t *testing.T) {
	repo, err := database.NewRepository(config.ServerConfig{DatabaseType: "memory"})
	require.NoError(t, err)
	defer repo.Close()

	eng := newFakeEngine(1)
	server := newTestServer(t, eng, readyBridge(t, eng), repo)
	require.Equal(t, http.StatusOK, server.do(t, convertRequest(t, "report.pdf", PDFMediaType, samplePDF(t, 1))).Code)

	rec := server.do(t, httptest.NewRequest(http.MethodDelete, "/api/jobs?olderThan=1h", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]interface{}](t, rec)["deleted"], "the job is too recent")

	time.Sleep(2 * time.Millisecond)
	rec = server.do(t, httptest.NewRequest(http.MethodDelete, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["deleted"])
	assert.Empty(t, decode[[]database.Job](t, server.get(t, "/api/jobs")))

	rec = server.do(t, httptest.NewRequest(http.MethodDelete, "/api/jobs?olderThan=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobRoutesAbsentWithoutDatabase(t *testing.T) {
	server := newReadyServer(t, 1)
	assert.Equal(t, http.StatusNotFound, server.get(t, "/api/jobs").Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{invalid(ErrInvalidType, ""), http.StatusBadRequest},
		{invalid(ErrBusy, ""), http.StatusConflict},
		{ErrDiscarded, http.StatusConflict},
		{invalid(ErrNotReady, ""), http.StatusServiceUnavailable},
		{&ConversionFailure{Page: 2, Cause: errBrokenPage}, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: 9", ErrPageNotFound), http.StatusNotFound},
		{export.ErrUnknownFormat, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
