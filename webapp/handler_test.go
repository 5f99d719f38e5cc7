package webapp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestHandlerRoutes tests that all expected routes are registered
func TestHandlerRoutes(t *testing.T) {
	handler := Handler()

	tests := []struct {
		name string
		path string
	}{
		{
			name: "Converter page",
			path: "/",
		},
		{
			name: "Jobs page",
			path: "/jobs",
		},
		{
			name: "About page",
			path: "/about",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code == http.StatusNotFound {
				t.Errorf("Route %s returned 404 Not Found - route may not be registered", tt.path)
			}

			contentType := rec.Header().Get("Content-Type")
			if !strings.Contains(contentType, "text/html") && rec.Code == http.StatusOK {
				t.Logf("Note: Route %s returned status %d with Content-Type: %s", tt.path, rec.Code, contentType)
			}
		})
	}
}

// TestHandlerLoadsConfigAndStyles checks the page shell references the backend config and stylesheet
func TestHandlerLoadsConfigAndStyles(t *testing.T) {
	handler := Handler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"/config.js", "/webapp/webapp.css", "pdf2image"} {
		if !strings.Contains(body, want) {
			t.Errorf("page shell does not reference %s", want)
		}
	}
}

// TestPageFor tests the client-side route table
func TestPageFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "*webapp.ConverterPage"},
		{"/jobs", "*webapp.JobsPage"},
		{"/about", "*webapp.AboutPage"},
		{"/browse", "*webapp.NotFoundPage"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := typeName(pageFor(tt.path))
			if got != tt.want {
				t.Errorf("pageFor(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}
