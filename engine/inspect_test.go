package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_ReadsStructure(t *testing.T) {
	data := samplePDF(t, 3)

	info, err := Inspect("report.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, len(data), info.Size)
	assert.Equal(t, 3, info.Pages)
	assert.Equal(t, "1.3", info.Version)
	assert.Equal(t, "Quarterly report", info.Title)
}

func TestInspect_Garbage(t *testing.T) {
	info, err := Inspect("notes.pdf", []byte("%PDF-1.7\nthis is not really a pdf"))
	assert.Error(t, err)
	assert.Equal(t, "1.7", info.Version, "header is read even when the body is not")
	assert.Equal(t, "notes.pdf", info.Name)
	assert.Zero(t, info.Pages)
}

func TestLooksLikePDF(t *testing.T) {
	assert.True(t, LooksLikePDF([]byte("%PDF-1.4\n...")))
	assert.False(t, LooksLikePDF([]byte("\x89PNG\r\n")))
	assert.False(t, LooksLikePDF(nil))
}
