// Package export encodes rendered pages into downloadable PNG or JPG files.
package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Format is an output image format
type Format string

const (
	FormatPNG Format = "png" // lossless
	FormatJPG Format = "jpg" // lossy, honours Quality
)

const (
	MinQuality     = 0.5
	MaxQuality     = 1.0
	QualityStep    = 0.05
	DefaultQuality = 0.95
)

var (
	ErrUnknownFormat = errors.New("unknown output format")
	ErrQualityRange  = fmt.Errorf("quality must be between %.2f and %.2f", MinQuality, MaxQuality)
)

// ParseFormat accepts png, jpg and jpeg in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the file extension without the leading dot
func (f Format) Extension() string {
	return string(f)
}

// MimeType returns the media type written for the format
func (f Format) MimeType() string {
	if f == FormatJPG {
		return "image/jpeg"
	}
	return "image/png"
}

// Options is the user's output configuration
type Options struct {
	Format  Format  `json:"format"`
	Quality float64 `json:"quality"`
}

// DefaultOptions returns png at the default quality
func DefaultOptions() Options {
	return Options{Format: FormatPNG, Quality: DefaultQuality}
}

// Validate checks the format is known and quality is in range
func (o Options) Validate() error {
	if o.Format != FormatPNG && o.Format != FormatJPG {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, o.Format)
	}
	if math.IsNaN(o.Quality) || o.Quality < MinQuality || o.Quality > MaxQuality {
		return fmt.Errorf("%w: got %v", ErrQualityRange, o.Quality)
	}
	return nil
}

// jpegQuality maps a 0.5-1.0 fraction onto the encoder's 1-100 scale
func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// Encode writes img to w in the configured format.
// Quality is only passed to the jpg encoder; png uses the encoder defaults.
func Encode(w io.Writer, img image.Image, o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	switch o.Format {
	case FormatJPG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(o.Quality)))
	default:
		return imaging.Encode(w, img, imaging.PNG)
	}
}

// EncodeBytes is Encode into a fresh buffer
func EncodeBytes(img image.Image, o Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURI encodes img as a lossless PNG data URI for previews
func DataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FileName names the download for the page at the zero-based index
func FileName(index int, f Format) string {
	return fmt.Sprintf("page_%d.%s", index+1, f.Extension())
}
