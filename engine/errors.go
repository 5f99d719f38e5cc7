package engine

import (
	"errors"
	"fmt"

	"github.com/drummonds/pdf2image/engine/pdfrenderer"
)

var (
	// ErrValidation is matched by every rejected request that did no work
	ErrValidation = errors.New("invalid request")

	ErrInvalidType = errors.New("please upload a PDF file")
	ErrNotReady    = pdfrenderer.ErrNotReady
	ErrBusy        = errors.New("a conversion is already in progress")

	ErrLoadFailure = pdfrenderer.ErrLoadFailure
	ErrConversion  = errors.New("PDF conversion failed")
	ErrDiscarded   = errors.New("the conversion was discarded by a reset")
)

// ValidationError is returned before any page work starts
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Kind}
}

func invalid(kind error, detail string) *ValidationError {
	return &ValidationError{Kind: kind, Detail: detail}
}

// ConversionFailure aborts a conversion; Page is 0 when the document itself failed
type ConversionFailure struct {
	Page  int
	Cause error
}

func (e *ConversionFailure) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("%s: %v", ErrConversion, e.Cause)
	}
	return fmt.Sprintf("%s on page %d: %v", ErrConversion, e.Page, e.Cause)
}

func (e *ConversionFailure) Unwrap() []error {
	return []error{ErrConversion, e.Cause}
}

// UserMessage is the text shown to a person for err
func UserMessage(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return validation.Kind.Error()
	case errors.Is(err, ErrLoadFailure):
		return "Failed to load the PDF renderer. Restart the application to try again."
	case errors.Is(err, ErrConversion):
		var failure *ConversionFailure
		if errors.As(err, &failure) && failure.Cause != nil {
			return "PDF processing failed: " + failure.Cause.Error()
		}
		return "PDF processing failed: unknown error"
	}
	return err.Error()
}
