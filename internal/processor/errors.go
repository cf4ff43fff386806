package processor

import (
	"errors"
	"net/http"
)

// ErrorKind classifies pipeline failures for the caller.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindUnparseableDocument ErrorKind = "unparseable_document"
	KindUnsupportedPlatform ErrorKind = "unsupported_platform"
	KindProcessingFailure   ErrorKind = "processing_failure"
)

// User-facing messages. Internal details never reach the response.
const (
	MsgNoFile       = "Please upload a file"
	MsgNotPDF       = "Please upload a PDF file"
	MsgNotImage     = "Please upload an image file"
	MsgInvalidPDF   = "The uploaded file is not a valid PDF"
	MsgProcessError = "An error occurred while processing your file"
)

// HTTPStatus maps a kind to its response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindUnparseableDocument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by every Pipeline operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, treating anything unclassified as a
// processing failure.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessingFailure
}

// PublicMessage returns the text that may be shown to the client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgProcessError
}
