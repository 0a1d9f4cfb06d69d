package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request failures so transport code can map each class
// to a status code without inspecting messages.
type ErrorKind string

const (
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindInfoFetch          ErrorKind = "info_fetch_error"
	KindDownload           ErrorKind = "download_error"
	KindNoTranscript       ErrorKind = "no_transcript_available"
	KindDocumentExport     ErrorKind = "document_export_error"
	KindClipSourceFetch    ErrorKind = "clip_source_fetch_error"
	KindClipSourceNotFound ErrorKind = "clip_source_not_found"
	KindPersistence        ErrorKind = "persistence_error"
	KindDelivery           ErrorKind = "delivery_error"
	KindAuth               ErrorKind = "auth_error"
	KindBillingConfig      ErrorKind = "billing_config_error"
	KindProvider           ErrorKind = "provider_error"
)

// Error is a kind-aware request error with optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error formats the failure for logs and API messages.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// E builds a kind-classified error wrapping an optional cause.
func E(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind, or KindProvider for unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindProvider
}
