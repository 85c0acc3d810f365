package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrInvalidArgument is returned when a task can't be built from its inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionExpired is returned when resuming or deleting a session past its expiration.
	ErrSessionExpired = errors.New("upload session expired")

	// ErrSliceUploadFailed is returned when the service rejected a slice.
	ErrSliceUploadFailed = errors.New("slice upload failed")

	// ErrIncompleteUploadResponse is returned when the service reported a created
	// item but sent neither the item nor its location.
	ErrIncompleteUploadResponse = errors.New("upload completed without item or location")

	// ErrNoResponseBody is returned when a response that must carry a body didn't.
	ErrNoResponseBody = errors.New("no response body for upload")

	// ErrUploadExhausted is returned when every permitted round finished without
	// completing the upload.
	ErrUploadExhausted = errors.New("upload retries exhausted")
)

const maxErrorBodySize = 1024

// APIError describes a non-2xx answer of the upload service.
type APIError struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	if body == nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	}
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       string(body),
	}
}
