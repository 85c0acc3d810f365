package upload

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// handleResponse interprets the answer to a slice PUT.
//
// 201 Created means the item exists: the body is the item, or, without a
// body, the Location header points to it. Any other 2xx answer carries
// either a session that still expects ranges or, when no ranges are left,
// the item itself.
func handleResponse[T any](resp *http.Response, c Codec) (Result[T], error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result[T]{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result[T]{}, fmt.Errorf("%w: %w", ErrSliceUploadFailed, newAPIError(resp, data))
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode == http.StatusCreated {
		if len(data) > 0 {
			return decodeItem[T](c, contentType, data)
		}
		if location := resp.Header.Get("Location"); location != "" {
			u, err := url.Parse(location)
			if err != nil {
				return Result[T]{}, fmt.Errorf("parse location %q: %w", location, err)
			}
			return Result[T]{Location: u}, nil
		}
		return Result[T]{}, ErrIncompleteUploadResponse
	}

	if len(data) == 0 {
		return Result[T]{}, ErrNoResponseBody
	}

	var session UploadSession
	if err := c.Unmarshal(contentType, data, &session); err == nil && len(session.NextExpectedRanges) > 0 {
		return Result[T]{Session: &session}, nil
	}

	return decodeItem[T](c, contentType, data)
}

func decodeItem[T any](c Codec, contentType string, data []byte) (Result[T], error) {
	item := new(T)
	if err := c.Unmarshal(contentType, data, item); err != nil {
		return Result[T]{}, fmt.Errorf("decode uploaded item: %w", err)
	}
	return Result[T]{Item: item}, nil
}
