package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-resumable-upload/upload/ranges"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

// SliceUploader sends a single slice of the content to an upload session.
type SliceUploader[T any] struct {
	client Doer
	codec  Codec
	logger log.Logger
}

// NewSliceUploader ...
func NewSliceUploader[T any](client Doer, codec Codec, logger log.Logger) *SliceUploader[T] {
	return &SliceUploader[T]{
		client: client,
		codec:  codec,
		logger: logger,
	}
}

// Upload reads the slice's window from content and PUTs it to uploadURL.
func (u *SliceUploader[T]) Upload(ctx context.Context, uploadURL string, slice ranges.Slice, content io.ReaderAt) (Result[T], error) {
	data, err := readWindow(content, slice.Begin, slice.Length())
	if err != nil {
		return Result[T]{}, fmt.Errorf("read slice %d-%d: %w", slice.Begin, slice.End, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, uploadURL, data)
	if err != nil {
		return Result[T]{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Range", slice.ContentRange())

	u.logger.Debugf("PUT %s (%s)", uploadURL, slice.ContentRange())

	resp, err := u.client.Do(req)
	if err != nil {
		return Result[T]{}, fmt.Errorf("upload slice %d-%d: %w", slice.Begin, slice.End, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			u.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	u.logger.Debugf("Slice %d-%d answered with HTTP %d", slice.Begin, slice.End, resp.StatusCode)

	return handleResponse[T](resp, u.codec)
}

// readWindow reads exactly length bytes starting at offset.
func readWindow(content io.ReaderAt, offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := content.ReadAt(buf, offset)
	if int64(n) == length {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("got %d of %d bytes: %w", n, length, err)
}
