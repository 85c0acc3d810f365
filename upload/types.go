// Package upload implements resumable, sliced uploads against an upload
// session: an expiring server resource that reports the byte ranges it
// still needs. A Task plans slices from those ranges, sends them one by one,
// and reconciles with the server whenever a round doesn't finish the upload.
package upload

import (
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Session is anything that carries the state of an upload session.
type Session interface {
	GetUploadURL() string
	GetExpirationDateTime() time.Time
	GetNextExpectedRanges() []string
}

// UploadSession is the session resource as returned by the service.
type UploadSession struct {
	UploadURL          string    `json:"uploadUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges"`
}

// GetUploadURL ...
func (s *UploadSession) GetUploadURL() string {
	return s.UploadURL
}

// GetExpirationDateTime ...
func (s *UploadSession) GetExpirationDateTime() time.Time {
	return s.ExpirationDateTime
}

// GetNextExpectedRanges ...
func (s *UploadSession) GetNextExpectedRanges() []string {
	return s.NextExpectedRanges
}

// sessionFrom copies any Session into an UploadSession.
func sessionFrom(s Session) *UploadSession {
	if us, ok := s.(*UploadSession); ok {
		cp := *us
		cp.NextExpectedRanges = append([]string(nil), us.NextExpectedRanges...)
		return &cp
	}
	return &UploadSession{
		UploadURL:          s.GetUploadURL(),
		ExpirationDateTime: s.GetExpirationDateTime(),
		NextExpectedRanges: append([]string(nil), s.GetNextExpectedRanges()...),
	}
}

// isExpired reports whether the session can no longer be used at now.
// A session without an expiration is treated as expired.
func isExpired(s Session, now time.Time) bool {
	exp := s.GetExpirationDateTime()
	if exp.IsZero() {
		return true
	}
	return !exp.After(now)
}

// Result is the outcome of a slice transfer or of a whole upload. At most
// one of the fields is set.
type Result[T any] struct {
	// Session is set while the service still expects more bytes.
	Session *UploadSession
	// Item is the created item, once the upload completed.
	Item *T
	// Location points to the created item when the service didn't send it.
	Location *url.URL
}

// Succeeded reports whether the upload has been completed.
func (r Result[T]) Succeeded() bool {
	return r.Item != nil || r.Location != nil
}

// Doer sends HTTP requests. *retryablehttp.Client satisfies it.
type Doer interface {
	Do(req *retryablehttp.Request) (*http.Response, error)
}

// Codec decodes a response body of the given media type into v.
type Codec interface {
	Unmarshal(mediaType string, data []byte, v any) error
}

// ProgressFunc receives the number of bytes the service accepted so far and
// the total content length.
type ProgressFunc func(uploaded, total int64)
