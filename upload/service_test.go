package upload

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
)

// fakeService emulates an upload session endpoint: it keeps track of the
// received bytes and answers with the ranges that are still missing.
type fakeService struct {
	t          *testing.T
	server     *httptest.Server
	expiration time.Time

	mu       sync.Mutex
	content  []byte
	received []bool
	requests []string

	// failPuts makes the next n PUT requests fail with HTTP 500.
	failPuts int
	// failRanges makes the first PUT of each listed Content-Range fail with HTTP 500.
	failRanges map[string]bool
	// bareAnswers answers the next PUT requests with these status codes and
	// no body, dropping the received bytes.
	bareAnswers []int
	// failGets makes the next n status requests fail with HTTP 503.
	failGets int
	// statusRanges overrides the ranges reported by the status call.
	statusRanges []string
	// noItemBody makes the completing PUT answer with a Location only.
	noItemBody bool
}

func newFakeService(t *testing.T, size int64) *fakeService {
	s := &fakeService{
		t:          t,
		expiration: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		content:    make([]byte, size),
		received:   make([]bool, size),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeService) url() string {
	return s.server.URL + "/upload/session-1"
}

func (s *fakeService) session() *UploadSession {
	return &UploadSession{
		UploadURL:          s.url(),
		ExpirationDateTime: s.expiration,
		NextExpectedRanges: []string{"0-"},
	}
}

func (s *fakeService) markReceived(begin, end int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := begin; i <= end; i++ {
		s.received[i] = true
	}
}

func (s *fakeService) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		cr := r.Header.Get("Content-Range")
		s.requests = append(s.requests, "PUT "+cr)
		s.put(w, r, cr)
	case http.MethodGet:
		s.requests = append(s.requests, "GET")
		if s.failGets > 0 {
			s.failGets--
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"code": "serviceNotAvailable"}})
			return
		}
		ranges := s.statusRanges
		if ranges == nil {
			ranges = s.missing()
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"expirationDateTime": s.expiration,
			"nextExpectedRanges": ranges,
		})
	case http.MethodDelete:
		s.requests = append(s.requests, "DELETE")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeService) put(w http.ResponseWriter, r *http.Request, contentRange string) {
	var begin, end, total int64
	_, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &begin, &end, &total)
	require.NoError(s.t, err)
	require.Equal(s.t, int64(len(s.content)), total)

	body, err := io.ReadAll(r.Body)
	require.NoError(s.t, err)
	require.Equal(s.t, end-begin+1, int64(len(body)), "body length must match Content-Range")
	require.Equal(s.t, int64(len(body)), r.ContentLength)

	if len(s.bareAnswers) > 0 {
		status := s.bareAnswers[0]
		s.bareAnswers = s.bareAnswers[1:]
		w.WriteHeader(status)
		return
	}

	if s.failRanges[contentRange] {
		delete(s.failRanges, contentRange)
		s.failPuts++
	}
	if s.failPuts > 0 {
		s.failPuts--
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"code": "generalException"}})
		return
	}

	copy(s.content[begin:], body)
	for i := begin; i <= end; i++ {
		s.received[i] = true
	}

	missing := s.missing()
	if len(missing) > 0 {
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"expirationDateTime": s.expiration,
			"nextExpectedRanges": missing,
		})
		return
	}

	if s.noItemBody {
		w.Header().Set("Location", s.server.URL+"/items/item-1")
		w.WriteHeader(http.StatusCreated)
		return
	}
	s.writeJSON(w, http.StatusCreated, driveItem{ID: "item-1", Name: "content.bin", Size: total})
}

// missing lists the windows not received yet, the last one open ended when it
// reaches the end of the content.
func (s *fakeService) missing() []string {
	var ranges []string
	size := int64(len(s.received))
	for i := int64(0); i < size; {
		if s.received[i] {
			i++
			continue
		}
		begin := i
		for i < size && !s.received[i] {
			i++
		}
		if i == size {
			ranges = append(ranges, fmt.Sprintf("%d-", begin))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", begin, i-1))
		}
	}
	return ranges
}

func (s *fakeService) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(s.t, json.NewEncoder(w).Encode(v))
}

func newTestClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

func testContent(size int) []byte {
	return []byte(strings.Repeat("0123456789", size/10+1)[:size])
}
