// Package batch looks up individual responses across several batch
// response bundles by request id.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bitrise-io/go-resumable-upload/codec"
	"github.com/bitrise-io/go-resumable-upload/transport"
	"github.com/bytedance/sonic"
)

// ErrResponseNotFound is returned when no bundle holds a response for a request id.
var ErrResponseNotFound = errors.New("batch response not found")

// Response is a single answer inside a batch response bundle.
type Response struct {
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Header returns the response headers as an http.Header.
func (r *Response) Header() http.Header {
	h := http.Header{}
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	return h
}

// Content is a decoded batch response bundle.
type Content struct {
	Responses []Response `json:"responses"`
}

// ParseContent decodes a batch response body.
func ParseContent(data []byte) (*Content, error) {
	var c Content
	if err := sonic.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	return &c, nil
}

// Response returns the response of the request with the given id.
func (c *Content) Response(id string) (*Response, bool) {
	for i := range c.Responses {
		if c.Responses[i].ID == id {
			return &c.Responses[i], true
		}
	}
	return nil, false
}

// StatusCodes maps request ids to response status codes.
func (c *Content) StatusCodes() map[string]int {
	codes := make(map[string]int, len(c.Responses))
	for _, r := range c.Responses {
		codes[r.ID] = r.Status
	}
	return codes
}

type keyedContent struct {
	keys    map[string]struct{}
	content *Content
}

// Collection holds batch response bundles together with the ids of the
// requests that were sent in each of them.
type Collection struct {
	mu      sync.RWMutex
	bundles []keyedContent
	codec   *codec.Registry
}

// NewCollection creates an empty collection. A non-nil features accumulator
// gets the batch request flag.
func NewCollection(features *transport.FeatureUsage) *Collection {
	if features != nil {
		features.Set(transport.BatchRequestFlag)
	}
	return &Collection{codec: codec.NewRegistry()}
}

// Add registers content as the answer of the requests with the given keys.
func (c *Collection) Add(keys []string, content *Content) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles = append(c.bundles, keyedContent{keys: set, content: content})
}

// Response returns the response of the request with the given id from the
// first bundle that holds it.
func (c *Collection) Response(id string) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, b := range c.bundles {
		if _, ok := b.keys[id]; !ok {
			continue
		}
		if r, ok := b.content.Response(id); ok {
			return r, nil
		}
		break
	}
	return nil, fmt.Errorf("%w: %s", ErrResponseNotFound, id)
}

// Decode unmarshals the body of the response with the given id into v,
// based on the response's Content-Type.
func (c *Collection) Decode(id string, v any) error {
	r, err := c.Response(id)
	if err != nil {
		return err
	}
	return c.codec.Unmarshal(r.Header().Get("Content-Type"), r.Body, v)
}

// StatusCodes merges the status codes of every bundle.
func (c *Collection) StatusCodes() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes := map[string]int{}
	for _, b := range c.bundles {
		for id, status := range b.content.StatusCodes() {
			codes[id] = status
		}
	}
	return codes
}
