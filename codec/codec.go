// Package codec decodes service responses based on their media type.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/elnormous/contenttype"
)

// ErrUnsupportedMediaType is returned when no decoder is registered for a media type.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// DefaultMediaType is assumed when a response has no Content-Type.
const DefaultMediaType = "application/json"

// UnmarshalFunc decodes data into v.
type UnmarshalFunc func(data []byte, v any) error

// JSON decodes JSON documents.
func JSON(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// Registry maps media types to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]UnmarshalFunc
}

// NewRegistry returns a registry that understands JSON.
func NewRegistry() *Registry {
	r := &Registry{decoders: map[string]UnmarshalFunc{}}
	r.Register("application/json", JSON)
	r.Register("text/json", JSON)
	return r
}

// Register adds or replaces the decoder of a media type.
func (r *Registry) Register(mediaType string, fn UnmarshalFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[normalize(mediaType)] = fn
}

// Unmarshal decodes data with the decoder registered for contentType.
// Media type parameters like charset are ignored and "+json" suffixed types
// fall back to the JSON decoder.
func (r *Registry) Unmarshal(contentType string, data []byte, v any) error {
	mediaType := normalize(contentType)

	r.mu.RLock()
	fn, ok := r.decoders[mediaType]
	if !ok && strings.HasSuffix(mediaType, "+json") {
		fn, ok = r.decoders["application/json"]
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	if err := fn(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", mediaType, err)
	}
	return nil
}

func normalize(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return DefaultMediaType
	}
	mt := contenttype.NewMediaType(contentType)
	if mt.Type == "" || mt.Subtype == "" {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mt.Type + "/" + mt.Subtype)
}
